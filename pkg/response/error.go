package response

import (
	"errors"
	"net/http"

	"github.com/fatflowers/subscriptions/pkg/apperror"
)

var kindToStatus = map[apperror.Kind]struct {
	status int
	code   APIResponseCode
}{
	apperror.KindBadRequest:   {http.StatusBadRequest, APIResponseCodeBadRequest},
	apperror.KindUnauthorized: {http.StatusUnauthorized, APIResponseCodeUnauthorized},
	apperror.KindForbidden:    {http.StatusForbidden, APIResponseCodeForbidden},
	apperror.KindNotFound:     {http.StatusNotFound, APIResponseCodeNotFound},
	apperror.KindConflict:     {http.StatusConflict, APIResponseCodeConflict},
	apperror.KindInternal:     {http.StatusInternalServerError, APIResponseCodeError},
}

// FromError maps err to an HTTP status and an error envelope. Only the message of
// a non-internal *apperror.Error is exposed as the envelope data.
func FromError(err error) (int, *APIResponse[any]) {
	kind := apperror.KindOf(err)
	m, ok := kindToStatus[kind]
	if !ok {
		m = kindToStatus[apperror.KindInternal]
	}
	var detail any = "Internal server error"
	var e *apperror.Error
	if kind != apperror.KindInternal && errors.As(err, &e) {
		detail = e.Message
	}
	return m.status, ErrorT[any](m.code, detail)
}
