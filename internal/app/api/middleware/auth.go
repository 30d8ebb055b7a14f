package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/logctx"
	"github.com/fatflowers/subscriptions/pkg/response"
	"github.com/fatflowers/subscriptions/pkg/types"
)

const requesterKey = "requester"

// Authenticator resolves a bearer token to the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*types.Requester, error)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func abort(c *gin.Context, err error) {
	status, body := response.FromError(err)
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, body)
}

// AuthMiddleware requires a valid bearer token and stores the requester on the context.
func AuthMiddleware(auth Authenticator, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			abort(c, apperror.Unauthorized("Not authenticated"))
			return
		}
		r, err := auth.Authenticate(c.Request.Context(), tok)
		if err != nil {
			if apperror.KindOf(err) == apperror.KindInternal {
				logctx.FromGin(c, base).Errorw("authenticate failed", "err", err)
			}
			abort(c, err)
			return
		}
		c.Set(requesterKey, r)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logctx.UserIDKey, r.UserID))
		setLogger(c, logctx.FromGin(c, base).With("user_id", r.UserID))
		c.Next()
	}
}

// RequireAdmin rejects non-admin requesters. It must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := RequesterFrom(c)
		if r == nil || !r.IsAdmin {
			abort(c, apperror.Forbidden("Not enough permissions"))
			return
		}
		c.Next()
	}
}

// RequesterFrom returns the authenticated requester, or nil on public routes.
func RequesterFrom(c *gin.Context) *types.Requester {
	v, ok := c.Get(requesterKey)
	if !ok {
		return nil
	}
	r, _ := v.(*types.Requester)
	return r
}
