package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/pkg/logctx"
	"github.com/fatflowers/subscriptions/pkg/response"
)

// writeError renders err in the response envelope with its mapped HTTP status.
// Internal failures are logged with their cause, which never reaches the client.
func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	status, body := response.FromError(err)
	if status >= http.StatusInternalServerError {
		logctx.FromGin(c, log).Errorw("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, body)
}

func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}
