package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/subscriptions/internal/app/api/middleware"
	"github.com/fatflowers/subscriptions/internal/app/service/auth"
	"github.com/fatflowers/subscriptions/pkg/response"
)

// @Summary      Register
// @Description  Creates a new active, non-admin user.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body auth.RegisterRequest true "Registration data"
// @Success      201  {object}  handlers.RespUser
// @Failure      400  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/auth/register [post]
func ApiRegister(svc *auth.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		u, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(u))
	}
}

// @Summary      Login
// @Description  Exchanges a username or email and password for a bearer token. Accepts JSON or form data.
// @Tags         Auth
// @Accept       json
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        request body auth.LoginRequest true "Credentials"
// @Success      200  {object}  handlers.RespToken
// @Failure      401  {object}  handlers.RespError
// @Router       /api/v1/auth/login [post]
func ApiLogin(svc *auth.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if err := c.ShouldBind(&req); err != nil {
			writeBindError(c, err)
			return
		}
		tok, err := svc.Login(c.Request.Context(), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(tok))
	}
}

// @Summary      Current user
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespUser
// @Failure      401  {object}  handlers.RespError
// @Router       /api/v1/auth/me [get]
func ApiMe(svc *auth.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svc.Me(c.Request.Context(), mw.RequesterFrom(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(u))
	}
}

// RegisterAuthRoutes mounts register and login on public and me on authed.
func RegisterAuthRoutes(public, authed gin.IRouter, svc *auth.Service, limiter gin.HandlerFunc, log *zap.SugaredLogger) {
	public.POST("/register", limiter, ApiRegister(svc, log))
	public.POST("/login", limiter, ApiLogin(svc, log))
	authed.GET("/me", ApiMe(svc, log))
}
