package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/subscriptions/internal/app/api/middleware"
	subsvc "github.com/fatflowers/subscriptions/internal/app/service/subscription"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/response"
	"github.com/fatflowers/subscriptions/pkg/types"
)

// HistoryReader returns the recorded changes of one subscription.
type HistoryReader interface {
	History(ctx context.Context, subscriptionID string) ([]*models.SubscriptionLog, error)
}

type CreateSubscriptionRequest struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
}

type UpdateSubscriptionRequest struct {
	PlanID *string `json:"plan_id"`
	Status *string `json:"status"`
}

type listSubscriptionsQuery struct {
	types.Page
	Status types.SubscriptionStatus `form:"status"`
}

type CheckExpiredResponse struct {
	ExpiredCount int `json:"expired_count"`
}

// @Summary      Create subscription
// @Description  Subscribes a user to an active plan. Non-admins may only subscribe themselves.
// @Tags         Subscriptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body handlers.CreateSubscriptionRequest true "Subscription"
// @Success      201  {object}  handlers.RespSubscription
// @Failure      404  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/subscriptions [post]
func ApiCreateSubscription(svc *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		sub, err := svc.Create(c.Request.Context(), req.UserID, req.PlanID, mw.RequesterFrom(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(sub))
	}
}

// @Summary      List subscriptions (Admin)
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Param        skip query int false "Offset"
// @Param        limit query int false "Page size" default(100)
// @Param        status query string false "active, cancelled or expired"
// @Success      200  {object}  handlers.RespSubscriptions
// @Router       /api/v1/subscriptions [get]
func ApiListSubscriptions(svc *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listSubscriptionsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			writeBindError(c, err)
			return
		}
		subs, err := svc.List(c.Request.Context(), q.Status, q.Page, mw.RequesterFrom(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(subs))
	}
}

// @Summary      List a user's subscriptions
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Param        user_id path string true "User ID"
// @Param        status query string false "active, cancelled or expired"
// @Success      200  {object}  handlers.RespSubscriptions
// @Failure      403  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/subscriptions/user/{user_id} [get]
func ApiListUserSubscriptions(svc *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listSubscriptionsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			writeBindError(c, err)
			return
		}
		subs, err := svc.ListForUser(c.Request.Context(), c.Param("user_id"), q.Status, q.Page, mw.RequesterFrom(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(subs))
	}
}

// @Summary      Get a user's active subscription
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Param        user_id path string true "User ID"
// @Success      200  {object}  handlers.RespSubscription
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/subscriptions/user/{user_id}/active [get]
func ApiGetActiveSubscription(svc *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.LookupActive(c.Request.Context(), c.Param("user_id"), mw.RequesterFrom(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Get subscription
// @Description  Returns the subscription with its plan and user.
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscriptionDetail
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/subscriptions/{id} [get]
func ApiGetSubscription(svc *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.Get(c.Request.Context(), c.Param("id"), mw.RequesterFrom(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(d))
	}
}

// @Summary      Subscription history
// @Description  Returns the recorded changes of a subscription, newest first.
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscriptionHistory
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/subscriptions/{id}/history [get]
func ApiSubscriptionHistory(svc *subsvc.Service, history HistoryReader, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		// Get enforces ownership.
		if _, err := svc.Get(ctx, c.Param("id"), mw.RequesterFrom(c)); err != nil {
			writeError(c, log, err)
			return
		}
		logs, err := history.History(ctx, c.Param("id"))
		if err != nil {
			writeError(c, log, apperror.Internal(err, "load subscription history"))
			return
		}
		if logs == nil {
			logs = []*models.SubscriptionLog{}
		}
		c.JSON(http.StatusOK, response.OKT(logs))
	}
}

// @Summary      Update subscription
// @Description  plan_id switches plans carrying over whole days left; status applies a lifecycle transition. Both run in one transaction.
// @Tags         Subscriptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Subscription ID"
// @Param        request body handlers.UpdateSubscriptionRequest true "Fields to change"
// @Success      200  {object}  handlers.RespSubscription
// @Failure      400  {object}  handlers.RespError
// @Failure      403  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/subscriptions/{id} [put]
func ApiUpdateSubscription(svc *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		upd := subsvc.UpdateRequest{PlanID: req.PlanID}
		if req.Status != nil {
			st := types.SubscriptionStatus(*req.Status)
			upd.Status = &st
		}
		sub, err := svc.Update(c.Request.Context(), c.Param("id"), upd, mw.RequesterFrom(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Cancel subscription
// @Tags         Subscriptions
// @Security     BearerAuth
// @Param        id path string true "Subscription ID"
// @Success      204
// @Failure      404  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/subscriptions/{id} [delete]
func ApiCancelSubscription(svc *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := svc.Cancel(c.Request.Context(), c.Param("id"), mw.RequesterFrom(c)); err != nil {
			writeError(c, log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Expire overdue subscriptions (Admin)
// @Description  Marks every active subscription past its end date as expired.
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespCheckExpired
// @Router       /api/v1/subscriptions/check-expired [post]
func ApiCheckExpired(svc *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.SweepExpired(c.Request.Context())
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&CheckExpiredResponse{ExpiredCount: n}))
	}
}

// RegisterSubscriptionRoutes mounts the subscription API. Ownership checks live in the service;
// admin marks the routes that need an admin regardless of ownership.
func RegisterSubscriptionRoutes(authed, admin gin.IRouter, svc *subsvc.Service, history HistoryReader, log *zap.SugaredLogger) {
	authed.POST("", ApiCreateSubscription(svc, log))
	authed.GET("/user/:user_id", ApiListUserSubscriptions(svc, log))
	authed.GET("/user/:user_id/active", ApiGetActiveSubscription(svc, log))
	authed.GET("/:id", ApiGetSubscription(svc, log))
	authed.GET("/:id/history", ApiSubscriptionHistory(svc, history, log))
	authed.PUT("/:id", ApiUpdateSubscription(svc, log))
	authed.DELETE("/:id", ApiCancelSubscription(svc, log))

	admin.GET("", ApiListSubscriptions(svc, log))
	admin.POST("/check-expired", ApiCheckExpired(svc, log))
}
