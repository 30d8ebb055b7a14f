package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/service/plan"
	"github.com/fatflowers/subscriptions/pkg/response"
	"github.com/fatflowers/subscriptions/pkg/types"
)

type listPlansQuery struct {
	types.Page
	// ActiveOnly defaults to true.
	ActiveOnly *bool `form:"active_only"`
}

// @Summary      List plans
// @Tags         Plans
// @Produce      json
// @Security     BearerAuth
// @Param        active_only query bool false "Only active plans" default(true)
// @Param        skip query int false "Offset"
// @Param        limit query int false "Page size" default(100)
// @Success      200  {object}  handlers.RespPlans
// @Router       /api/v1/plans [get]
func ApiListPlans(svc *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listPlansQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			writeBindError(c, err)
			return
		}
		activeOnly := q.ActiveOnly == nil || *q.ActiveOnly
		plans, err := svc.List(c.Request.Context(), activeOnly, q.Page)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

// @Summary      Get plan
// @Tags         Plans
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Plan ID"
// @Success      200  {object}  handlers.RespPlan
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/plans/{id} [get]
func ApiGetPlan(svc *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      Create plan (Admin)
// @Tags         Plans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body plan.CreateRequest true "Plan"
// @Success      201  {object}  handlers.RespPlan
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/plans [post]
func ApiCreatePlan(svc *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req plan.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		p, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(p))
	}
}

// @Summary      Update plan (Admin)
// @Description  Partial update; omitted fields are unchanged.
// @Tags         Plans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Plan ID"
// @Param        request body plan.UpdateRequest true "Fields to change"
// @Success      200  {object}  handlers.RespPlan
// @Failure      404  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/plans/{id} [put]
func ApiUpdatePlan(svc *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req plan.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		p, err := svc.Update(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      Delete plan (Admin)
// @Description  Fails with 409 while subscriptions reference the plan.
// @Tags         Plans
// @Security     BearerAuth
// @Param        id path string true "Plan ID"
// @Success      204
// @Failure      404  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/plans/{id} [delete]
func ApiDeletePlan(svc *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// RegisterPlanRoutes mounts reads on authed and writes on admin; both share one prefix.
func RegisterPlanRoutes(authed, admin gin.IRouter, svc *plan.Service, log *zap.SugaredLogger) {
	authed.GET("", ApiListPlans(svc, log))
	authed.GET("/:id", ApiGetPlan(svc, log))
	admin.POST("", ApiCreatePlan(svc, log))
	admin.PUT("/:id", ApiUpdatePlan(svc, log))
	admin.DELETE("/:id", ApiDeletePlan(svc, log))
}
