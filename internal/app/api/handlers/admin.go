package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/service/statistics"
	"github.com/fatflowers/subscriptions/pkg/response"
)

// @Summary      List Subscriptions (Admin)
// @Description  Retrieves a paginated, filterable and sortable list of all subscriptions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.ScanSubscriptionsRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespScanSubscriptions
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/admin/list_subscriptions [post]
func ApiListAllSubscriptions(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.ScanSubscriptionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.ScanSubscriptions(c.Request.Context(), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Subscription Statistics (Admin)
// @Description  Computes the requested statistic data items.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistic
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/admin/get_subscription_statistic [post]
func ApiGetSubscriptionStatistic(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.GetStatistic(c.Request.Context(), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, stats *statistics.Service, log *zap.SugaredLogger) {
	r.POST("/list_subscriptions", ApiListAllSubscriptions(stats, log))
	r.POST("/get_subscription_statistic", ApiGetSubscriptionStatistic(stats, log))
}
