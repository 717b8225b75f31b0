package handler

import (
	"net/http"
	"time"

	"github.com/robertspest/reorderdesk/internal/middleware"
	"github.com/robertspest/reorderdesk/internal/service"
	"github.com/robertspest/reorderdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	analyticsService service.AnalyticsService
	auth             *middleware.Auth
}

func NewAnalyticsHandler(analyticsService service.AnalyticsService, auth *middleware.Auth) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService, auth: auth}
}

func (h *AnalyticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	analytics := router.Group("/api/analytics")
	{
		analytics.GET("/spend", h.auth.RequireRole(middleware.RoleView), h.GetSpend)
	}
}

// GetSpend summarises purchase order spend
// @Summary      Spend report
// @Description  Totals SENT requests created in the date range, by day, vendor and product. Defaults to the current month.
// @Tags         analytics
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start date (YYYY-MM-DD)"
// @Param        to    query     string  false  "End date, inclusive (YYYY-MM-DD)"
// @Success      200   {object}  response.Response{data=service.SpendReport}
// @Failure      400   {object}  response.Response
// @Router       /api/analytics/spend [get]
func (h *AnalyticsHandler) GetSpend(c *gin.Context) {
	var from, to time.Time
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			badRequest(c, "Invalid from date: "+raw)
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			badRequest(c, "Invalid to date: "+raw)
			return
		}
	}

	report, err := h.analyticsService.Spend(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}
