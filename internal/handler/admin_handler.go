package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/robertspest/reorderdesk/internal/middleware"
	"github.com/robertspest/reorderdesk/internal/service"
	"github.com/robertspest/reorderdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AdminHandler struct {
	exporter *service.Exporter
	auth     *middleware.Auth
}

func NewAdminHandler(exporter *service.Exporter, auth *middleware.Auth) *AdminHandler {
	return &AdminHandler{exporter: exporter, auth: auth}
}

func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := router.Group("/api/admin", h.auth.RequireRole(middleware.RoleAdmin))
	{
		admin.POST("/import", h.Import)
		admin.GET("/export", h.Export)
	}
}

// Import replaces the database content with the workbook
// @Summary      Import workbook
// @Description  Loads every well-formed row of the configured workbook into the database, replacing its content. Malformed rows are skipped and reported.
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.ImportReport}
// @Failure      400  {object}  response.Response
// @Failure      500  {object}  response.Response
// @Router       /api/admin/import [post]
func (h *AdminHandler) Import(c *gin.Context) {
	report, err := h.exporter.ImportFromDocument(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// Export downloads a workbook snapshot of the active store
// @Summary      Export workbook
// @Description  Renders products, vendors and the reorder log as an .xlsx file. The roundtrip format also regenerates the transactions sheet.
// @Tags         admin
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        format  query     string  false  "standard (default) or roundtrip"
// @Success      200     {file}    file
// @Failure      400     {object}  response.Response
// @Router       /api/admin/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.FormatStandard)))
	f, err := h.exporter.ExportSnapshot(c.Request.Context(), format)
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	name := fmt.Sprintf("reorder_export_%s_%s.xlsx", format, time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", xlsxContentType)
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		log.Error().Err(err).Str("format", string(format)).Msg("failed to stream export")
	}
}
