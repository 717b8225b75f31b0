package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/robertspest/reorderdesk/internal/middleware"
	"github.com/robertspest/reorderdesk/internal/model"
	"github.com/robertspest/reorderdesk/internal/repository"
	"github.com/robertspest/reorderdesk/internal/service"
	"github.com/robertspest/reorderdesk/pkg/pagination"
	"github.com/robertspest/reorderdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReorderHandler struct {
	reorderService service.ReorderService
	auth           *middleware.Auth
}

func NewReorderHandler(reorderService service.ReorderService, auth *middleware.Auth) *ReorderHandler {
	return &ReorderHandler{reorderService: reorderService, auth: auth}
}

func (h *ReorderHandler) RegisterRoutes(router *gin.RouterGroup) {
	reorders := router.Group("/api/reorders")
	{
		reorders.GET("/low-stock", h.auth.RequireRole(middleware.RoleRequest), h.GetLowStock)
		reorders.POST("", h.auth.RequireRole(middleware.RoleRequest), h.CreateReorder)
		reorders.GET("", h.auth.RequireRole(middleware.RoleView), h.ListReorders)
		reorders.GET("/:id", h.auth.RequireRole(middleware.RoleView), h.GetReorder)
		reorders.PUT("/:id/approve", h.auth.RequireRole(middleware.RoleApprover), h.ApproveReorder)
		reorders.PUT("/:id/reject", h.auth.RequireRole(middleware.RoleApprover), h.RejectReorder)
	}
}

// GetLowStock proposes reorder lines grouped by vendor
// @Summary      Low-stock proposal
// @Description  Lists products at or below their reorder threshold, grouped by vendor, with the reorder amount as proposed quantity
// @Tags         reorders
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.LowStockReport}
// @Failure      503  {object}  response.Response
// @Router       /api/reorders/low-stock [get]
func (h *ReorderHandler) GetLowStock(c *gin.Context) {
	report, err := h.reorderService.LowStock(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// CreateReorder records a new PENDING reorder request
// @Summary      Create reorder request
// @Description  Validates the lines against the vendor's catalogue and records a PENDING request
// @Tags         reorders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateReorderRequest  true  "Reorder request"
// @Success      201      {object}  response.Response{data=model.ReorderRequest}
// @Failure      400      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/reorders [post]
func (h *ReorderHandler) CreateReorder(c *gin.Context) {
	var req service.CreateReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	created, err := h.reorderService.Create(c.Request.Context(), actorOf(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, created))
}

// ListReorders handles retrieving the reorder log
// @Summary      List reorder requests
// @Description  Lists reorder requests newest first. Every filter is optional and filters combine with AND.
// @Tags         reorders
// @Security     BearerAuth
// @Produce      json
// @Param        from             query     string  false  "Created on or after (YYYY-MM-DD)"
// @Param        to               query     string  false  "Created on or before (YYYY-MM-DD)"
// @Param        vendor_id        query     string  false  "Vendor ID"
// @Param        status           query     string  false  "PENDING, SENT, FAILED or REJECTED"
// @Param        po_number        query     string  false  "PO number"
// @Param        delivery_method  query     string  false  "SHIP or PICKUP"
// @Param        pickup_by        query     string  false  "Pickup date (YYYY-MM-DD)"
// @Param        approved_by      query     string  false  "Approver identity"
// @Param        page             query     int     false  "Page number (default 1)"
// @Param        limit            query     int     false  "Number of items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page}
// @Failure      400  {object}  response.Response
// @Router       /api/reorders [get]
func (h *ReorderHandler) ListReorders(c *gin.Context) {
	filter, err := parseReorderFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	p := pagination.Parse(c)

	requests, err := h.reorderService.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	start, end := p.Window(len(requests))
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{
		Items: requests[start:end],
		Total: len(requests),
		Page:  p.Page,
		Limit: p.Limit,
	}))
}

// GetReorder returns one reorder request
// @Summary      Get reorder request
// @Tags         reorders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.ReorderRequest}
// @Failure      404  {object}  response.Response
// @Router       /api/reorders/{id} [get]
func (h *ReorderHandler) GetReorder(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	req, err := h.reorderService.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// ApproveReorder approves a PENDING request and dispatches its purchase order
// @Summary      Approve reorder request
// @Description  Records the approval and sends the purchase order. A delivery failure still returns 200 with status FAILED.
// @Tags         reorders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Request ID"
// @Param        payload  body      service.DecisionInput  false "Approval details"
// @Success      200      {object}  response.Response{data=service.ApprovalOutcome}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/reorders/{id}/approve [put]
func (h *ReorderHandler) ApproveReorder(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var in service.DecisionInput
	if !bindOptionalJSON(c, &in) {
		return
	}

	outcome, err := h.reorderService.Approve(c.Request.Context(), id, actorOf(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, outcome))
}

// RejectReorder rejects a PENDING request
// @Summary      Reject reorder request
// @Tags         reorders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Request ID"
// @Param        payload  body      service.DecisionInput  false "Rejection notes"
// @Success      200      {object}  response.Response{data=model.ReorderRequest}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/reorders/{id}/reject [put]
func (h *ReorderHandler) RejectReorder(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var in service.DecisionInput
	if !bindOptionalJSON(c, &in) {
		return
	}

	rejected, err := h.reorderService.Reject(c.Request.Context(), id, actorOf(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rejected))
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseReorderFilter(c *gin.Context) (repository.ReorderFilter, error) {
	var f repository.ReorderFilter
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, filterError("Invalid from date: " + raw)
		}
		f.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, filterError("Invalid to date: " + raw)
		}
		// inclusive of the whole day
		end := t.AddDate(0, 0, 1)
		f.To = &end
	}
	if raw := c.Query("vendor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, filterError("Invalid vendor_id: " + raw)
		}
		f.VendorID = &id
	}
	if raw := c.Query("id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, filterError("Invalid id: " + raw)
		}
		f.ID = &id
	}
	if raw := c.Query("status"); raw != "" {
		f.Status = model.ReorderStatus(strings.ToUpper(raw))
		if !f.Status.Valid() {
			return f, filterError("Invalid status: " + raw)
		}
	}
	if raw := c.Query("delivery_method"); raw != "" {
		f.DeliveryMethod = model.DeliveryMethod(strings.ToUpper(raw))
		if !f.DeliveryMethod.Valid() {
			return f, filterError("Invalid delivery_method: " + raw)
		}
	}
	f.PONumber = c.Query("po_number")
	f.PickupBy = c.Query("pickup_by")
	f.ApprovedBy = c.Query("approved_by")
	return f, nil
}
