package handler

import (
	"net/http"

	"github.com/robertspest/reorderdesk/internal/middleware"
	"github.com/robertspest/reorderdesk/internal/service"
	"github.com/robertspest/reorderdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	inventoryService service.InventoryService
	auth             *middleware.Auth
}

func NewInventoryHandler(inventoryService service.InventoryService, auth *middleware.Auth) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService, auth: auth}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	inventory := router.Group("/api")
	{
		inventory.GET("/products", h.auth.RequireRole(middleware.RoleView), h.GetProducts)
		inventory.GET("/products/:id", h.auth.RequireRole(middleware.RoleView), h.GetProduct)
		inventory.PUT("/products", h.auth.RequireRole(middleware.RoleAdmin), h.UpsertProduct)
		inventory.POST("/products/:id/adjust", h.auth.RequireRole(middleware.RoleRequest), h.AdjustStock)
		inventory.POST("/products/rename", h.auth.RequireRole(middleware.RoleAdmin), h.RenameProductValue)
		inventory.GET("/vendors", h.auth.RequireRole(middleware.RoleView), h.GetVendors)
		inventory.GET("/vendors/:id", h.auth.RequireRole(middleware.RoleView), h.GetVendor)
		inventory.PUT("/vendors", h.auth.RequireRole(middleware.RoleAdmin), h.UpsertVendor)
		inventory.POST("/vendors/:id/pricing-request", h.auth.RequireRole(middleware.RoleRequest), h.RequestPricing)
	}
}

// GetProducts handles retrieving the product catalogue
// @Summary      Get products
// @Description  Lists every product with its current stock, ordered by name
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.Product}
// @Failure      503  {object}  response.Response
// @Router       /api/products [get]
func (h *InventoryHandler) GetProducts(c *gin.Context) {
	products, err := h.inventoryService.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, products))
}

// GetProduct
// @Summary      Get product
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  response.Response{data=model.Product}
// @Failure      404  {object}  response.Response
// @Router       /api/products/{id} [get]
func (h *InventoryHandler) GetProduct(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	product, err := h.inventoryService.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// UpsertProduct creates or replaces a product
// @Summary      Upsert product
// @Description  Creates a product, or replaces it when the id already exists
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.UpsertProductRequest  true  "Product"
// @Success      200      {object}  response.Response{data=model.Product}
// @Failure      400      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/products [put]
func (h *InventoryHandler) UpsertProduct(c *gin.Context) {
	var req service.UpsertProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	product, err := h.inventoryService.UpsertProduct(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// AdjustStock applies a manual stock correction and logs it as a transaction
// @Summary      Adjust stock
// @Description  Adds delta to the quantity on hand (floored at zero) and appends a transaction row
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Product ID"
// @Param        payload  body      service.AdjustStockRequest  true  "Adjustment"
// @Success      200      {object}  response.Response{data=model.Product}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/products/{id}/adjust [post]
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	product, err := h.inventoryService.AdjustStock(c.Request.Context(), actorOf(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// RenameProductValue renames a container unit or location across products
// @Summary      Rename product value
// @Description  Replaces every product's container_unit or location equal to "from" with "to" in one write
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RenameValueRequest  true  "Rename"
// @Success      200      {object}  response.Response{data=service.RenameValueResult}
// @Failure      400      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/products/rename [post]
func (h *InventoryHandler) RenameProductValue(c *gin.Context) {
	var req service.RenameValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	result, err := h.inventoryService.RenameProductValue(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetVendors
// @Summary      Get vendors
// @Tags         vendors
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.Vendor}
// @Router       /api/vendors [get]
func (h *InventoryHandler) GetVendors(c *gin.Context) {
	vendors, err := h.inventoryService.ListVendors(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, vendors))
}

// GetVendor
// @Summary      Get vendor
// @Tags         vendors
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Vendor ID"
// @Success      200  {object}  response.Response{data=model.Vendor}
// @Failure      404  {object}  response.Response
// @Router       /api/vendors/{id} [get]
func (h *InventoryHandler) GetVendor(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	vendor, err := h.inventoryService.GetVendor(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, vendor))
}

// UpsertVendor creates or replaces a vendor
// @Summary      Upsert vendor
// @Tags         vendors
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.UpsertVendorRequest  true  "Vendor"
// @Success      200      {object}  response.Response{data=model.Vendor}
// @Failure      400      {object}  response.Response
// @Router       /api/vendors [put]
func (h *InventoryHandler) UpsertVendor(c *gin.Context) {
	var req service.UpsertVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	vendor, err := h.inventoryService.UpsertVendor(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, vendor))
}

// RequestPricing emails a vendor a request for current prices
// @Summary      Request vendor pricing
// @Description  Mails the vendor a quote request listing the chosen products, or all of its products when none are given
// @Tags         vendors
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true   "Vendor ID"
// @Param        payload  body      service.PricingRequestInput  false  "Products and notes"
// @Success      200      {object}  response.Response{data=service.PricingRequestResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/vendors/{id}/pricing-request [post]
func (h *InventoryHandler) RequestPricing(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req service.PricingRequestInput
	if !bindOptionalJSON(c, &req) {
		return
	}
	result, err := h.inventoryService.RequestPricing(c.Request.Context(), actorOf(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
