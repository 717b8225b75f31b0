package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"
	"github.com/robertspest/reorderdesk/internal/notify"
	"github.com/robertspest/reorderdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	EventStockAdjusted   = "stock.adjusted"
	EventProductsRenamed = "products.renamed"
	EventPricingSent     = "pricing.requested"
)

// DTOs
type UpsertProductRequest struct {
	ID               string              `json:"id"`
	Name             string              `json:"name" binding:"required"`
	QuantityOnHand   int                 `json:"quantity_on_hand" binding:"min=0"`
	ContainerUnit    string              `json:"container_unit"`
	ReorderThreshold int                 `json:"reorder_threshold" binding:"min=0"`
	ReorderAmount    int                 `json:"reorder_amount" binding:"required,gt=0"`
	VendorID         string              `json:"vendor_id"`
	CostPerUnit      decimal.NullDecimal `json:"cost_per_unit"`
	Location         string              `json:"location"`
	Extension        map[string]string   `json:"extension"`
}

type UpsertVendorRequest struct {
	ID        string            `json:"id"`
	Name      string            `json:"name" binding:"required"`
	Email     string            `json:"email"`
	CCEmails  []string          `json:"cc_emails"`
	Notes     string            `json:"notes"`
	Extension map[string]string `json:"extension"`
}

type AdjustStockRequest struct {
	Delta    int    `json:"delta" binding:"required"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
}

type RenameValueRequest struct {
	Field string `json:"field" binding:"required"` // container_unit or location
	From  string `json:"from" binding:"required"`
	To    string `json:"to" binding:"required"`
}

type RenameValueResult struct {
	Field   string          `json:"field"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Updated []model.Product `json:"updated"`
}

// PricingRequestInput selects the products to quote. No product ids means
// every product of the vendor.
type PricingRequestInput struct {
	ProductIDs []string `json:"product_ids"`
	Notes      string   `json:"notes"`
	ExtraCC    []string `json:"extra_cc"`
}

type PricingRequestResult struct {
	VendorID    uuid.UUID       `json:"vendor_id"`
	Products    []model.Product `json:"products"`
	RequestedBy string          `json:"requested_by"`
	SentAt      time.Time       `json:"sent_at"`
}

// Mailer sends the notices that are not tied to a reorder request.
type Mailer interface {
	SendPricingRequest(ctx context.Context, pr notify.PricingRequest) error
	SendStockUse(ctx context.Context, su notify.StockUse) error
}

type InventoryService interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error)
	UpsertProduct(ctx context.Context, req UpsertProductRequest) (model.Product, error)
	AdjustStock(ctx context.Context, actor Actor, id uuid.UUID, req AdjustStockRequest) (model.Product, error)
	ListVendors(ctx context.Context) ([]model.Vendor, error)
	GetVendor(ctx context.Context, id uuid.UUID) (model.Vendor, error)
	UpsertVendor(ctx context.Context, req UpsertVendorRequest) (model.Vendor, error)
	RenameProductValue(ctx context.Context, req RenameValueRequest) (RenameValueResult, error)
	RequestPricing(ctx context.Context, actor Actor, vendorID uuid.UUID, req PricingRequestInput) (PricingRequestResult, error)
}

type inventoryService struct {
	store     repository.Store
	publisher EventPublisher
	mailer    Mailer
}

// NewInventoryService wires the store. publisher and mailer may be nil.
func NewInventoryService(store repository.Store, publisher EventPublisher, mailer Mailer) InventoryService {
	return &inventoryService{store: store, publisher: publisher, mailer: mailer}
}

func (s *inventoryService) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *inventoryService) GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return model.Product{}, err
	}
	return *p, nil
}

func (s *inventoryService) UpsertProduct(ctx context.Context, req UpsertProductRequest) (model.Product, error) {
	id, err := idOrNew(req.ID, "id")
	if err != nil {
		return model.Product{}, err
	}
	ext, err := model.NormalizeExtension(req.Extension)
	if err != nil {
		return model.Product{}, err
	}
	product := model.Product{
		ID:               id,
		Name:             strings.TrimSpace(req.Name),
		QuantityOnHand:   req.QuantityOnHand,
		ContainerUnit:    strings.TrimSpace(req.ContainerUnit),
		ReorderThreshold: req.ReorderThreshold,
		ReorderAmount:    req.ReorderAmount,
		CostPerUnit:      req.CostPerUnit,
		Location:         strings.TrimSpace(req.Location),
		Extension:        ext,
	}
	if req.VendorID != "" {
		vid, err := uuid.Parse(req.VendorID)
		if err != nil {
			return model.Product{}, apperror.Validation("invalid vendor_id %q", req.VendorID)
		}
		if _, err := s.store.GetVendor(ctx, vid); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return model.Product{}, apperror.Validation("unknown vendor %s", vid)
			}
			return model.Product{}, err
		}
		product.VendorID = &vid
	}
	if err := product.Validate(); err != nil {
		return model.Product{}, err
	}
	if err := s.store.UpsertProduct(ctx, product); err != nil {
		return model.Product{}, err
	}
	log.Info().Str("product_id", id.String()).Str("backend", s.store.Backend()).Msg("product saved")
	return product, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, actor Actor, id uuid.UUID, req AdjustStockRequest) (model.Product, error) {
	if req.Delta == 0 {
		return model.Product{}, apperror.Validation("delta must not be zero")
	}
	var before *model.Product
	if req.Delta < 0 && s.mailer != nil {
		p, err := s.store.GetProduct(ctx, id)
		if err != nil {
			return model.Product{}, err
		}
		before = p
	}
	updated, err := s.store.AdjustStock(ctx, repository.StockAdjustment{
		ProductID: id,
		Delta:     req.Delta,
		User:      actor.Identity,
		Location:  strings.TrimSpace(req.Location),
		Notes:     strings.TrimSpace(req.Notes),
		At:        time.Now().UTC(),
	})
	if err != nil {
		return model.Product{}, err
	}
	log.Info().
		Str("product_id", id.String()).
		Int("delta", req.Delta).
		Int("quantity_on_hand", updated.QuantityOnHand).
		Str("backend", s.store.Backend()).
		Msg("stock adjusted")
	if s.publisher != nil {
		s.publisher.Publish(EventStockAdjusted, updated)
	}
	if before != nil {
		// the adjustment stands even when the notice cannot be sent
		err := s.mailer.SendStockUse(ctx, notify.StockUse{
			Product:     updated,
			User:        actor.Identity,
			Location:    strings.TrimSpace(req.Location),
			Used:        -req.Delta,
			OldQuantity: before.QuantityOnHand,
		})
		if err != nil {
			log.Warn().Err(err).Str("product_id", id.String()).Msg("stock use notice not sent")
		}
	}
	return updated, nil
}

func (s *inventoryService) RenameProductValue(ctx context.Context, req RenameValueRequest) (RenameValueResult, error) {
	field := repository.ProductField(strings.ToLower(strings.TrimSpace(req.Field)))
	if !field.Valid() {
		return RenameValueResult{}, apperror.Validation("field must be %s or %s", repository.FieldContainerUnit, repository.FieldLocation)
	}
	from, to := strings.TrimSpace(req.From), strings.TrimSpace(req.To)
	if from == "" || to == "" {
		return RenameValueResult{}, apperror.Validation("both the old and the new value are required")
	}
	updated, err := s.store.RenameProductValue(ctx, field, from, to)
	if err != nil {
		return RenameValueResult{}, err
	}
	log.Info().
		Str("field", string(field)).
		Str("from", from).
		Str("to", to).
		Int("updated", len(updated)).
		Str("backend", s.store.Backend()).
		Msg("product value renamed")
	result := RenameValueResult{Field: string(field), From: from, To: to, Updated: updated}
	if len(updated) > 0 && s.publisher != nil {
		s.publisher.Publish(EventProductsRenamed, result)
	}
	return result, nil
}

func (s *inventoryService) RequestPricing(ctx context.Context, actor Actor, vendorID uuid.UUID, req PricingRequestInput) (PricingRequestResult, error) {
	if s.mailer == nil {
		return PricingRequestResult{}, apperror.Transport("email is not configured", nil)
	}
	vendor, err := s.store.GetVendor(ctx, vendorID)
	if err != nil {
		return PricingRequestResult{}, err
	}
	if vendor.Email == "" {
		return PricingRequestResult{}, apperror.Validation("vendor %q has no email address", vendor.Name)
	}
	var extraCC []string
	for _, raw := range req.ExtraCC {
		for _, addr := range model.SplitEmails(raw) {
			if _, err := mail.ParseAddress(addr); err != nil {
				return PricingRequestResult{}, apperror.Validation("invalid cc email %q", addr)
			}
			extraCC = append(extraCC, addr)
		}
	}

	all, err := s.store.ListProducts(ctx)
	if err != nil {
		return PricingRequestResult{}, err
	}
	byID := make(map[uuid.UUID]model.Product, len(all))
	var products []model.Product
	for _, p := range all {
		byID[p.ID] = p
		if len(req.ProductIDs) == 0 && p.BelongsTo(vendorID) {
			products = append(products, p)
		}
	}
	for _, raw := range req.ProductIDs {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return PricingRequestResult{}, apperror.Validation("invalid product id %q", raw)
		}
		p, ok := byID[pid]
		if !ok {
			return PricingRequestResult{}, apperror.Validation("unknown product %s", pid)
		}
		if !p.BelongsTo(vendorID) {
			return PricingRequestResult{}, apperror.Validation("product %q is not supplied by %q", p.Name, vendor.Name)
		}
		products = append(products, p)
	}
	if len(products) == 0 {
		return PricingRequestResult{}, apperror.Validation("vendor %q has no products to quote", vendor.Name)
	}

	err = s.mailer.SendPricingRequest(ctx, notify.PricingRequest{
		Vendor:   *vendor,
		Products: products,
		Notes:    strings.TrimSpace(req.Notes),
		ExtraCC:  extraCC,
	})
	if err != nil {
		log.Error().Err(err).Str("vendor_id", vendorID.String()).Msg("pricing request not sent")
		return PricingRequestResult{}, err
	}
	result := PricingRequestResult{
		VendorID:    vendorID,
		Products:    products,
		RequestedBy: actor.Identity,
		SentAt:      time.Now().UTC(),
	}
	log.Info().
		Str("vendor_id", vendorID.String()).
		Int("products", len(products)).
		Str("user", actor.Identity).
		Msg("pricing request sent")
	if s.publisher != nil {
		s.publisher.Publish(EventPricingSent, result)
	}
	return result, nil
}

func (s *inventoryService) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	return s.store.ListVendors(ctx)
}

func (s *inventoryService) GetVendor(ctx context.Context, id uuid.UUID) (model.Vendor, error) {
	v, err := s.store.GetVendor(ctx, id)
	if err != nil {
		return model.Vendor{}, err
	}
	return *v, nil
}

func (s *inventoryService) UpsertVendor(ctx context.Context, req UpsertVendorRequest) (model.Vendor, error) {
	id, err := idOrNew(req.ID, "id")
	if err != nil {
		return model.Vendor{}, err
	}
	ext, err := model.NormalizeExtension(req.Extension)
	if err != nil {
		return model.Vendor{}, err
	}
	var cc []string
	for _, e := range req.CCEmails {
		cc = append(cc, model.SplitEmails(e)...)
	}
	vendor := model.Vendor{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		CCEmails:  cc,
		Notes:     strings.TrimSpace(req.Notes),
		Extension: ext,
	}
	if err := vendor.Validate(); err != nil {
		return model.Vendor{}, err
	}
	if err := s.store.UpsertVendor(ctx, vendor); err != nil {
		return model.Vendor{}, err
	}
	log.Info().Str("vendor_id", id.String()).Str("backend", s.store.Backend()).Msg("vendor saved")
	return vendor, nil
}

func idOrNew(raw, field string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid %s %q", field, raw)
	}
	return id, nil
}
