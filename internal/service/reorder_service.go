package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"
	"github.com/robertspest/reorderdesk/internal/notify"
	"github.com/robertspest/reorderdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Events published after a committed transition.
const (
	EventReorderCreated  = "reorder.created"
	EventReorderSent     = "reorder.sent"
	EventReorderFailed   = "reorder.failed"
	EventReorderRejected = "reorder.rejected"
)

const dateLayout = "2006-01-02"

// --- DTOs ---

type LineItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type CreateReorderRequest struct {
	VendorID string            `json:"vendor_id" binding:"required"`
	Items    []LineItemRequest `json:"items" binding:"required,min=1,dive"`
	Notes    string            `json:"notes"`
}

// DecisionInput is what the approver fills in. Delivery fields are ignored
// on rejection.
type DecisionInput struct {
	DeliveryMethod string `json:"delivery_method"`
	PONumber       string `json:"po_number"`
	PickupBy       string `json:"pickup_by"`
	NeededBy       string `json:"needed_by"`
	DeliveryNotes  string `json:"delivery_notes"`
	VendorNotes    string `json:"vendor_notes"`
	InternalNotes  string `json:"internal_notes"`
}

// Actor identifies who performs an operation and from where.
type Actor struct {
	Identity string
	Origin   string
}

type ProposedLine struct {
	Product  model.Product `json:"product"`
	Quantity int           `json:"quantity"`
}

type LowStockGroup struct {
	Vendor model.Vendor   `json:"vendor"`
	Lines  []ProposedLine `json:"lines"`
}

type LowStockReport struct {
	Groups     []LowStockGroup `json:"groups"`
	Unassigned []model.Product `json:"unassigned"`
}

// ApprovalOutcome reports the recorded transition. A failed delivery is
// not an error: the request is stored as FAILED and DeliveryError says why.
type ApprovalOutcome struct {
	Request       model.ReorderRequest `json:"request"`
	Delivered     bool                 `json:"delivered"`
	DeliveryError string               `json:"delivery_error,omitempty"`
}

// Notifier sends the purchase order of an approved request.
type Notifier interface {
	Send(ctx context.Context, po notify.PurchaseOrder) error
}

// EventPublisher receives reorder lifecycle events.
type EventPublisher interface {
	Publish(event string, data interface{})
}

// --- Interface ---

type ReorderService interface {
	LowStock(ctx context.Context) (LowStockReport, error)
	Create(ctx context.Context, actor Actor, req CreateReorderRequest) (model.ReorderRequest, error)
	Approve(ctx context.Context, id uuid.UUID, actor Actor, in DecisionInput) (ApprovalOutcome, error)
	Reject(ctx context.Context, id uuid.UUID, actor Actor, in DecisionInput) (model.ReorderRequest, error)
	Get(ctx context.Context, id uuid.UUID) (model.ReorderRequest, error)
	List(ctx context.Context, filter repository.ReorderFilter) ([]model.ReorderRequest, error)
}

type reorderService struct {
	store     repository.Store
	notifier  Notifier
	publisher EventPublisher
	locks     *keyedMutex
	now       func() time.Time
}

// NewReorderService builds the workflow engine. publisher may be nil.
func NewReorderService(store repository.Store, notifier Notifier, publisher EventPublisher) ReorderService {
	return &reorderService{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// --- Implementation ---

func (s *reorderService) LowStock(ctx context.Context) (LowStockReport, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return LowStockReport{}, err
	}
	vendors, err := s.store.ListVendors(ctx)
	if err != nil {
		return LowStockReport{}, err
	}

	known := make(map[uuid.UUID]bool, len(vendors))
	for _, v := range vendors {
		known[v.ID] = true
	}
	lines := make(map[uuid.UUID][]ProposedLine)
	report := LowStockReport{Groups: []LowStockGroup{}, Unassigned: []model.Product{}}
	for _, p := range products {
		if !p.IsLowStock() {
			continue
		}
		if !p.HasVendor() || !known[*p.VendorID] {
			report.Unassigned = append(report.Unassigned, p)
			continue
		}
		lines[*p.VendorID] = append(lines[*p.VendorID], ProposedLine{Product: p, Quantity: p.ReorderAmount})
	}
	for _, v := range vendors {
		if l, ok := lines[v.ID]; ok {
			report.Groups = append(report.Groups, LowStockGroup{Vendor: v, Lines: l})
		}
	}
	return report, nil
}

func (s *reorderService) Create(ctx context.Context, actor Actor, req CreateReorderRequest) (model.ReorderRequest, error) {
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		return model.ReorderRequest{}, apperror.Validation("invalid vendor_id %q", req.VendorID)
	}
	vendor, err := s.store.GetVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return model.ReorderRequest{}, apperror.Validation("unknown vendor %s", vendorID)
		}
		return model.ReorderRequest{}, err
	}
	if len(req.Items) == 0 {
		return model.ReorderRequest{}, apperror.Validation("at least one line item is required")
	}

	items := make([]model.LineItem, 0, len(req.Items))
	seen := make(map[uuid.UUID]bool, len(req.Items))
	for _, it := range req.Items {
		pid, err := uuid.Parse(it.ProductID)
		if err != nil {
			return model.ReorderRequest{}, apperror.Validation("invalid product_id %q", it.ProductID)
		}
		if it.Quantity <= 0 {
			return model.ReorderRequest{}, apperror.Validation("quantity for product %s must be positive", pid)
		}
		if seen[pid] {
			return model.ReorderRequest{}, apperror.Validation("product %s is listed twice", pid)
		}
		seen[pid] = true

		product, err := s.store.GetProduct(ctx, pid)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return model.ReorderRequest{}, apperror.Validation("unknown product %s", pid)
			}
			return model.ReorderRequest{}, err
		}
		if !product.BelongsTo(vendor.ID) {
			return model.ReorderRequest{}, apperror.Validation("product %q is not supplied by %q", product.Name, vendor.Name)
		}
		items = append(items, model.LineItem{ProductID: pid, Quantity: it.Quantity})
	}

	request := model.ReorderRequest{
		ID:          uuid.New(),
		CreatedAt:   s.now(),
		CreatedBy:   actor.Identity,
		CreatedFrom: actor.Origin,
		VendorID:    vendor.ID,
		Items:       items,
		Notes:       strings.TrimSpace(req.Notes),
		Status:      model.StatusPending,
	}
	if err := s.store.AppendReorderRequest(ctx, request); err != nil {
		return model.ReorderRequest{}, fmt.Errorf("failed to record reorder request: %w", err)
	}

	log.Info().
		Str("request_id", request.ID.String()).
		Str("vendor_id", vendor.ID.String()).
		Str("status", string(request.Status)).
		Str("backend", s.store.Backend()).
		Int("items", len(items)).
		Msg("reorder request created")
	s.publish(EventReorderCreated, request)
	return request, nil
}

func (s *reorderService) Approve(ctx context.Context, id uuid.UUID, actor Actor, in DecisionInput) (ApprovalOutcome, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	req, err := s.pending(ctx, id)
	if err != nil {
		return ApprovalOutcome{}, err
	}
	rec, err := s.approvalRecord(req.ID, actor, in)
	if err != nil {
		return ApprovalOutcome{}, err
	}

	deliveryErr := s.dispatch(ctx, req, rec)
	status := model.StatusSent
	if deliveryErr != nil {
		status = model.StatusFailed
	}

	if err := s.store.UpdateReorderRequestStatus(ctx, id, status, rec); err != nil {
		if deliveryErr == nil {
			log.Error().Err(err).Str("request_id", id.String()).Msg("purchase order sent but the transition was not recorded")
		}
		return ApprovalOutcome{}, err
	}

	updated := req.Decide(status, rec)
	outcome := ApprovalOutcome{Request: updated, Delivered: deliveryErr == nil}
	event := EventReorderSent
	if deliveryErr != nil {
		outcome.DeliveryError = deliveryErr.Error()
		event = EventReorderFailed
		log.Warn().Err(deliveryErr).
			Str("request_id", id.String()).
			Str("vendor_id", req.VendorID.String()).
			Str("status", string(status)).
			Str("backend", s.store.Backend()).
			Msg("purchase order delivery failed")
	} else {
		log.Info().
			Str("request_id", id.String()).
			Str("vendor_id", req.VendorID.String()).
			Str("status", string(status)).
			Str("po_number", rec.PONumber).
			Str("backend", s.store.Backend()).
			Msg("reorder request approved")
	}
	s.publish(event, updated)
	return outcome, nil
}

func (s *reorderService) Reject(ctx context.Context, id uuid.UUID, actor Actor, in DecisionInput) (model.ReorderRequest, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	req, err := s.pending(ctx, id)
	if err != nil {
		return model.ReorderRequest{}, err
	}
	rec, err := s.approvalRecord(req.ID, actor, in)
	if err != nil {
		return model.ReorderRequest{}, err
	}
	if err := s.store.UpdateReorderRequestStatus(ctx, id, model.StatusRejected, rec); err != nil {
		return model.ReorderRequest{}, err
	}

	updated := req.Decide(model.StatusRejected, rec)
	log.Info().
		Str("request_id", id.String()).
		Str("vendor_id", req.VendorID.String()).
		Str("status", string(updated.Status)).
		Str("backend", s.store.Backend()).
		Msg("reorder request rejected")
	s.publish(EventReorderRejected, updated)
	return updated, nil
}

func (s *reorderService) Get(ctx context.Context, id uuid.UUID) (model.ReorderRequest, error) {
	req, err := s.store.GetReorderRequest(ctx, id)
	if err != nil {
		return model.ReorderRequest{}, err
	}
	return *req, nil
}

func (s *reorderService) List(ctx context.Context, filter repository.ReorderFilter) ([]model.ReorderRequest, error) {
	return s.store.ListReorderRequests(ctx, filter)
}

func (s *reorderService) pending(ctx context.Context, id uuid.UUID) (model.ReorderRequest, error) {
	req, err := s.store.GetReorderRequest(ctx, id)
	if err != nil {
		return model.ReorderRequest{}, err
	}
	if req.Status != model.StatusPending {
		return model.ReorderRequest{}, apperror.InvalidTransition("reorder request %s is already %s", id, req.Status)
	}
	return *req, nil
}

func (s *reorderService) approvalRecord(id uuid.UUID, actor Actor, in DecisionInput) (model.ApprovalRecord, error) {
	method := model.DeliveryMethod(strings.ToUpper(strings.TrimSpace(in.DeliveryMethod)))
	if method == "" {
		method = model.DeliveryShip
	}
	if !method.Valid() {
		return model.ApprovalRecord{}, apperror.Validation("unknown delivery method %q", in.DeliveryMethod)
	}
	pickupBy, err := parseDate("pickup_by", in.PickupBy)
	if err != nil {
		return model.ApprovalRecord{}, err
	}
	neededBy, err := parseDate("needed_by", in.NeededBy)
	if err != nil {
		return model.ApprovalRecord{}, err
	}

	now := s.now()
	po := strings.TrimSpace(in.PONumber)
	if po == "" {
		po = generatePONumber(now, id)
	}
	return model.ApprovalRecord{
		DecidedAt:      now,
		DecidedBy:      actor.Identity,
		DecidedFrom:    actor.Origin,
		DeliveryMethod: method,
		PONumber:       po,
		PickupBy:       pickupBy,
		NeededBy:       neededBy,
		DeliveryNotes:  strings.TrimSpace(in.DeliveryNotes),
		VendorNotes:    strings.TrimSpace(in.VendorNotes),
		InternalNotes:  strings.TrimSpace(in.InternalNotes),
	}, nil
}

// dispatch builds the purchase order and hands it to the notifier. Any
// failure to do so is a delivery failure.
func (s *reorderService) dispatch(ctx context.Context, req model.ReorderRequest, rec model.ApprovalRecord) error {
	vendor, err := s.store.GetVendor(ctx, req.VendorID)
	if err != nil {
		return fmt.Errorf("load vendor %s: %w", req.VendorID, err)
	}
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uuid.UUID]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]notify.Line, 0, len(req.Items))
	for _, it := range req.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			p = model.Product{ID: it.ProductID, Name: it.ProductID.String()}
		}
		lines = append(lines, notify.Line{Product: p, Quantity: it.Quantity})
	}
	return s.notifier.Send(ctx, notify.PurchaseOrder{
		Request:  req,
		Vendor:   *vendor,
		Lines:    lines,
		Approval: rec,
	})
}

func (s *reorderService) publish(event string, data interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(event, data)
	}
}

func parseDate(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(dateLayout, raw); err != nil {
		return "", apperror.Validation("%s must be a YYYY-MM-DD date, got %q", field, raw)
	}
	return raw, nil
}

// generatePONumber returns PO-YYYYMMDD-XXXXXXXX from the approval date and
// the request id.
func generatePONumber(at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("PO-%s-%s", at.Format("20060102"), strings.ToUpper(id.String()[:8]))
}
