package model

import (
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"

	"github.com/google/uuid"
)

// ReorderStatus values. PENDING is the only non-terminal state.
type ReorderStatus string

const (
	StatusPending  ReorderStatus = "PENDING"
	StatusSent     ReorderStatus = "SENT"
	StatusFailed   ReorderStatus = "FAILED"
	StatusRejected ReorderStatus = "REJECTED"
)

func (s ReorderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusRejected:
		return true
	}
	return false
}

func (s ReorderStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusRejected
}

// CanTransition reports whether from -> to is an edge of the reorder state machine.
func CanTransition(from, to ReorderStatus) bool {
	return from == StatusPending && to.Terminal()
}

type DeliveryMethod string

const (
	DeliveryShip   DeliveryMethod = "SHIP"
	DeliveryPickup DeliveryMethod = "PICKUP"
)

func (d DeliveryMethod) Valid() bool {
	return d == DeliveryShip || d == DeliveryPickup
}

// LineItem is one product line of a reorder request
type LineItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// ApprovalRecord is written exactly once, together with the terminal status.
type ApprovalRecord struct {
	DecidedAt      time.Time      `json:"decided_at"`
	DecidedBy      string         `json:"decided_by"`
	DecidedFrom    string         `json:"decided_from"`
	DeliveryMethod DeliveryMethod `json:"delivery_method,omitempty"`
	PONumber       string         `json:"po_number,omitempty"`
	PickupBy       string         `json:"pickup_by,omitempty"` // YYYY-MM-DD
	NeededBy       string         `json:"needed_by,omitempty"` // YYYY-MM-DD
	DeliveryNotes  string         `json:"delivery_notes,omitempty"`
	VendorNotes    string         `json:"vendor_notes,omitempty"`
	InternalNotes  string         `json:"internal_notes,omitempty"`
}

// ReorderRequest is a vendor-scoped replenishment proposal and its audit trail
type ReorderRequest struct {
	ID          uuid.UUID         `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	CreatedBy   string            `json:"created_by"`
	CreatedFrom string            `json:"created_from"`
	VendorID    uuid.UUID         `json:"vendor_id"`
	Items       []LineItem        `json:"items"`
	Notes       string            `json:"notes"`
	Status      ReorderStatus     `json:"status"`
	Approval    *ApprovalRecord   `json:"approval,omitempty"`
	Extension   map[string]string `json:"extension,omitempty"`
}

// Decide returns a copy of r moved to status with the approval record attached.
// Items and creation fields are never touched.
func (r ReorderRequest) Decide(status ReorderStatus, rec ApprovalRecord) ReorderRequest {
	out := r
	out.Status = status
	out.Approval = &rec
	return out
}

// Validate checks the structural invariants of a stored request.
func (r ReorderRequest) Validate() error {
	if r.ID == uuid.Nil {
		return apperror.Validation("reorder request id is required")
	}
	if r.VendorID == uuid.Nil {
		return apperror.Validation("reorder request %s: vendor is required", r.ID)
	}
	if len(r.Items) == 0 {
		return apperror.Validation("reorder request %s: at least one line item is required", r.ID)
	}
	for _, it := range r.Items {
		if it.ProductID == uuid.Nil {
			return apperror.Validation("reorder request %s: line item without product", r.ID)
		}
		if it.Quantity <= 0 {
			return apperror.Validation("reorder request %s: quantity must be positive", r.ID)
		}
	}
	if !r.Status.Valid() {
		return apperror.Validation("reorder request %s: unknown status %q", r.ID, r.Status)
	}
	if r.Status.Terminal() != (r.Approval != nil) {
		return apperror.Validation("reorder request %s: approval record must be present exactly when the status is terminal", r.ID)
	}
	return validateExtension("reorder request "+r.ID.String(), r.Extension)
}
