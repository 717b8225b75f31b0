package model

import (
	"strconv"
	"strings"

	"github.com/robertspest/reorderdesk/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents an item in the master inventory
type Product struct {
	ID               uuid.UUID           `json:"id"`
	Name             string              `json:"name"`
	QuantityOnHand   int                 `json:"quantity_on_hand"`
	ContainerUnit    string              `json:"container_unit"`
	ReorderThreshold int                 `json:"reorder_threshold"`
	ReorderAmount    int                 `json:"reorder_amount"`
	VendorID         *uuid.UUID          `json:"vendor_id"` // nil when unassigned
	CostPerUnit      decimal.NullDecimal `json:"cost_per_unit"`
	Location         string              `json:"location"`
	Extension        map[string]string   `json:"extension,omitempty"`
}

// IsLowStock reports whether quantity on hand has reached the reorder threshold.
func (p Product) IsLowStock() bool {
	return p.QuantityOnHand <= p.ReorderThreshold
}

func (p Product) HasVendor() bool {
	return p.VendorID != nil && *p.VendorID != uuid.Nil
}

// BelongsTo reports whether the product is supplied by vendorID.
func (p Product) BelongsTo(vendorID uuid.UUID) bool {
	return p.HasVendor() && *p.VendorID == vendorID
}

func (p Product) Validate() error {
	if p.ID == uuid.Nil {
		return apperror.Validation("product id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperror.Validation("product name is required")
	}
	if p.QuantityOnHand < 0 {
		return apperror.Validation("product %q: quantity on hand must not be negative", p.Name)
	}
	if p.ReorderThreshold < 0 {
		return apperror.Validation("product %q: reorder threshold must not be negative", p.Name)
	}
	if p.ReorderAmount <= 0 {
		return apperror.Validation("product %q: reorder amount must be positive", p.Name)
	}
	if p.CostPerUnit.Valid && p.CostPerUnit.Decimal.IsNegative() {
		return apperror.Validation("product %q: cost per unit must not be negative", p.Name)
	}
	return validateExtension("product "+strconv.Quote(p.Name), p.Extension)
}

// Cell is one column/value pair of a passthrough row.
type Cell struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// StockTransaction is a row of the transactions log. The log belongs to
// another tool, so rows are kept as ordered cells rather than typed fields.
type StockTransaction struct {
	Cells []Cell `json:"cells"`
}

// Transaction log columns written by stock adjustments.
const (
	TxColTimestamp   = "Timestamp"
	TxColUser        = "User"
	TxColProductName = "Product Name"
	TxColDelta       = "Delta"
	TxColNewQuantity = "New Quantity on Hand"
	TxColLocation    = "Location"
	TxColNotes       = "Notes"
)

// Get returns the first value stored under any of the given columns.
func (t StockTransaction) Get(columns ...string) string {
	for _, col := range columns {
		for _, c := range t.Cells {
			if c.Column == col {
				return c.Value
			}
		}
	}
	return ""
}
