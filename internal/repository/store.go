package repository

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/google/uuid"
)

// Backend names accepted by Open.
const (
	BackendWorkbook   = "workbook"
	BackendRelational = "relational"
)

// Store is the capability set every inventory backend provides. Writes are
// synchronous; a returned error means nothing was applied.
type Store interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	UpsertProduct(ctx context.Context, product model.Product) error
	AdjustStock(ctx context.Context, adj StockAdjustment) (model.Product, error)
	// RenameProductValue replaces from with to in field of every product
	// whose value equals from, in one write, and returns the changed products.
	RenameProductValue(ctx context.Context, field ProductField, from, to string) ([]model.Product, error)

	ListVendors(ctx context.Context) ([]model.Vendor, error)
	GetVendor(ctx context.Context, id uuid.UUID) (*model.Vendor, error)
	UpsertVendor(ctx context.Context, vendor model.Vendor) error

	AppendReorderRequest(ctx context.Context, req model.ReorderRequest) error
	GetReorderRequest(ctx context.Context, id uuid.UUID) (*model.ReorderRequest, error)
	// UpdateReorderRequestStatus is a compare-and-set against PENDING: the
	// status and approval record are written together or not at all.
	UpdateReorderRequestStatus(ctx context.Context, id uuid.UUID, status model.ReorderStatus, rec model.ApprovalRecord) error
	ListReorderRequests(ctx context.Context, filter ReorderFilter) ([]model.ReorderRequest, error)

	ListTransactions(ctx context.Context) ([]model.StockTransaction, error)

	Backend() string
	Close() error
}

// ReorderFilter narrows ListReorderRequests. Zero fields are ignored and the
// rest are combined with AND. From is inclusive, To is exclusive.
type ReorderFilter struct {
	ID             *uuid.UUID
	From           *time.Time
	To             *time.Time
	VendorID       *uuid.UUID
	Status         model.ReorderStatus
	PONumber       string
	DeliveryMethod model.DeliveryMethod
	PickupBy       string
	ApprovedBy     string
}

func (f ReorderFilter) Matches(r model.ReorderRequest) bool {
	if f.ID != nil && r.ID != *f.ID {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !r.CreatedAt.Before(*f.To) {
		return false
	}
	if f.VendorID != nil && r.VendorID != *f.VendorID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	needsApproval := f.PONumber != "" || f.DeliveryMethod != "" || f.PickupBy != "" || f.ApprovedBy != ""
	if !needsApproval {
		return true
	}
	a := r.Approval
	if a == nil {
		return false
	}
	if f.PONumber != "" && a.PONumber != f.PONumber {
		return false
	}
	if f.DeliveryMethod != "" && a.DeliveryMethod != f.DeliveryMethod {
		return false
	}
	if f.PickupBy != "" && a.PickupBy != f.PickupBy {
		return false
	}
	if f.ApprovedBy != "" && a.DecidedBy != f.ApprovedBy {
		return false
	}
	return true
}

// StockAdjustment changes a product's quantity and appends a transactions
// log row in the same write.
type StockAdjustment struct {
	ProductID uuid.UUID
	Delta     int
	User      string
	Location  string
	Notes     string
	At        time.Time
}

// apply returns the adjusted product (clamped at zero) and the log row.
func (a StockAdjustment) apply(p model.Product) (model.Product, model.StockTransaction) {
	qty := p.QuantityOnHand + a.Delta
	if qty < 0 {
		qty = 0
	}
	p.QuantityOnHand = qty
	location := a.Location
	if location == "" {
		location = p.Location
	}
	tx := model.StockTransaction{Cells: []model.Cell{
		{Column: model.TxColTimestamp, Value: a.At.UTC().Format(time.RFC3339Nano)},
		{Column: model.TxColUser, Value: a.User},
		{Column: model.TxColProductName, Value: p.Name},
		{Column: model.TxColDelta, Value: strconv.Itoa(a.Delta)},
		{Column: model.TxColNewQuantity, Value: strconv.Itoa(qty)},
		{Column: model.TxColLocation, Value: location},
		{Column: model.TxColNotes, Value: a.Notes},
	}}
	return p, tx
}

// ProductField is a free-text product attribute shared by many products.
type ProductField string

const (
	FieldContainerUnit ProductField = "container_unit"
	FieldLocation      ProductField = "location"
)

func (f ProductField) Valid() bool {
	return f == FieldContainerUnit || f == FieldLocation
}

func (f ProductField) value(p model.Product) string {
	if f == FieldLocation {
		return p.Location
	}
	return p.ContainerUnit
}

func (f ProductField) set(p model.Product, v string) model.Product {
	if f == FieldLocation {
		p.Location = v
	} else {
		p.ContainerUnit = v
	}
	return p
}

// Dataset is a full copy of every entity of a store.
type Dataset struct {
	Products     []model.Product
	Vendors      []model.Vendor
	Requests     []model.ReorderRequest
	Transactions []model.StockTransaction
}

// RowIssue describes a document row that could not be turned into an entity.
type RowIssue struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"` // 1-based spreadsheet row
	Reason string `json:"reason"`
}

func sortProducts(ps []model.Product) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := strings.ToLower(ps[i].Name), strings.ToLower(ps[j].Name)
		if a != b {
			return a < b
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}

func sortVendors(vs []model.Vendor) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := strings.ToLower(vs[i].Name), strings.ToLower(vs[j].Name)
		if a != b {
			return a < b
		}
		return vs[i].ID.String() < vs[j].ID.String()
	})
}

// sortRequests orders newest first.
func sortRequests(rs []model.ReorderRequest) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID.String() < rs[j].ID.String()
	})
}
