package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/robertspest/reorderdesk/internal/database"
	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "reorder.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newTestRelationalStore(t *testing.T) *RelationalStore {
	return NewRelationalStore(newTestDB(t))
}

func newTestWorkbookStore(t *testing.T) *WorkbookStore {
	return NewWorkbookStore(filepath.Join(t.TempDir(), "inventory.xlsx"), 5*time.Second)
}

// backends runs fn once per Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run(BackendRelational, func(t *testing.T) { fn(t, newTestRelationalStore(t)) })
	t.Run(BackendWorkbook, func(t *testing.T) { fn(t, newTestWorkbookStore(t)) })
}

func testVendor(name string) model.Vendor {
	return model.Vendor{
		ID:       uuid.New(),
		Name:     name,
		Email:    "orders@" + name + ".example.com",
		CCEmails: []string{"b@" + name + ".example.com", "a@" + name + ".example.com"},
		Notes:    "net 30",
	}
}

func testProduct(name string, vendorID *uuid.UUID, qty, threshold, amount int) model.Product {
	return model.Product{
		ID:               uuid.New(),
		Name:             name,
		QuantityOnHand:   qty,
		ContainerUnit:    "Case",
		ReorderThreshold: threshold,
		ReorderAmount:    amount,
		VendorID:         vendorID,
		CostPerUnit:      decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
		Location:         "Aisle 3",
	}
}

func testRequest(vendorID uuid.UUID, created time.Time, items ...model.LineItem) model.ReorderRequest {
	return model.ReorderRequest{
		ID:          uuid.New(),
		CreatedAt:   created.UTC().Truncate(time.Microsecond),
		CreatedBy:   "kitchen@example.com",
		CreatedFrom: "10.0.0.7",
		VendorID:    vendorID,
		Items:       items,
		Notes:       "weekly order",
		Status:      model.StatusPending,
	}
}

func testApproval(at time.Time) model.ApprovalRecord {
	return model.ApprovalRecord{
		DecidedAt:      at.UTC().Truncate(time.Microsecond),
		DecidedBy:      "manager@example.com",
		DecidedFrom:    "10.0.0.9",
		DeliveryMethod: model.DeliveryPickup,
		PONumber:       "PO-1001",
		PickupBy:       "2026-05-04",
		NeededBy:       "2026-05-06",
		DeliveryNotes:  "dock B",
		VendorNotes:    "call on arrival",
		InternalNotes:  "urgent",
	}
}

// sameJSON compares entities by their JSON form, which is what both
// backends persist.
func sameJSON(t *testing.T, label string, got, want interface{}) {
	t.Helper()
	g, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("%s: marshal got: %v", label, err)
	}
	w, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("%s: marshal want: %v", label, err)
	}
	if string(g) != string(w) {
		t.Errorf("%s mismatch\n got: %s\nwant: %s", label, g, w)
	}
}

func seed(t *testing.T, s Store, vendors []model.Vendor, products []model.Product) {
	t.Helper()
	ctx := context.Background()
	for _, v := range vendors {
		if err := s.UpsertVendor(ctx, v); err != nil {
			t.Fatalf("upsert vendor %s: %v", v.Name, err)
		}
	}
	for _, p := range products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatalf("upsert product %s: %v", p.Name, err)
		}
	}
}
