package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/robertspest/reorderdesk/internal/database"
	"github.com/robertspest/reorderdesk/internal/model"
	"github.com/robertspest/reorderdesk/internal/notify"
	"github.com/robertspest/reorderdesk/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type mockNotifier struct {
	mu    sync.Mutex
	calls []notify.PurchaseOrder
	err   error
	delay time.Duration
}

func (m *mockNotifier) Send(ctx context.Context, po notify.PurchaseOrder) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, po)
	return m.err
}

func (m *mockNotifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockMailer struct {
	mu       sync.Mutex
	pricing  []notify.PricingRequest
	stockUse []notify.StockUse
	err      error
}

func (m *mockMailer) SendPricingRequest(ctx context.Context, pr notify.PricingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pricing = append(m.pricing, pr)
	return m.err
}

func (m *mockMailer) SendStockUse(ctx context.Context, su notify.StockUse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stockUse = append(m.stockUse, su)
	return m.err
}

type mockPublisher struct {
	mu     sync.Mutex
	events []string
}

func (m *mockPublisher) Publish(event string, data interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func newTestRelationalStore(t *testing.T) *repository.RelationalStore {
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
	return repository.NewRelationalStore(db)
}

func newTestWorkbookStore(t *testing.T) *repository.WorkbookStore {
	return repository.NewWorkbookStore(filepath.Join(t.TempDir(), "inventory.xlsx"), 5*time.Second)
}

func backends(t *testing.T, fn func(t *testing.T, s repository.Store)) {
	t.Run(repository.BackendRelational, func(t *testing.T) { fn(t, newTestRelationalStore(t)) })
	t.Run(repository.BackendWorkbook, func(t *testing.T) { fn(t, newTestWorkbookStore(t)) })
}

// fixture is a small catalogue: two vendors, three products of V1 and one
// of V2, plus a product without a vendor.
type fixture struct {
	v1, v2                     model.Vendor
	flour, sugar, yeast, boxes model.Product
	twine                      model.Product
}

func seedFixture(t *testing.T, s repository.Store) fixture {
	t.Helper()
	fx := fixture{
		v1: model.Vendor{ID: uuid.New(), Name: "Acme Foods", Email: "orders@acme.example.com", CCEmails: []string{"b@acme.example.com", "a@acme.example.com"}},
		v2: model.Vendor{ID: uuid.New(), Name: "Box Co", Email: "sales@boxco.example.com"},
	}
	fx.flour = model.Product{ID: uuid.New(), Name: "Flour", QuantityOnHand: 2, ContainerUnit: "Bag", ReorderThreshold: 5, ReorderAmount: 10, VendorID: &fx.v1.ID, CostPerUnit: decimal.NewNullDecimal(decimal.RequireFromString("18.75")), Location: "Dry"}
	fx.sugar = model.Product{ID: uuid.New(), Name: "Sugar", QuantityOnHand: 6, ContainerUnit: "Bag", ReorderThreshold: 5, ReorderAmount: 10, VendorID: &fx.v1.ID, CostPerUnit: decimal.NewNullDecimal(decimal.RequireFromString("9.10")), Location: "Dry"}
	fx.yeast = model.Product{ID: uuid.New(), Name: "Yeast", QuantityOnHand: 5, ContainerUnit: "Jar", ReorderThreshold: 5, ReorderAmount: 3, VendorID: &fx.v1.ID, Location: "Cooler"}
	fx.boxes = model.Product{ID: uuid.New(), Name: "Cake Boxes", QuantityOnHand: 0, ContainerUnit: "Case", ReorderThreshold: 1, ReorderAmount: 2, VendorID: &fx.v2.ID, CostPerUnit: decimal.NewNullDecimal(decimal.RequireFromString("30"))}
	fx.twine = model.Product{ID: uuid.New(), Name: "Twine", QuantityOnHand: 0, ContainerUnit: "Roll", ReorderThreshold: 1, ReorderAmount: 1}

	ctx := context.Background()
	for _, v := range []model.Vendor{fx.v1, fx.v2} {
		if err := s.UpsertVendor(ctx, v); err != nil {
			t.Fatalf("seed vendor: %v", err)
		}
	}
	for _, p := range []model.Product{fx.flour, fx.sugar, fx.yeast, fx.boxes, fx.twine} {
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	return fx
}

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
