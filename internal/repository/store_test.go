package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/google/uuid"
)

func TestStore_ProductsAndVendorsRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		acme := testVendor("acme")
		bolt := testVendor("bolt")
		flour := testProduct("Flour", &acme.ID, 4, 5, 10)
		apron := testProduct("apron", &bolt.ID, 20, 5, 2)
		loose := testProduct("Twine", nil, 1, 2, 3)
		loose.Extension = map[string]string{"Shelf Life": "12 months"}
		seed(t, s, []model.Vendor{bolt, acme}, []model.Product{flour, apron, loose})

		products, err := s.ListProducts(ctx)
		if err != nil {
			t.Fatalf("list products: %v", err)
		}
		sameJSON(t, "products", products, []model.Product{apron, flour, loose})

		got, err := s.GetProduct(ctx, loose.ID)
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		sameJSON(t, "product", got, loose)

		vendors, err := s.ListVendors(ctx)
		if err != nil {
			t.Fatalf("list vendors: %v", err)
		}
		sameJSON(t, "vendors", vendors, []model.Vendor{acme, bolt})

		flour.QuantityOnHand = 40
		if err := s.UpsertProduct(ctx, flour); err != nil {
			t.Fatalf("update product: %v", err)
		}
		got, err = s.GetProduct(ctx, flour.ID)
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		if got.QuantityOnHand != 40 {
			t.Errorf("expected quantity 40, got %d", got.QuantityOnHand)
		}
	})
}

func TestStore_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.GetProduct(ctx, uuid.New()); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("product: expected not found, got %v", err)
		}
		if _, err := s.GetVendor(ctx, uuid.New()); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("vendor: expected not found, got %v", err)
		}
		if _, err := s.GetReorderRequest(ctx, uuid.New()); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("request: expected not found, got %v", err)
		}
		err := s.UpdateReorderRequestStatus(ctx, uuid.New(), model.StatusSent, testApproval(time.Now()))
		if !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("update: expected not found, got %v", err)
		}
	})
}

func TestStore_RejectsInvalidWrites(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		bad := testProduct("Salt", nil, 1, 1, 0)
		if err := s.UpsertProduct(ctx, bad); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("expected validation error for zero reorder amount, got %v", err)
		}
		v := testVendor("acme")
		v.Email = "not an address"
		if err := s.UpsertVendor(ctx, v); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("expected validation error for bad email, got %v", err)
		}
		products, err := s.ListProducts(ctx)
		if err != nil {
			t.Fatalf("list products: %v", err)
		}
		if len(products) != 0 {
			t.Errorf("expected nothing written, got %d products", len(products))
		}
	})
}

func TestStore_StatusUpdateIsCompareAndSet(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		acme := testVendor("acme")
		flour := testProduct("Flour", &acme.ID, 4, 5, 10)
		seed(t, s, []model.Vendor{acme}, []model.Product{flour})

		req := testRequest(acme.ID, time.Now(), model.LineItem{ProductID: flour.ID, Quantity: 10})
		if err := s.AppendReorderRequest(ctx, req); err != nil {
			t.Fatalf("append: %v", err)
		}

		approval := testApproval(time.Now())
		if err := s.UpdateReorderRequestStatus(ctx, req.ID, model.StatusSent, approval); err != nil {
			t.Fatalf("first transition: %v", err)
		}

		err := s.UpdateReorderRequestStatus(ctx, req.ID, model.StatusRejected, testApproval(time.Now()))
		if !errors.Is(err, apperror.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}

		got, err := s.GetReorderRequest(ctx, req.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		sameJSON(t, "request", got, req.Decide(model.StatusSent, approval))

		if err := s.UpdateReorderRequestStatus(ctx, req.ID, model.StatusPending, approval); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("expected validation error for non-terminal target, got %v", err)
		}
	})
}

func TestStore_ConcurrentStatusUpdates(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		acme := testVendor("acme")
		flour := testProduct("Flour", &acme.ID, 4, 5, 10)
		seed(t, s, []model.Vendor{acme}, []model.Product{flour})

		req := testRequest(acme.ID, time.Now(), model.LineItem{ProductID: flour.ID, Quantity: 10})
		if err := s.AppendReorderRequest(ctx, req); err != nil {
			t.Fatalf("append: %v", err)
		}

		const workers = 6
		var wg sync.WaitGroup
		var applied, rejected atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				status := model.StatusSent
				if i%2 == 1 {
					status = model.StatusRejected
				}
				err := s.UpdateReorderRequestStatus(ctx, req.ID, status, testApproval(time.Now()))
				switch {
				case err == nil:
					applied.Add(1)
				case errors.Is(err, apperror.ErrInvalidTransition):
					rejected.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if applied.Load() != 1 {
			t.Errorf("expected exactly one applied transition, got %d", applied.Load())
		}
		if rejected.Load() != workers-1 {
			t.Errorf("expected %d invalid transitions, got %d", workers-1, rejected.Load())
		}
	})
}

func TestStore_ListReorderRequestsFilter(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		acme := testVendor("acme")
		bolt := testVendor("bolt")
		flour := testProduct("Flour", &acme.ID, 4, 5, 10)
		nails := testProduct("Nails", &bolt.ID, 0, 5, 100)
		seed(t, s, []model.Vendor{acme, bolt}, []model.Product{flour, nails})

		base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		r1 := testRequest(acme.ID, base, model.LineItem{ProductID: flour.ID, Quantity: 10})
		r2 := testRequest(bolt.ID, base.Add(24*time.Hour), model.LineItem{ProductID: nails.ID, Quantity: 100})
		r3 := testRequest(acme.ID, base.Add(48*time.Hour), model.LineItem{ProductID: flour.ID, Quantity: 5})
		for _, r := range []model.ReorderRequest{r1, r2, r3} {
			if err := s.AppendReorderRequest(ctx, r); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		approval := testApproval(base.Add(50 * time.Hour))
		if err := s.UpdateReorderRequestStatus(ctx, r3.ID, model.StatusSent, approval); err != nil {
			t.Fatalf("approve: %v", err)
		}

		from := base.Add(24 * time.Hour)
		to := base.Add(48 * time.Hour)
		cases := []struct {
			name   string
			filter ReorderFilter
			want   []uuid.UUID
		}{
			{"all newest first", ReorderFilter{}, []uuid.UUID{r3.ID, r2.ID, r1.ID}},
			{"vendor", ReorderFilter{VendorID: &acme.ID}, []uuid.UUID{r3.ID, r1.ID}},
			{"status", ReorderFilter{Status: model.StatusPending}, []uuid.UUID{r2.ID, r1.ID}},
			{"date range end exclusive", ReorderFilter{From: &from, To: &to}, []uuid.UUID{r2.ID}},
			{"po number", ReorderFilter{PONumber: "PO-1001"}, []uuid.UUID{r3.ID}},
			{"delivery and approver", ReorderFilter{DeliveryMethod: model.DeliveryPickup, ApprovedBy: "manager@example.com"}, []uuid.UUID{r3.ID}},
			{"pickup by", ReorderFilter{PickupBy: "2026-05-04", VendorID: &bolt.ID}, nil},
			{"id", ReorderFilter{ID: &r2.ID}, []uuid.UUID{r2.ID}},
		}
		for _, tc := range cases {
			got, err := s.ListReorderRequests(ctx, tc.filter)
			if err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			if len(got) != len(tc.want) {
				t.Errorf("%s: expected %d requests, got %d", tc.name, len(tc.want), len(got))
				continue
			}
			for i := range got {
				if got[i].ID != tc.want[i] {
					t.Errorf("%s: position %d: expected %s, got %s", tc.name, i, tc.want[i], got[i].ID)
				}
			}
		}
	})
}

func TestStore_AdjustStockClampsAndLogs(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		flour := testProduct("Flour", nil, 4, 5, 10)
		seed(t, s, nil, []model.Product{flour})

		at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		updated, err := s.AdjustStock(ctx, StockAdjustment{ProductID: flour.ID, Delta: -7, User: "sam", Notes: "spoiled", At: at})
		if err != nil {
			t.Fatalf("adjust: %v", err)
		}
		if updated.QuantityOnHand != 0 {
			t.Errorf("expected quantity clamped to 0, got %d", updated.QuantityOnHand)
		}

		stored, err := s.GetProduct(ctx, flour.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if stored.QuantityOnHand != 0 {
			t.Errorf("expected stored quantity 0, got %d", stored.QuantityOnHand)
		}

		txs, err := s.ListTransactions(ctx)
		if err != nil {
			t.Fatalf("list transactions: %v", err)
		}
		if len(txs) != 1 {
			t.Fatalf("expected 1 transaction row, got %d", len(txs))
		}
		row := txs[0]
		if row.Get(model.TxColDelta) != "-7" || row.Get(model.TxColNewQuantity) != "0" {
			t.Errorf("unexpected transaction row: %+v", row.Cells)
		}
		if row.Get(model.TxColLocation) != "Aisle 3" || row.Get(model.TxColProductName) != "Flour" {
			t.Errorf("unexpected transaction row: %+v", row.Cells)
		}

		if _, err := s.AdjustStock(ctx, StockAdjustment{ProductID: uuid.New(), Delta: 1, At: at}); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestOpen(t *testing.T) {
	if _, err := Open(Options{Backend: "spreadsheet"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := Open(Options{Backend: BackendRelational}); err == nil {
		t.Error("expected error for relational backend without a connection")
	}
	s, err := Open(Options{Backend: BackendWorkbook, WorkbookPath: "inventory.xlsx"})
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	if s.Backend() != BackendWorkbook {
		t.Errorf("expected workbook backend, got %s", s.Backend())
	}
}

func TestStore_ProductKeepsVendorWhenNamesCollide(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first := testVendor("Acme")
		second := testVendor("acme")
		flour := testProduct("Flour", &second.ID, 4, 5, 10)
		seed(t, s, []model.Vendor{first, second}, []model.Product{flour})

		got, err := s.GetProduct(ctx, flour.ID)
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		if !got.BelongsTo(second.ID) {
			t.Fatalf("vendor changed on read-back: wrote %s, read %v", second.ID, got.VendorID)
		}

		// a second write must not rebind either
		if err := s.UpsertVendor(ctx, first); err != nil {
			t.Fatalf("upsert vendor: %v", err)
		}
		got, err = s.GetProduct(ctx, flour.ID)
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		if !got.BelongsTo(second.ID) {
			t.Errorf("vendor changed after rewrite: wrote %s, read %v", second.ID, got.VendorID)
		}
	})
}

func TestStore_RejectsUnnormalizedExtension(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, ext := range []map[string]string{
			{"Shelf": ""},
			{"Shelf": " B2 "},
			{" Shelf": "B2"},
		} {
			p := testProduct("Twine", nil, 1, 2, 3)
			p.Extension = ext
			if err := s.UpsertProduct(ctx, p); !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("%q: expected validation error, got %v", ext, err)
			}
			v := testVendor("bolt")
			v.Extension = ext
			if err := s.UpsertVendor(ctx, v); !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("vendor %q: expected validation error, got %v", ext, err)
			}
		}
		products, err := s.ListProducts(ctx)
		if err != nil {
			t.Fatalf("list products: %v", err)
		}
		if len(products) != 0 {
			t.Errorf("rejected writes must not be stored, got %d products", len(products))
		}
	})
}

func TestStore_RenameProductValue(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		flour := testProduct("Flour", nil, 4, 5, 10)
		sugar := testProduct("Sugar", nil, 4, 5, 10)
		sugar.ContainerUnit = "Bag"
		apron := testProduct("Apron", nil, 4, 5, 10)
		seed(t, s, nil, []model.Product{flour, sugar, apron})

		renamed, err := s.RenameProductValue(ctx, FieldContainerUnit, "Case", "Box")
		if err != nil {
			t.Fatalf("rename: %v", err)
		}
		if len(renamed) != 2 || renamed[0].ID != apron.ID || renamed[1].ID != flour.ID {
			t.Fatalf("expected apron and flour to be renamed, got %+v", renamed)
		}
		products, err := s.ListProducts(ctx)
		if err != nil {
			t.Fatalf("list products: %v", err)
		}
		for _, p := range products {
			want := "Box"
			if p.ID == sugar.ID {
				want = "Bag"
			}
			if p.ContainerUnit != want {
				t.Errorf("%s: expected unit %q, got %q", p.Name, want, p.ContainerUnit)
			}
		}

		renamed, err = s.RenameProductValue(ctx, FieldLocation, "Nowhere", "Aisle 9")
		if err != nil || len(renamed) != 0 {
			t.Errorf("expected no match, got %v %v", renamed, err)
		}
		if _, err := s.RenameProductValue(ctx, ProductField("name"), "Flour", "Rye"); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("expected validation error for an unknown field, got %v", err)
		}
	})
}
