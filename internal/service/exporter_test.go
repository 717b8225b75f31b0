package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/repository"

	"github.com/xuri/excelize/v2"
)

// buildSourceWorkbook fills a workbook through the store and then appends a
// row that cannot be decoded.
func buildSourceWorkbook(t *testing.T) (*repository.WorkbookStore, fixture) {
	t.Helper()
	src := newTestWorkbookStore(t)
	fx := seedFixture(t, src)
	svc := NewReorderService(src, &mockNotifier{}, nil)
	req := createFlourRequest(t, svc, fx)
	if _, err := svc.Approve(context.Background(), req.ID, approver, DecisionInput{DeliveryMethod: "PICKUP", PickupBy: "2026-05-04"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := NewInventoryService(src, nil, nil).AdjustStock(context.Background(), requester, fx.sugar.ID, AdjustStockRequest{Delta: -2, Location: "Dry"}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	f, err := excelize.OpenFile(src.Path())
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	rows, err := f.GetRows(repository.SheetProducts)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	cell, _ := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err := f.SetSheetRow(repository.SheetProducts, cell, &[]interface{}{"", "Broken Product", "lots"}); err != nil {
		t.Fatalf("append malformed row: %v", err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("save source: %v", err)
	}
	f.Close()
	return src, fx
}

func TestImportFromDocument(t *testing.T) {
	src, fx := buildSourceWorkbook(t)
	target := newTestRelationalStore(t)
	exp := NewExporter(src, target, target)

	report, err := exp.ImportFromDocument(context.Background())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Products != 5 || report.Vendors != 2 || report.Requests != 1 || report.Transactions != 1 {
		t.Errorf("unexpected counts: %+v", report)
	}
	if report.RowsSkipped != 1 || report.Issues[0].Sheet != repository.SheetProducts {
		t.Errorf("expected the malformed product row to be skipped, got %+v", report.Issues)
	}
	if report.Source != src.Path() || report.ImportedAt.IsZero() {
		t.Errorf("import metadata missing: %+v", report)
	}

	want, err := repository.SnapshotOf(context.Background(), src)
	if err != nil {
		t.Fatalf("source snapshot: %v", err)
	}
	got, err := repository.SnapshotOf(context.Background(), target)
	if err != nil {
		t.Fatalf("target snapshot: %v", err)
	}
	sameJSON(t, "products", got.Products, want.Products)
	sameJSON(t, "vendors", got.Vendors, want.Vendors)
	sameJSON(t, "requests", got.Requests, want.Requests)
	sameJSON(t, "transactions", got.Transactions, want.Transactions)

	v, err := target.GetVendor(context.Background(), fx.v1.ID)
	if err != nil {
		t.Fatalf("get vendor: %v", err)
	}
	sameJSON(t, "cc order", v.CCEmails, []string{"b@acme.example.com", "a@acme.example.com"})
}

func TestExportRoundTrip(t *testing.T) {
	src, _ := buildSourceWorkbook(t)
	first := newTestRelationalStore(t)
	if _, err := NewExporter(src, first, first).ImportFromDocument(context.Background()); err != nil {
		t.Fatalf("first import: %v", err)
	}

	f, err := NewExporter(nil, nil, first).ExportSnapshot(context.Background(), FormatRoundTrip)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	path := filepath.Join(t.TempDir(), "export.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save export: %v", err)
	}
	f.Close()

	second := newTestRelationalStore(t)
	exported := repository.NewWorkbookStore(path, time.Second)
	report, err := NewExporter(exported, second, second).ImportFromDocument(context.Background())
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if report.RowsSkipped != 0 {
		t.Errorf("an exported workbook must import cleanly, got %+v", report.Issues)
	}

	a, err := repository.SnapshotOf(context.Background(), first)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	b, err := repository.SnapshotOf(context.Background(), second)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	sameJSON(t, "round trip", b, a)
}

func TestExportStandardOmitsTransactions(t *testing.T) {
	s := newTestRelationalStore(t)
	fx := seedFixture(t, s)
	if _, err := NewInventoryService(s, nil, nil).AdjustStock(context.Background(), requester, fx.flour.ID, AdjustStockRequest{Delta: 4}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	f, err := NewExporter(nil, nil, s).ExportSnapshot(context.Background(), FormatStandard)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer f.Close()
	for _, name := range f.GetSheetList() {
		if name == repository.SheetTransactions {
			t.Errorf("standard export should not carry %q", name)
		}
	}
	if idx, _ := f.GetSheetIndex(repository.SheetProducts); idx < 0 {
		t.Errorf("expected %q sheet", repository.SheetProducts)
	}
}

func TestExporter_InvalidUse(t *testing.T) {
	s := newTestRelationalStore(t)
	exp := NewExporter(nil, s, s)
	if _, err := exp.ImportFromDocument(context.Background()); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error without a workbook, got %v", err)
	}
	if _, err := exp.ExportSnapshot(context.Background(), "csv"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error for unknown format, got %v", err)
	}
}

// reimport exports s as a round-trip workbook and imports it into a fresh
// relational store.
func reimport(t *testing.T, s repository.Store) *repository.RelationalStore {
	t.Helper()
	f, err := NewExporter(nil, nil, s).ExportSnapshot(context.Background(), FormatRoundTrip)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	path := filepath.Join(t.TempDir(), "export.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save export: %v", err)
	}
	f.Close()

	target := newTestRelationalStore(t)
	report, err := NewExporter(repository.NewWorkbookStore(path, time.Second), target, target).ImportFromDocument(context.Background())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.RowsSkipped != 0 {
		t.Errorf("an exported workbook must import cleanly, got %+v", report.Issues)
	}
	return target
}

func TestExportRoundTrip_VendorNamesCollide(t *testing.T) {
	ctx := context.Background()
	s := newTestRelationalStore(t)
	inv := NewInventoryService(s, nil, nil)
	first, err := inv.UpsertVendor(ctx, UpsertVendorRequest{Name: "Acme", Email: "orders@acme.example.com"})
	if err != nil {
		t.Fatalf("upsert vendor: %v", err)
	}
	second, err := inv.UpsertVendor(ctx, UpsertVendorRequest{Name: "acme", Email: "sales@acme.example.com"})
	if err != nil {
		t.Fatalf("upsert vendor: %v", err)
	}
	flour, err := inv.UpsertProduct(ctx, UpsertProductRequest{Name: "Flour", ReorderAmount: 5, VendorID: second.ID.String()})
	if err != nil {
		t.Fatalf("upsert product: %v", err)
	}

	got, err := reimport(t, s).GetProduct(ctx, flour.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !got.BelongsTo(second.ID) || got.BelongsTo(first.ID) {
		t.Errorf("product vendor changed across export and import: want %s, got %v", second.ID, got.VendorID)
	}
}

func TestExportRoundTrip_KeepsExtensionFields(t *testing.T) {
	ctx := context.Background()
	s := newTestRelationalStore(t)
	inv := NewInventoryService(s, nil, nil)
	p, err := inv.UpsertProduct(ctx, UpsertProductRequest{
		Name:          "Twine",
		ReorderAmount: 2,
		Extension:     map[string]string{"Shelf": "", " Pack Size ": " 25 lb "},
	})
	if err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	sameJSON(t, "normalized extension", p.Extension, map[string]string{"Pack Size": "25 lb"})

	stored, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	sameJSON(t, "stored product", stored, p)

	got, err := reimport(t, s).GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	sameJSON(t, "reimported product", got, p)
}
