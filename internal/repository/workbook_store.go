package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

// WorkbookStore keeps every entity in one .xlsx document. Writers take an
// advisory lock on a sibling ".lock" file, re-read the document, apply the
// change and replace the file atomically. Readers never lock.
type WorkbookStore struct {
	path        string
	lockTimeout time.Duration
}

var _ Store = (*WorkbookStore)(nil)

func NewWorkbookStore(path string, lockTimeout time.Duration) *WorkbookStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &WorkbookStore{path: path, lockTimeout: lockTimeout}
}

func (s *WorkbookStore) Path() string { return s.path }

func (s *WorkbookStore) Backend() string { return BackendWorkbook }

func (s *WorkbookStore) Close() error { return nil }

// Load returns a fresh snapshot of the document. The caller must Close it.
// A missing file reads as an empty workbook.
func (s *WorkbookStore) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		f, err = newWorkbook()
	}
	if err != nil {
		return nil, apperror.Storage("open workbook", err)
	}
	doc, err := DecodeWorkbook(f)
	if err != nil {
		f.Close()
		return nil, apperror.Storage("decode workbook", err)
	}
	return doc, nil
}

func (s *WorkbookStore) snapshot(ctx context.Context) (*Document, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := doc.Close(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to release workbook")
	}
	return doc, nil
}

// mutate runs fn against a freshly loaded document while holding the
// workbook lock and saves the result when fn succeeds.
func (s *WorkbookStore) mutate(ctx context.Context, fn func(doc *Document) error) error {
	lock := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return apperror.Storage("lock workbook", err)
	}
	if !locked {
		log.Warn().Str("path", s.path).Dur("waited", s.lockTimeout).Msg("workbook is locked by another writer")
		return apperror.Busy(fmt.Sprintf("workbook %s is locked", filepath.Base(s.path)), err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Error().Err(err).Str("path", s.path).Msg("failed to release workbook lock")
		}
	}()

	doc, err := s.Load(ctx)
	if err != nil {
		return err
	}
	defer doc.Close()

	if err := fn(doc); err != nil {
		return err
	}
	if err := doc.flush(); err != nil {
		return apperror.Storage("encode workbook", err)
	}
	return apperror.Storage("save workbook", s.save(doc.file))
}

// save writes f next to the target and renames it into place.
func (s *WorkbookStore) save(f *excelize.File) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".reorder-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func (s *WorkbookStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sortProducts(doc.Products)
	return doc.Products, nil
}

func (s *WorkbookStore) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if i := doc.productIndex(id); i >= 0 {
		p := doc.Products[i]
		return &p, nil
	}
	return nil, apperror.NotFound("product %s not found", id)
}

func (s *WorkbookStore) UpsertProduct(ctx context.Context, product model.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, func(doc *Document) error {
		if i := doc.productIndex(product.ID); i >= 0 {
			doc.Products[i] = product
		} else {
			doc.Products = append(doc.Products, product)
		}
		doc.markDirty(roleProducts)
		return nil
	})
}

func (s *WorkbookStore) RenameProductValue(ctx context.Context, field ProductField, from, to string) ([]model.Product, error) {
	if !field.Valid() {
		return nil, apperror.Validation("unknown product field %q", field)
	}
	var renamed []model.Product
	err := s.mutate(ctx, func(doc *Document) error {
		for i, p := range doc.Products {
			if field.value(p) != from {
				continue
			}
			p = field.set(p, to)
			if err := p.Validate(); err != nil {
				return err
			}
			doc.Products[i] = p
			renamed = append(renamed, p)
		}
		if len(renamed) > 0 {
			doc.markDirty(roleProducts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortProducts(renamed)
	return renamed, nil
}

func (s *WorkbookStore) AdjustStock(ctx context.Context, adj StockAdjustment) (model.Product, error) {
	var updated model.Product
	err := s.mutate(ctx, func(doc *Document) error {
		i := doc.productIndex(adj.ProductID)
		if i < 0 {
			return apperror.NotFound("product %s not found", adj.ProductID)
		}
		var row model.StockTransaction
		updated, row = adj.apply(doc.Products[i])
		doc.Products[i] = updated
		doc.Transactions = append(doc.Transactions, row)
		doc.markDirty(roleProducts, roleTransactions)
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return updated, nil
}

func (s *WorkbookStore) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sortVendors(doc.Vendors)
	return doc.Vendors, nil
}

func (s *WorkbookStore) GetVendor(ctx context.Context, id uuid.UUID) (*model.Vendor, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if i := doc.vendorIndex(id); i >= 0 {
		v := doc.Vendors[i]
		return &v, nil
	}
	return nil, apperror.NotFound("vendor %s not found", id)
}

func (s *WorkbookStore) UpsertVendor(ctx context.Context, vendor model.Vendor) error {
	if err := vendor.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, func(doc *Document) error {
		i := doc.vendorIndex(vendor.ID)
		if i < 0 {
			doc.Vendors = append(doc.Vendors, vendor)
			doc.markDirty(roleVendors)
			return nil
		}
		renamed := doc.Vendors[i].Name != vendor.Name
		doc.Vendors[i] = vendor
		doc.markDirty(roleVendors)
		if renamed {
			// Products and the reorder log show vendor names.
			doc.markDirty(roleProducts, roleReorders)
		}
		return nil
	})
}

func (s *WorkbookStore) AppendReorderRequest(ctx context.Context, req model.ReorderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, func(doc *Document) error {
		if doc.requestIndex(req.ID) >= 0 {
			return apperror.Validation("reorder request %s already exists", req.ID)
		}
		doc.Requests = append(doc.Requests, req)
		doc.markDirty(roleReorders)
		return nil
	})
}

func (s *WorkbookStore) GetReorderRequest(ctx context.Context, id uuid.UUID) (*model.ReorderRequest, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if i := doc.requestIndex(id); i >= 0 {
		r := doc.Requests[i]
		return &r, nil
	}
	return nil, apperror.NotFound("reorder request %s not found", id)
}

func (s *WorkbookStore) UpdateReorderRequestStatus(ctx context.Context, id uuid.UUID, status model.ReorderStatus, approval model.ApprovalRecord) error {
	if !status.Terminal() {
		return apperror.Validation("status %q is not a terminal reorder status", status)
	}
	return s.mutate(ctx, func(doc *Document) error {
		i := doc.requestIndex(id)
		if i < 0 {
			return apperror.NotFound("reorder request %s not found", id)
		}
		current := doc.Requests[i]
		if !model.CanTransition(current.Status, status) {
			return apperror.InvalidTransition("reorder request %s is already %s", id, current.Status)
		}
		doc.Requests[i] = current.Decide(status, approval)
		doc.markDirty(roleReorders)
		return nil
	})
}

func (s *WorkbookStore) ListReorderRequests(ctx context.Context, filter ReorderFilter) ([]model.ReorderRequest, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ReorderRequest, 0, len(doc.Requests))
	for _, r := range doc.Requests {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func (s *WorkbookStore) ListTransactions(ctx context.Context) ([]model.StockTransaction, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Transactions, nil
}

func (d *Document) productIndex(id uuid.UUID) int {
	for i := range d.Products {
		if d.Products[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) vendorIndex(id uuid.UUID) int {
	for i := range d.Vendors {
		if d.Vendors[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) requestIndex(id uuid.UUID) int {
	for i := range d.Requests {
		if d.Requests[i].ID == id {
			return i
		}
	}
	return -1
}
