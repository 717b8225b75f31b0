package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const importBatchSize = 200

// RelationalStore keeps one table per entity. Each row holds indexed columns
// plus the complete entity in its payload column.
type RelationalStore struct {
	db        *gorm.DB
	txManager TransactionManager
}

var _ Store = (*RelationalStore)(nil)

func NewRelationalStore(db *gorm.DB) *RelationalStore {
	return &RelationalStore{db: db, txManager: NewTransactionManager(db)}
}

func (r *RelationalStore) Backend() string { return BackendRelational }

func (r *RelationalStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *RelationalStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	var recs []model.ProductRecord
	if err := GetDB(ctx, r.db).Find(&recs).Error; err != nil {
		return nil, apperror.Storage("list products", err)
	}
	products := make([]model.Product, 0, len(recs))
	for _, rec := range recs {
		p, err := decodeProduct(rec.Payload)
		if err != nil {
			return nil, apperror.Storage("list products", err)
		}
		products = append(products, p)
	}
	sortProducts(products)
	return products, nil
}

func (r *RelationalStore) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var rec model.ProductRecord
	if err := GetDB(ctx, r.db).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("product %s not found", id)
		}
		return nil, apperror.Storage("get product", err)
	}
	p, err := decodeProduct(rec.Payload)
	if err != nil {
		return nil, apperror.Storage("get product", err)
	}
	return &p, nil
}

func (r *RelationalStore) UpsertProduct(ctx context.Context, product model.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	rec, err := productRecord(product)
	if err != nil {
		return apperror.Storage("upsert product", err)
	}
	if err := upsert(GetDB(ctx, r.db), &rec); err != nil {
		return apperror.Storage("upsert product", err)
	}
	return nil
}

func (r *RelationalStore) RenameProductValue(ctx context.Context, field ProductField, from, to string) ([]model.Product, error) {
	if !field.Valid() {
		return nil, apperror.Validation("unknown product field %q", field)
	}
	var renamed []model.Product
	err := r.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		db := GetDB(txCtx, r.db)

		var recs []model.ProductRecord
		if err := forUpdate(db).Where(string(field)+" = ?", from).Find(&recs).Error; err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		for _, rec := range recs {
			p, err := decodeProduct(rec.Payload)
			if err != nil {
				return err
			}
			p = field.set(p, to)
			if err := p.Validate(); err != nil {
				return err
			}
			updated, err := productRecord(p)
			if err != nil {
				return err
			}
			if err := upsert(db, &updated); err != nil {
				return fmt.Errorf("save product: %w", err)
			}
			renamed = append(renamed, p)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Storage("rename product value", err)
	}
	sortProducts(renamed)
	return renamed, nil
}

func (r *RelationalStore) AdjustStock(ctx context.Context, adj StockAdjustment) (model.Product, error) {
	var updated model.Product
	err := r.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		db := GetDB(txCtx, r.db)

		var rec model.ProductRecord
		if err := forUpdate(db).First(&rec, "id = ?", adj.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("product %s not found", adj.ProductID)
			}
			return fmt.Errorf("load product: %w", err)
		}
		current, err := decodeProduct(rec.Payload)
		if err != nil {
			return err
		}

		var logRow model.StockTransaction
		updated, logRow = adj.apply(current)

		newRec, err := productRecord(updated)
		if err != nil {
			return err
		}
		if err := db.Save(&newRec).Error; err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		txRec, err := transactionRecord(logRow)
		if err != nil {
			return err
		}
		if err := db.Create(&txRec).Error; err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Product{}, apperror.Storage("adjust stock", err)
	}
	return updated, nil
}

func (r *RelationalStore) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	var recs []model.VendorRecord
	if err := GetDB(ctx, r.db).Find(&recs).Error; err != nil {
		return nil, apperror.Storage("list vendors", err)
	}
	vendors := make([]model.Vendor, 0, len(recs))
	for _, rec := range recs {
		v, err := decodeVendor(rec.Payload)
		if err != nil {
			return nil, apperror.Storage("list vendors", err)
		}
		vendors = append(vendors, v)
	}
	sortVendors(vendors)
	return vendors, nil
}

func (r *RelationalStore) GetVendor(ctx context.Context, id uuid.UUID) (*model.Vendor, error) {
	var rec model.VendorRecord
	if err := GetDB(ctx, r.db).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("vendor %s not found", id)
		}
		return nil, apperror.Storage("get vendor", err)
	}
	v, err := decodeVendor(rec.Payload)
	if err != nil {
		return nil, apperror.Storage("get vendor", err)
	}
	return &v, nil
}

func (r *RelationalStore) UpsertVendor(ctx context.Context, vendor model.Vendor) error {
	if err := vendor.Validate(); err != nil {
		return err
	}
	rec, err := vendorRecord(vendor)
	if err != nil {
		return apperror.Storage("upsert vendor", err)
	}
	if err := upsert(GetDB(ctx, r.db), &rec); err != nil {
		return apperror.Storage("upsert vendor", err)
	}
	return nil
}

func (r *RelationalStore) AppendReorderRequest(ctx context.Context, req model.ReorderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	rec, err := reorderRecord(req)
	if err != nil {
		return apperror.Storage("append reorder request", err)
	}
	if err := GetDB(ctx, r.db).Create(&rec).Error; err != nil {
		return apperror.Storage("append reorder request", err)
	}
	return nil
}

func (r *RelationalStore) GetReorderRequest(ctx context.Context, id uuid.UUID) (*model.ReorderRequest, error) {
	var rec model.ReorderRecord
	if err := GetDB(ctx, r.db).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("reorder request %s not found", id)
		}
		return nil, apperror.Storage("get reorder request", err)
	}
	req, err := decodeReorder(rec.Payload)
	if err != nil {
		return nil, apperror.Storage("get reorder request", err)
	}
	return &req, nil
}

func (r *RelationalStore) UpdateReorderRequestStatus(ctx context.Context, id uuid.UUID, status model.ReorderStatus, approval model.ApprovalRecord) error {
	if !status.Terminal() {
		return apperror.Validation("status %q is not a terminal reorder status", status)
	}
	err := r.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		db := GetDB(txCtx, r.db)

		var rec model.ReorderRecord
		if err := forUpdate(db).First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("reorder request %s not found", id)
			}
			return fmt.Errorf("load reorder request: %w", err)
		}
		current, err := decodeReorder(rec.Payload)
		if err != nil {
			return err
		}
		if !model.CanTransition(current.Status, status) {
			return apperror.InvalidTransition("reorder request %s is already %s", id, current.Status)
		}

		next, err := reorderRecord(current.Decide(status, approval))
		if err != nil {
			return err
		}
		res := db.Model(&model.ReorderRecord{}).
			Where("id = ? AND status = ?", id, string(model.StatusPending)).
			Updates(map[string]interface{}{
				"status":          next.Status,
				"po_number":       next.PONumber,
				"delivery_method": next.DeliveryMethod,
				"pickup_by":       next.PickupBy,
				"approved_by":     next.ApprovedBy,
				"approved_at":     next.ApprovedAt,
				"payload":         next.Payload,
			})
		if res.Error != nil {
			return fmt.Errorf("update reorder request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.InvalidTransition("reorder request %s changed concurrently", id)
		}
		return nil
	})
	return apperror.Storage("update reorder status", err)
}

func (r *RelationalStore) ListReorderRequests(ctx context.Context, filter ReorderFilter) ([]model.ReorderRequest, error) {
	query := GetDB(ctx, r.db).Model(&model.ReorderRecord{})
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	if filter.VendorID != nil {
		query = query.Where("vendor_id = ?", *filter.VendorID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.PONumber != "" {
		query = query.Where("po_number = ?", filter.PONumber)
	}
	if filter.DeliveryMethod != "" {
		query = query.Where("delivery_method = ?", string(filter.DeliveryMethod))
	}
	if filter.PickupBy != "" {
		query = query.Where("pickup_by = ?", filter.PickupBy)
	}
	if filter.ApprovedBy != "" {
		query = query.Where("approved_by = ?", filter.ApprovedBy)
	}

	var recs []model.ReorderRecord
	if err := query.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, apperror.Storage("list reorder requests", err)
	}
	requests := make([]model.ReorderRequest, 0, len(recs))
	for _, rec := range recs {
		req, err := decodeReorder(rec.Payload)
		if err != nil {
			return nil, apperror.Storage("list reorder requests", err)
		}
		requests = append(requests, req)
	}
	sortRequests(requests)
	return requests, nil
}

func (r *RelationalStore) ListTransactions(ctx context.Context) ([]model.StockTransaction, error) {
	var recs []model.TransactionRecord
	if err := GetDB(ctx, r.db).Order("seq").Find(&recs).Error; err != nil {
		return nil, apperror.Storage("list transactions", err)
	}
	txs := make([]model.StockTransaction, 0, len(recs))
	for _, rec := range recs {
		t, err := decodeTransaction(rec.Payload)
		if err != nil {
			return nil, apperror.Storage("list transactions", err)
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// ReplaceAll swaps the whole content of the store for ds in one transaction
// and records where it came from. Used by the document import.
func (r *RelationalStore) ReplaceAll(ctx context.Context, ds Dataset, source string) error {
	err := r.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		db := GetDB(txCtx, r.db).Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, table := range []interface{}{&model.ProductRecord{}, &model.VendorRecord{}, &model.ReorderRecord{}, &model.TransactionRecord{}} {
			if err := db.Delete(table).Error; err != nil {
				return fmt.Errorf("clear table: %w", err)
			}
		}

		products := make([]model.ProductRecord, 0, len(ds.Products))
		for _, p := range ds.Products {
			rec, err := productRecord(p)
			if err != nil {
				return err
			}
			products = append(products, rec)
		}
		vendors := make([]model.VendorRecord, 0, len(ds.Vendors))
		for _, v := range ds.Vendors {
			rec, err := vendorRecord(v)
			if err != nil {
				return err
			}
			vendors = append(vendors, rec)
		}
		requests := make([]model.ReorderRecord, 0, len(ds.Requests))
		for _, req := range ds.Requests {
			rec, err := reorderRecord(req)
			if err != nil {
				return err
			}
			requests = append(requests, rec)
		}
		txs := make([]model.TransactionRecord, 0, len(ds.Transactions))
		for _, t := range ds.Transactions {
			rec, err := transactionRecord(t)
			if err != nil {
				return err
			}
			txs = append(txs, rec)
		}

		if len(products) > 0 {
			if err := db.CreateInBatches(products, importBatchSize).Error; err != nil {
				return fmt.Errorf("insert products: %w", err)
			}
		}
		if len(vendors) > 0 {
			if err := db.CreateInBatches(vendors, importBatchSize).Error; err != nil {
				return fmt.Errorf("insert vendors: %w", err)
			}
		}
		if len(requests) > 0 {
			if err := db.CreateInBatches(requests, importBatchSize).Error; err != nil {
				return fmt.Errorf("insert reorder log: %w", err)
			}
		}
		if len(txs) > 0 {
			if err := db.CreateInBatches(txs, importBatchSize).Error; err != nil {
				return fmt.Errorf("insert transactions: %w", err)
			}
		}

		meta := []model.MetaEntry{
			{Key: model.MetaLastImportSource, Value: source},
			{Key: model.MetaLastImportUTC, Value: nowUTC().Format(time.RFC3339)},
		}
		return upsert(db, &meta)
	})
	return apperror.Storage("replace store content", err)
}

// LastImport reports the source and time of the most recent document import.
func (r *RelationalStore) LastImport(ctx context.Context) (string, time.Time, error) {
	var entries []model.MetaEntry
	if err := GetDB(ctx, r.db).Where("\"key\" IN ?", []string{model.MetaLastImportSource, model.MetaLastImportUTC}).Find(&entries).Error; err != nil {
		return "", time.Time{}, apperror.Storage("read import metadata", err)
	}
	var source string
	var at time.Time
	for _, e := range entries {
		switch e.Key {
		case model.MetaLastImportSource:
			source = e.Value
		case model.MetaLastImportUTC:
			at, _ = time.Parse(time.RFC3339, e.Value)
		}
	}
	return source, at, nil
}

func upsert(db *gorm.DB, value interface{}) error {
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}
