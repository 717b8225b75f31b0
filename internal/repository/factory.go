package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Options selects and configures the active backend. It is resolved once at
// process start.
type Options struct {
	Backend      string
	WorkbookPath string
	LockTimeout  time.Duration
	DB           *gorm.DB
}

// Open builds the Store named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendWorkbook:
		if opts.WorkbookPath == "" {
			return nil, fmt.Errorf("workbook backend requires a workbook path")
		}
		return NewWorkbookStore(opts.WorkbookPath, opts.LockTimeout), nil
	case BackendRelational:
		if opts.DB == nil {
			return nil, fmt.Errorf("relational backend requires a database connection")
		}
		return NewRelationalStore(opts.DB), nil
	default:
		return nil, fmt.Errorf("unknown inventory backend %q", opts.Backend)
	}
}

// SnapshotOf reads every entity of s into a Dataset.
func SnapshotOf(ctx context.Context, s Store) (Dataset, error) {
	var ds Dataset
	var err error
	if ds.Products, err = s.ListProducts(ctx); err != nil {
		return Dataset{}, err
	}
	if ds.Vendors, err = s.ListVendors(ctx); err != nil {
		return Dataset{}, err
	}
	if ds.Requests, err = s.ListReorderRequests(ctx, ReorderFilter{}); err != nil {
		return Dataset{}, err
	}
	if ds.Transactions, err = s.ListTransactions(ctx); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}
