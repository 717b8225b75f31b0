package service

import (
	"context"
	"sync"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

type ExportFormat string

const (
	// FormatStandard holds products, vendors and the reorder log.
	FormatStandard ExportFormat = "standard"
	// FormatRoundTrip also regenerates the transactions sheet.
	FormatRoundTrip ExportFormat = "roundtrip"
)

type ImportReport struct {
	Source       string                `json:"source"`
	Products     int                   `json:"products"`
	Vendors      int                   `json:"vendors"`
	Requests     int                   `json:"requests"`
	Transactions int                   `json:"transactions"`
	RowsImported int                   `json:"rows_imported"`
	RowsSkipped  int                   `json:"rows_skipped"`
	Issues       []repository.RowIssue `json:"issues"`
	ImportedAt   time.Time             `json:"imported_at"`
}

// Exporter moves data between the workbook and the relational store.
type Exporter struct {
	source *repository.WorkbookStore
	target *repository.RelationalStore
	active repository.Store
	mu     sync.Mutex
}

// NewExporter wires the import source, the import target and the store
// that snapshots are exported from. target may be nil when no database is
// configured; imports then fail with a validation error.
func NewExporter(source *repository.WorkbookStore, target *repository.RelationalStore, active repository.Store) *Exporter {
	return &Exporter{source: source, target: target, active: active}
}

// ImportFromDocument replaces the relational content with every well-formed
// row of the workbook. The workbook itself is never written.
func (e *Exporter) ImportFromDocument(ctx context.Context) (ImportReport, error) {
	if e.source == nil || e.target == nil {
		return ImportReport{}, apperror.Validation("import needs both a workbook and a database")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.source.Load(ctx)
	if err != nil {
		return ImportReport{}, err
	}
	defer doc.Close()

	if err := e.target.ReplaceAll(ctx, doc.Dataset, e.source.Path()); err != nil {
		return ImportReport{}, err
	}
	_, at, err := e.target.LastImport(ctx)
	if err != nil {
		return ImportReport{}, err
	}

	report := ImportReport{
		Source:       e.source.Path(),
		Products:     len(doc.Products),
		Vendors:      len(doc.Vendors),
		Requests:     len(doc.Requests),
		Transactions: len(doc.Transactions),
		RowsSkipped:  len(doc.Issues),
		Issues:       doc.Issues,
		ImportedAt:   at,
	}
	if report.Issues == nil {
		report.Issues = []repository.RowIssue{}
	}
	report.RowsImported = report.Products + report.Vendors + report.Requests + report.Transactions

	for _, issue := range doc.Issues {
		log.Warn().Str("sheet", issue.Sheet).Int("row", issue.Row).Str("reason", issue.Reason).Msg("skipped malformed row")
	}
	log.Info().
		Str("source", report.Source).
		Int("rows_imported", report.RowsImported).
		Int("rows_skipped", report.RowsSkipped).
		Msg("workbook imported")
	return report, nil
}

// ExportSnapshot renders the active store as a workbook. The caller owns
// the returned file and must Close it.
func (e *Exporter) ExportSnapshot(ctx context.Context, format ExportFormat) (*excelize.File, error) {
	if format == "" {
		format = FormatStandard
	}
	if format != FormatStandard && format != FormatRoundTrip {
		return nil, apperror.Validation("unknown export format %q", format)
	}
	ds, err := repository.SnapshotOf(ctx, e.active)
	if err != nil {
		return nil, err
	}
	f, err := repository.EncodeWorkbook(ds, format == FormatRoundTrip)
	if err != nil {
		return nil, apperror.Storage("export snapshot", err)
	}
	log.Info().
		Str("format", string(format)).
		Str("backend", e.active.Backend()).
		Int("products", len(ds.Products)).
		Int("requests", len(ds.Requests)).
		Msg("snapshot exported")
	return f, nil
}
