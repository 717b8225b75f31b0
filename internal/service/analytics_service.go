package service

import (
	"context"
	"sort"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"
	"github.com/robertspest/reorderdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const topProductLimit = 10

type DaySpend struct {
	Date  string          `json:"date"`
	Spend decimal.Decimal `json:"spend"`
}

type NamedSpend struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Spend decimal.Decimal `json:"spend"`
}

// SpendReport summarises SENT requests created within [From, To].
type SpendReport struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	TotalSpend  decimal.Decimal `json:"total_spend"`
	OrderCount  int             `json:"order_count"`
	VendorCount int             `json:"vendor_count"`
	ByDay       []DaySpend      `json:"by_day"`
	ByVendor    []NamedSpend    `json:"by_vendor"`
	TopProducts []NamedSpend    `json:"top_products"`
	TopVendor   *NamedSpend     `json:"top_vendor"`
	TopProduct  *NamedSpend     `json:"top_product"`
}

type AnalyticsService interface {
	Spend(ctx context.Context, from, to time.Time) (SpendReport, error)
}

type analyticsService struct {
	store repository.Store
	now   func() time.Time
}

func NewAnalyticsService(store repository.Store) AnalyticsService {
	return &analyticsService{store: store, now: time.Now}
}

// Spend totals quantity times cost per unit. Products without a cost count
// as zero. Zero dates default to the current month.
func (s *analyticsService) Spend(ctx context.Context, from, to time.Time) (SpendReport, error) {
	now := s.now().UTC()
	if from.IsZero() {
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if to.IsZero() {
		to = from.AddDate(0, 1, -1)
	}
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return SpendReport{}, apperror.Validation("end date %s is before start date %s", to.Format(dateLayout), from.Format(dateLayout))
	}
	end := to.AddDate(0, 0, 1)

	requests, err := s.store.ListReorderRequests(ctx, repository.ReorderFilter{
		From:   &from,
		To:     &end,
		Status: model.StatusSent,
	})
	if err != nil {
		return SpendReport{}, err
	}
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return SpendReport{}, err
	}
	vendors, err := s.store.ListVendors(ctx)
	if err != nil {
		return SpendReport{}, err
	}
	productByID := make(map[uuid.UUID]model.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}
	vendorNames := make(map[uuid.UUID]string, len(vendors))
	for _, v := range vendors {
		vendorNames[v.ID] = v.Name
	}

	report := SpendReport{
		From:        from.Format(dateLayout),
		To:          to.Format(dateLayout),
		TotalSpend:  decimal.Zero,
		OrderCount:  len(requests),
		ByDay:       []DaySpend{},
		ByVendor:    []NamedSpend{},
		TopProducts: []NamedSpend{},
	}
	byDay := make(map[string]decimal.Decimal)
	byVendor := make(map[uuid.UUID]decimal.Decimal)
	byProduct := make(map[uuid.UUID]decimal.Decimal)
	for _, r := range requests {
		day := r.CreatedAt.UTC().Format(dateLayout)
		if _, ok := byVendor[r.VendorID]; !ok {
			byVendor[r.VendorID] = decimal.Zero
		}
		for _, it := range r.Items {
			cost := decimal.Zero
			if p, ok := productByID[it.ProductID]; ok && p.CostPerUnit.Valid {
				cost = p.CostPerUnit.Decimal
			}
			spend := cost.Mul(decimal.NewFromInt(int64(it.Quantity)))
			report.TotalSpend = report.TotalSpend.Add(spend)
			byDay[day] = byDay[day].Add(spend)
			byVendor[r.VendorID] = byVendor[r.VendorID].Add(spend)
			byProduct[it.ProductID] = byProduct[it.ProductID].Add(spend)
		}
	}
	report.VendorCount = len(byVendor)

	for day, spend := range byDay {
		report.ByDay = append(report.ByDay, DaySpend{Date: day, Spend: spend})
	}
	sort.Slice(report.ByDay, func(i, j int) bool { return report.ByDay[i].Date < report.ByDay[j].Date })

	for id, spend := range byVendor {
		name, ok := vendorNames[id]
		if !ok {
			name = id.String()
		}
		report.ByVendor = append(report.ByVendor, NamedSpend{ID: id, Name: name, Spend: spend})
	}
	sortBySpend(report.ByVendor)

	for id, spend := range byProduct {
		name := id.String()
		if p, ok := productByID[id]; ok {
			name = p.Name
		}
		report.TopProducts = append(report.TopProducts, NamedSpend{ID: id, Name: name, Spend: spend})
	}
	sortBySpend(report.TopProducts)
	if len(report.TopProducts) > topProductLimit {
		report.TopProducts = report.TopProducts[:topProductLimit]
	}

	if len(report.ByVendor) > 0 {
		top := report.ByVendor[0]
		report.TopVendor = &top
	}
	if len(report.TopProducts) > 0 {
		top := report.TopProducts[0]
		report.TopProduct = &top
	}
	return report, nil
}

// sortBySpend orders by spend descending, then name.
func sortBySpend(xs []NamedSpend) {
	sort.Slice(xs, func(i, j int) bool {
		if c := xs[i].Spend.Cmp(xs[j].Spend); c != 0 {
			return c > 0
		}
		return xs[i].Name < xs[j].Name
	})
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
