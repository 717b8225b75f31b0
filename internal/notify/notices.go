package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"
)

const pricingSubjectPrefix = "Pricing Request - "

// PricingRequest asks a vendor to quote current prices for some products.
type PricingRequest struct {
	Vendor   model.Vendor
	Products []model.Product
	Notes    string
	ExtraCC  []string
}

// StockUse reports stock taken off the shelf.
type StockUse struct {
	Product     model.Product
	User        string
	Location    string
	Used        int
	OldQuantity int
}

// SendPricingRequest mails the quote request to the vendor and its CC list.
func (d *Dispatcher) SendPricingRequest(ctx context.Context, pr PricingRequest) error {
	to := strings.TrimSpace(pr.Vendor.Email)
	if to == "" {
		return apperror.Transport(fmt.Sprintf("vendor %q has no email address", pr.Vendor.Name), nil)
	}
	m := Mail{
		To:      to,
		CC:      mergeRecipients(to, pr.Vendor.CCEmails, d.settings.DefaultCC, pr.ExtraCC),
		Subject: pricingSubjectPrefix + pr.Vendor.Name,
		Body:    composePricingBody(pr, d.settings),
	}
	if err := d.transport.Send(ctx, m); err != nil {
		return apperror.Transport("send pricing request", err)
	}
	return nil
}

// SendStockUse mails the stock-use recipients. It does nothing when none
// are configured.
func (d *Dispatcher) SendStockUse(ctx context.Context, su StockUse) error {
	if len(d.settings.StockUseRecipients) == 0 {
		return nil
	}
	to := d.settings.StockUseRecipients[0]
	location := su.Location
	if location == "" {
		location = su.Product.Location
	}
	m := Mail{
		To:      to,
		CC:      mergeRecipients(to, d.settings.StockUseRecipients[1:]),
		Subject: "Stock Use - " + su.Product.Name,
		Body: strings.Join([]string{
			"User: " + su.User,
			"Product: " + su.Product.Name,
			"Location: " + location,
			fmt.Sprintf("Amount Used: %d", su.Used),
			fmt.Sprintf("Old Quantity: %d", su.OldQuantity),
			fmt.Sprintf("New Quantity: %d", su.Product.QuantityOnHand),
		}, "\n"),
	}
	if err := d.transport.Send(ctx, m); err != nil {
		return apperror.Transport("send stock use notice", err)
	}
	return nil
}

func composePricingBody(pr PricingRequest, s Settings) string {
	lines := []string{
		"Vendor: " + pr.Vendor.Name,
		"",
		"We are requesting current pricing for the following products:",
		"",
	}
	if len(pr.Products) == 0 {
		lines = append(lines, "(No products specified)")
	}
	for _, p := range pr.Products {
		cost := "N/A"
		if p.CostPerUnit.Valid {
			cost = p.CostPerUnit.Decimal.StringFixed(2)
		}
		lines = append(lines, fmt.Sprintf("- %s | Unit: %s | Reorder Amount: %d | Current Cost: %s",
			p.Name, orDash(p.ContainerUnit), p.ReorderAmount, cost))
	}
	if pr.Notes != "" {
		lines = append(lines, "", "Request Notes: "+pr.Notes)
	}
	if pr.Vendor.Notes != "" {
		lines = append(lines, "", "Vendor Notes: "+pr.Vendor.Notes)
	}
	if s.EmailFooter != "" {
		lines = append(lines, "", s.EmailFooter)
	}
	if branding := brandingLines(s.Branding); len(branding) > 0 {
		lines = append(append(lines, ""), branding...)
	}
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
