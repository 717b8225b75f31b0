// Package notify turns an approved reorder request into a purchase-order
// email for the vendor.
package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/rs/zerolog/log"
)

const defaultSubjectPrefix = "Reorder Request - "

// ErrRendererUnavailable is returned by a Renderer that cannot produce a
// document. The email is then sent without an attachment.
var ErrRendererUnavailable = errors.New("purchase order renderer unavailable")

// Branding is printed on the purchase order and below the email body.
type Branding struct {
	CompanyName    string
	CompanyAddress string
	CompanyPhone   string
	LogoPath       string
}

type Settings struct {
	Branding      Branding
	SubjectPrefix string
	DefaultCC     []string
	EmailFooter   string
	PickupFooter  string
	ShipFooter    string

	// StockUseRecipients receive a notice whenever stock is used.
	StockUseRecipients []string
}

// Line is one resolved line of a purchase order.
type Line struct {
	Product  model.Product
	Quantity int
}

// PurchaseOrder is everything a renderer needs to lay out the document.
type PurchaseOrder struct {
	Branding Branding
	Request  model.ReorderRequest
	Vendor   model.Vendor
	Lines    []Line
	Approval model.ApprovalRecord
	Footer   string
}

func (po PurchaseOrder) DeliveryLabel() string {
	if po.Approval.DeliveryMethod == model.DeliveryPickup {
		return "Pickup (we will pick up)"
	}
	return "Ship to our address"
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Mail struct {
	To         string
	CC         []string
	Subject    string
	Body       string
	Attachment *Attachment
}

// Renderer lays out a purchase order document.
type Renderer interface {
	Render(ctx context.Context, po PurchaseOrder) ([]byte, error)
}

// Transport delivers a composed email.
type Transport interface {
	Send(ctx context.Context, m Mail) error
}

type Dispatcher struct {
	renderer  Renderer
	transport Transport
	settings  Settings
}

// NewDispatcher wires the collaborators. renderer may be nil, in which case
// emails never carry an attachment.
func NewDispatcher(renderer Renderer, transport Transport, settings Settings) *Dispatcher {
	if settings.SubjectPrefix == "" {
		settings.SubjectPrefix = defaultSubjectPrefix
	}
	return &Dispatcher{renderer: renderer, transport: transport, settings: settings}
}

// Send renders and mails the purchase order. A rendering failure only drops
// the attachment; a delivery failure is returned as a transport error.
func (d *Dispatcher) Send(ctx context.Context, po PurchaseOrder) error {
	to := strings.TrimSpace(po.Vendor.Email)
	if to == "" {
		return apperror.Transport(fmt.Sprintf("vendor %q has no email address", po.Vendor.Name), nil)
	}

	po.Branding = d.settings.Branding
	po.Footer = d.settings.ShipFooter
	if po.Approval.DeliveryMethod == model.DeliveryPickup {
		po.Footer = d.settings.PickupFooter
	}

	m := Mail{
		To:      to,
		CC:      mergeRecipients(to, po.Vendor.CCEmails, d.settings.DefaultCC),
		Subject: d.settings.SubjectPrefix + po.Vendor.Name,
		Body:    composeBody(po, d.settings),
	}

	if d.renderer != nil {
		data, err := d.renderer.Render(ctx, po)
		if err != nil {
			log.Warn().Err(err).Str("request_id", po.Request.ID.String()).Msg("sending purchase order without attachment")
		} else {
			m.Attachment = &Attachment{
				Filename:    attachmentName(po),
				ContentType: "application/pdf",
				Data:        data,
			}
		}
	}

	if err := d.transport.Send(ctx, m); err != nil {
		return apperror.Transport("send purchase order", err)
	}
	return nil
}

// mergeRecipients keeps the first occurrence of every address, in order,
// and never copies the primary recipient.
func mergeRecipients(to string, lists ...[]string) []string {
	seen := map[string]bool{strings.ToLower(to): true}
	var out []string
	for _, list := range lists {
		for _, addr := range list {
			addr = strings.TrimSpace(addr)
			key := strings.ToLower(addr)
			if addr == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
		}
	}
	return out
}

func composeBody(po PurchaseOrder, s Settings) string {
	a := po.Approval
	lines := []string{"Vendor: " + po.Vendor.Name}
	if a.PONumber != "" {
		lines = append(lines, "PO Number: "+a.PONumber)
	}
	lines = append(lines, "Delivery: "+po.DeliveryLabel())
	if a.PickupBy != "" {
		lines = append(lines, "Pickup By: "+a.PickupBy)
	}
	if a.NeededBy != "" {
		lines = append(lines, "Needed By: "+a.NeededBy)
	}
	if a.DeliveryNotes != "" {
		lines = append(lines, "Delivery Notes: "+a.DeliveryNotes)
	}

	lines = append(lines, "", "The following items are requested for reorder:")
	for _, l := range po.Lines {
		item := fmt.Sprintf("%s – Order: %d %s", l.Product.Name, l.Quantity, l.Product.ContainerUnit)
		if l.Product.Location != "" {
			item += " (Location: " + l.Product.Location + ")"
		}
		lines = append(lines, strings.TrimSpace(item))
	}

	if po.Request.Notes != "" {
		lines = append(lines, "", "Request Notes: "+po.Request.Notes)
	}
	if a.VendorNotes != "" {
		lines = append(lines, "", "Notes: "+a.VendorNotes)
	}
	if po.Vendor.Notes != "" {
		lines = append(lines, "", "Vendor Notes: "+po.Vendor.Notes)
	}
	if s.EmailFooter != "" {
		lines = append(lines, "", s.EmailFooter)
	}

	if branding := brandingLines(s.Branding); len(branding) > 0 {
		lines = append(append(lines, ""), branding...)
	}
	return strings.Join(lines, "\n")
}

func brandingLines(b Branding) []string {
	var out []string
	for _, line := range []string{b.CompanyName, b.CompanyAddress, b.CompanyPhone} {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func attachmentName(po PurchaseOrder) string {
	name := fmt.Sprintf("purchase_order_%s_%s.pdf", po.Vendor.Name, po.Approval.DecidedAt.UTC().Format("2006-01-02"))
	return unsafeFilename.ReplaceAllString(name, "_")
}
