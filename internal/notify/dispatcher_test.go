package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/google/uuid"
)

type mockTransport struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

func (m *mockTransport) Send(ctx context.Context, mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

type failingRenderer struct{}

func (failingRenderer) Render(ctx context.Context, po PurchaseOrder) ([]byte, error) {
	return nil, ErrRendererUnavailable
}

func testOrder(method model.DeliveryMethod) PurchaseOrder {
	vendorID := uuid.New()
	flour := model.Product{ID: uuid.New(), Name: "Flour", ContainerUnit: "Bag", Location: "Dry storage", ReorderAmount: 10, VendorID: &vendorID}
	return PurchaseOrder{
		Request: model.ReorderRequest{ID: uuid.New(), VendorID: vendorID, Notes: "before Friday"},
		Vendor: model.Vendor{
			ID:       vendorID,
			Name:     "Acme Foods",
			Email:    "orders@acme.example.com",
			CCEmails: []string{"b@acme.example.com", "a@acme.example.com"},
		},
		Lines: []Line{{Product: flour, Quantity: 10}},
		Approval: model.ApprovalRecord{
			DecidedAt:      time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
			DecidedBy:      "lee",
			DeliveryMethod: method,
			PONumber:       "PO-20260501-ABCDEF12",
			PickupBy:       "2026-05-04",
		},
	}
}

func testSettings() Settings {
	return Settings{
		Branding:     Branding{CompanyName: "Corner Bakery", CompanyAddress: "1 Main St\nSpringfield", CompanyPhone: "555-0100"},
		DefaultCC:    []string{"A@acme.example.com", "purchasing@bakery.example.com"},
		EmailFooter:  "Thank you",
		PickupFooter: "Bring the PO number to the counter.",
		ShipFooter:   "Deliver to the back door.",
	}
}

func TestDispatcher_SendsWithAttachment(t *testing.T) {
	transport := &mockTransport{}
	d := NewDispatcher(NewPDFRenderer(), transport, testSettings())

	if err := d.Send(context.Background(), testOrder(model.DeliveryPickup)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(transport.sent))
	}
	m := transport.sent[0]
	if m.To != "orders@acme.example.com" {
		t.Errorf("unexpected recipient %q", m.To)
	}
	wantCC := []string{"b@acme.example.com", "a@acme.example.com", "purchasing@bakery.example.com"}
	if strings.Join(m.CC, ",") != strings.Join(wantCC, ",") {
		t.Errorf("expected cc %v, got %v", wantCC, m.CC)
	}
	if m.Subject != "Reorder Request - Acme Foods" {
		t.Errorf("unexpected subject %q", m.Subject)
	}
	for _, want := range []string{"PO Number: PO-20260501-ABCDEF12", "Pickup (we will pick up)", "Flour – Order: 10 Bag (Location: Dry storage)", "Request Notes: before Friday", "Corner Bakery"} {
		if !strings.Contains(m.Body, want) {
			t.Errorf("body is missing %q:\n%s", want, m.Body)
		}
	}
	if m.Attachment == nil {
		t.Fatal("expected a PDF attachment")
	}
	if !bytes.HasPrefix(m.Attachment.Data, []byte("%PDF")) {
		t.Errorf("attachment is not a PDF")
	}
	if m.Attachment.Filename != "purchase_order_Acme_Foods_2026-05-01.pdf" {
		t.Errorf("unexpected filename %q", m.Attachment.Filename)
	}
}

func TestDispatcher_RendererUnavailableStillSends(t *testing.T) {
	transport := &mockTransport{}
	d := NewDispatcher(failingRenderer{}, transport, testSettings())

	if err := d.Send(context.Background(), testOrder(model.DeliveryShip)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(transport.sent))
	}
	if transport.sent[0].Attachment != nil {
		t.Error("expected no attachment")
	}
	if !strings.Contains(transport.sent[0].Body, "Ship to our address") {
		t.Errorf("unexpected body:\n%s", transport.sent[0].Body)
	}
}

func TestDispatcher_TransportFailure(t *testing.T) {
	transport := &mockTransport{err: errors.New("535 authentication failed")}
	d := NewDispatcher(nil, transport, testSettings())

	err := d.Send(context.Background(), testOrder(model.DeliveryShip))
	if !errors.Is(err, apperror.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.Contains(err.Error(), "535") {
		t.Errorf("cause should be kept, got %v", err)
	}
}

func TestDispatcher_VendorWithoutEmail(t *testing.T) {
	transport := &mockTransport{}
	d := NewDispatcher(nil, transport, testSettings())

	po := testOrder(model.DeliveryShip)
	po.Vendor.Email = "  "
	if err := d.Send(context.Background(), po); !errors.Is(err, apperror.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(transport.sent) != 0 {
		t.Errorf("nothing should be sent, got %d mails", len(transport.sent))
	}
}

func TestSMTPTransport_NotConfigured(t *testing.T) {
	tr := NewSMTPTransport(SMTPConfig{})
	if err := tr.Send(context.Background(), Mail{To: "a@example.com"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
