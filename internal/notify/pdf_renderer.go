package notify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
)

var (
	poColumns = []string{"Product", "Qty", "Unit", "Location"}
	poWidths  = []float64{80, 16, 30, 66}
)

// PDFRenderer lays out a letter-size purchase order.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

func (r *PDFRenderer) Render(ctx context.Context, po PurchaseOrder) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdf := fpdf.New("P", "mm", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	b := po.Branding
	if b.LogoPath != "" {
		if _, err := os.Stat(b.LogoPath); err == nil {
			pdf.ImageOptions(b.LogoPath, 12, 12, 28, 0, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
		}
	}

	company := strings.TrimSpace(b.CompanyName)
	if company == "" {
		company = "Purchase Order"
	}
	pdf.SetXY(44, 12)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 8, tr(company), "", 1, "", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range strings.Split(b.CompanyAddress, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			pdf.SetX(44)
			pdf.CellFormat(0, 5, tr(line), "", 1, "", false, 0, "")
		}
	}
	if b.CompanyPhone != "" {
		pdf.SetX(44)
		pdf.CellFormat(0, 5, tr(b.CompanyPhone), "", 1, "", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetX(12)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Purchase Order", "", 1, "", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)

	a := po.Approval
	field := func(label, value string) {
		if value != "" {
			pdf.CellFormat(0, 5, tr(label+": "+value), "", 1, "", false, 0, "")
		}
	}
	field("PO Number", a.PONumber)
	field("Vendor", po.Vendor.Name)
	field("Delivery", po.DeliveryLabel())
	field("Pickup By", a.PickupBy)
	field("Needed By", a.NeededBy)
	if a.DeliveryNotes != "" {
		pdf.MultiCell(0, 5, tr("Delivery Notes: "+a.DeliveryNotes), "", "", false)
	}
	field("Approved By", a.DecidedBy)
	pdf.Ln(4)

	if len(po.Lines) == 0 {
		pdf.MultiCell(0, 5, "No line items found.", "", "", false)
	} else {
		pdf.SetFont("Helvetica", "B", 9)
		for i, h := range poColumns {
			pdf.CellFormat(poWidths[i], 7, h, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		for _, l := range po.Lines {
			cells := []string{
				truncate(l.Product.Name, 48),
				strconv.Itoa(l.Quantity),
				truncate(l.Product.ContainerUnit, 16),
				truncate(l.Product.Location, 40),
			}
			for i, c := range cells {
				pdf.CellFormat(poWidths[i], 6, tr(c), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	section := func(title, text string) {
		if text == "" {
			return
		}
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, title, "", 1, "", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 4.5, tr(text), "", "", false)
	}
	section("Notes", a.VendorNotes)
	section("Instructions", po.Footer)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
