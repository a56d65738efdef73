package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/odyssey-erp/payables/internal/payments"
	"github.com/odyssey-erp/payables/internal/platform/storage"
)

// AdviceRenderer draws payment advice PDFs and stores them.
type AdviceRenderer struct {
	store   storage.Store
	company Company
}

// NewAdviceRenderer builds a renderer writing into store.
func NewAdviceRenderer(store storage.Store, company Company) *AdviceRenderer {
	return &AdviceRenderer{store: store, company: company}
}

// AdviceFileName is the storage key of an advice document. Request and
// advice numbers only have minute resolution, so the request id keeps keys
// of same-minute requests apart.
func AdviceFileName(doc payments.AdviceDocument) string {
	return fmt.Sprintf("payment_advice_%d_%s_%s.pdf", doc.Request.ID, doc.Request.Number, doc.AdviceNumber)
}

// GenerateAdvice renders doc and returns the storage key of the PDF.
func (r *AdviceRenderer) GenerateAdvice(ctx context.Context, doc payments.AdviceDocument) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, doc); err != nil {
		return "", err
	}
	key, err := r.store.Save(ctx, AdviceFileName(doc), &buf)
	if err != nil {
		return "", fmt.Errorf("report: store advice: %w", err)
	}
	return key, nil
}

// Render writes the advice PDF to buf.
func (r *AdviceRenderer) Render(buf *bytes.Buffer, doc payments.AdviceDocument) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Payment Advice "+doc.AdviceNumber, true)
	pdf.SetAuthor(r.company.Name, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 8, tr(r.company.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range []string{r.company.Address, joinNonEmpty(" | ", r.company.Phone, r.company.Email)} {
		if line != "" {
			pdf.CellFormat(contentW, 5, tr(line), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, "PAYMENT ADVICE", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	half := contentW / 2
	pdf.SetFont("Helvetica", "", 9)
	meta := [][2]string{
		{"Advice No: " + doc.AdviceNumber, "Payment Date: " + doc.PaymentDate.Format("2006-01-02")},
		{"Request No: " + doc.Request.Number, "Requested By: " + doc.Request.RequesterName},
	}
	if doc.Request.ApproverName != "" {
		meta = append(meta, [2]string{"Approved By: " + doc.Request.ApproverName, ""})
	}
	for _, row := range meta {
		pdf.CellFormat(half, 5, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(half, 5, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(half, 6, "Payee", "B", 0, "L", false, 0, "")
	pdf.CellFormat(half, 6, "Bank Details", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	left := []string{doc.Vendor.Name, doc.Vendor.Address, doc.Vendor.ContactPerson, doc.Vendor.Email, doc.Vendor.Phone}
	if doc.Vendor.TaxID != "" {
		left = append(left, "Tax ID: "+doc.Vendor.TaxID)
	}
	right := []string{"No primary bank account on file"}
	if b := doc.Vendor.Bank; b != nil {
		right = []string{
			b.BankName,
			"Account: " + b.AccountNumber,
			"IFSC: " + b.IFSCCode,
			joinNonEmpty(" | ", b.AccountType, b.BranchName),
		}
	}
	left, right = compact(left), compact(right)
	for i := 0; i < len(left) || i < len(right); i++ {
		pdf.CellFormat(half, 5, tr(at(left, i)), "", 0, "L", false, 0, "")
		pdf.CellFormat(half, 5, tr(at(right, i)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{contentW * 0.22, contentW * 0.15, contentW * 0.15, contentW * 0.16, contentW * 0.14, contentW * 0.18}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(217, 225, 242)
	for i, h := range []string{"Invoice #", "Invoice Date", "Due Date", "Amount", "Tax", "Total"} {
		align := "L"
		if i >= 3 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 7, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	for _, it := range doc.Items {
		pdf.CellFormat(widths[0], 6, tr(it.InvoiceNumber), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, it.InvoiceDate.Format("2006-01-02"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, it.DueDate.Format("2006-01-02"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 6, Amount(it.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, Amount(it.TaxAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 6, Amount(it.TotalAmount), "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 10)
	labelW := widths[0] + widths[1] + widths[2] + widths[3] + widths[4]
	pdf.CellFormat(labelW, 7, fmt.Sprintf("TOTAL (%d invoices)", len(doc.Items)), "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[5], 7, Amount(doc.Total), "1", 1, "R", false, 0, "")

	if notes := strings.TrimSpace(doc.Request.Notes); notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(contentW, 5, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(contentW, 5, tr(notes), "", "L", false)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(contentW, 4, "This advice was generated electronically and does not require a signature.", "", 1, "C", false, 0, "")

	return pdf.Output(buf)
}

func joinNonEmpty(sep string, parts ...string) string {
	return strings.Join(compact(parts), sep)
}

func compact(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
