package dashboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"invoicedash/internal"
	"invoicedash/internal/normalize"
	"invoicedash/internal/storage"
	"invoicedash/internal/util"
)

type CorrectionItem struct {
	Description string   `json:"description" validate:"required,notblank"`
	Quantity    float64  `json:"quantity" validate:"gte=0"`
	Rate        float64  `json:"rate" validate:"gte=0"`
	Amount      *float64 `json:"amount" validate:"omitempty,gte=0"`
}

// CorrectionForm is the user's manual fix for an invoice that failed
// extraction. Subtotal, Total and item amounts are derived when omitted.
type CorrectionForm struct {
	InvoiceNumber  string `json:"invoiceNumber" validate:"required,notblank"`
	BilledTo       string `json:"billedTo" validate:"required,notblank"`
	CompanyName    string `json:"companyName" validate:"required,notblank"`
	CompanyAddress string `json:"companyAddress"`
	RecipientName  string `json:"recipientName"`
	CompanyEmail   string `json:"companyEmail" validate:"omitempty,email"`
	CompanyPhone   string `json:"companyPhone"`
	BankName       string `json:"bankName"`
	AccountNumber  string `json:"accountNumber"`
	SwiftCode      string `json:"swiftCode"`

	DateOfIssue string `json:"dateOfIssue" validate:"required,datetime=2006-01-02"`
	DueDate     string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`

	Subtotal *float64 `json:"subtotal" validate:"omitempty,gte=0"`
	Discount float64  `json:"discount" validate:"gte=0"`
	Tax      float64  `json:"tax" validate:"gte=0"`
	Total    *float64 `json:"total" validate:"omitempty,gte=0"`

	StaffingPercentage float64 `json:"staffingPercentage" validate:"gte=0,lte=100"`
	ProjectPercentage  float64 `json:"projectPercentage" validate:"gte=0,lte=100"`
	SoftwarePercentage float64 `json:"softwarePercentage" validate:"gte=0,lte=100"`

	Items []CorrectionItem `json:"items" validate:"dive"`
}

func (s *Service) ListErrorInvoices(ctx context.Context, status internal.ErrorStatus) ([]internal.ErrorInvoice, error) {
	list, err := s.store.ListErrorInvoices(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list error invoices: %w", err)
	}
	for i := range list {
		withPDFURL(&list[i])
	}
	return list, nil
}

func (s *Service) GetErrorInvoice(ctx context.Context, id string) (internal.ErrorInvoice, error) {
	e, err := s.store.GetErrorInvoice(ctx, id)
	if err != nil {
		return internal.ErrorInvoice{}, err
	}
	withPDFURL(&e)
	return e, nil
}

func withPDFURL(e *internal.ErrorInvoice) {
	if e.PDFURL == "" && e.PDFPath != "" {
		e.PDFURL = "/api/errors/" + e.ID + "/pdf"
	}
}

// OpenErrorPDF returns the local path of the PDF an error invoice came from.
// Paths outside the configured PDF directory are refused.
func (s *Service) OpenErrorPDF(ctx context.Context, id string) (string, error) {
	e, err := s.store.GetErrorInvoice(ctx, id)
	if err != nil {
		return "", err
	}
	if e.PDFPath == "" {
		return "", storage.ErrNotFound
	}
	root, err := filepath.Abs(s.pdfDir)
	if err != nil {
		return "", err
	}
	path, err := filepath.Abs(e.PDFPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("pdf for %s is outside the pdf directory: %w", id, storage.ErrNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("pdf for %s: %w", id, storage.ErrNotFound)
	}
	return path, nil
}

// CorrectErrorInvoice validates a manual correction, stores it as an invoice
// and marks the error record resolved.
func (s *Service) CorrectErrorInvoice(ctx context.Context, id string, form CorrectionForm) (internal.Invoice, error) {
	if err := validateStruct(form); err != nil {
		return internal.Invoice{}, err
	}
	e, err := s.store.GetErrorInvoice(ctx, id)
	if err != nil {
		return internal.Invoice{}, err
	}
	if e.Status != internal.ErrorPending {
		return internal.Invoice{}, storage.ErrAlreadyResolved
	}
	withPDFURL(&e)

	inv := form.invoice()
	inv.OnedriveFileID = e.OnedriveFileID
	if e.FileName != "" {
		inv.FileName = util.StringPtr(e.FileName)
	}
	if e.PDFURL != "" {
		inv.PDFURL = util.StringPtr(e.PDFURL)
	}

	invoiceID, err := s.store.ResolveErrorInvoice(ctx, id, normalize.ToRaw(inv))
	if err != nil {
		return internal.Invoice{}, fmt.Errorf("resolve error invoice %s: %w", id, err)
	}
	return s.GetInvoice(ctx, invoiceID)
}

func (f CorrectionForm) invoice() internal.Invoice {
	items := make([]internal.Item, 0, len(f.Items))
	itemSum := 0.0
	for _, it := range f.Items {
		amount := it.Quantity * it.Rate
		if it.Amount != nil {
			amount = *it.Amount
		}
		itemSum += amount
		items = append(items, internal.Item{
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			Rate:        it.Rate,
			Amount:      amount,
		})
	}

	subtotal := itemSum
	if f.Subtotal != nil {
		subtotal = *f.Subtotal
	}
	total := subtotal - f.Discount + f.Tax
	if f.Total != nil {
		total = *f.Total
	}

	return internal.Invoice{
		InvoiceNumber:      strings.TrimSpace(f.InvoiceNumber),
		BilledTo:           strings.TrimSpace(f.BilledTo),
		CompanyName:        strings.TrimSpace(f.CompanyName),
		CompanyAddress:     strings.TrimSpace(f.CompanyAddress),
		RecipientName:      strings.TrimSpace(f.RecipientName),
		CompanyEmail:       optional(f.CompanyEmail),
		CompanyPhone:       optional(f.CompanyPhone),
		BankName:           optional(f.BankName),
		AccountNumber:      optional(f.AccountNumber),
		SwiftCode:          optional(f.SwiftCode),
		DateOfIssue:        f.DateOfIssue,
		DueDate:            optional(f.DueDate),
		Subtotal:           subtotal,
		Discount:           f.Discount,
		Tax:                f.Tax,
		Total:              total,
		Items:              items,
		StaffingPercentage: f.StaffingPercentage,
		ProjectPercentage:  f.ProjectPercentage,
		SoftwarePercentage: f.SoftwarePercentage,
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
