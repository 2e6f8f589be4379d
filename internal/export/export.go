// Package export writes invoices to spreadsheet workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"invoicedash/internal"
	"invoicedash/internal/util"
)

const (
	InvoicesSheet = "Invoices"
	ItemsSheet    = "Items"
)

var invoiceHeaders = []string{
	"id", "invoice_number", "date_of_issue", "due_date", "company_name", "company_address",
	"billed_to", "recipient_name", "subtotal", "discount", "tax", "tax_rate", "total",
	"staffing_pct", "project_pct", "software_pct", "items", "file_name", "pdf_url",
}

var itemHeaders = []string{"invoice_id", "invoice_number", "line", "description", "quantity", "rate", "amount"}

func InvoicesToXLSX(invoices []internal.Invoice, w io.Writer) error {
	f, err := build(invoices)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func InvoicesToFile(invoices []internal.Invoice, outputPath string) error {
	f, err := build(invoices)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func build(invoices []internal.Invoice) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), InvoicesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ItemsSheet); err != nil {
		return nil, fmt.Errorf("add items sheet: %w", err)
	}

	writeHeaders(f, InvoicesSheet, invoiceHeaders)
	writeHeaders(f, ItemsSheet, itemHeaders)

	itemRow := 2
	for i, inv := range invoices {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(InvoicesSheet, cell, value)
		}

		set(1, inv.ID)
		set(2, inv.InvoiceNumber)
		set(3, inv.DateOfIssue)
		set(4, util.Deref(inv.DueDate))
		set(5, inv.CompanyName)
		set(6, inv.CompanyAddress)
		set(7, inv.BilledTo)
		set(8, inv.RecipientName)
		set(9, inv.Subtotal)
		set(10, inv.Discount)
		set(11, inv.Tax)
		set(12, inv.TaxRate)
		set(13, inv.Total)
		set(14, inv.StaffingPercentage)
		set(15, inv.ProjectPercentage)
		set(16, inv.SoftwarePercentage)
		set(17, len(inv.Items))
		set(18, util.Deref(inv.FileName))
		set(19, util.Deref(inv.PDFURL))

		for line, item := range inv.Items {
			setItem := func(col int, value any) {
				cell, _ := excelize.CoordinatesToCellName(col, itemRow)
				_ = f.SetCellValue(ItemsSheet, cell, value)
			}
			setItem(1, inv.ID)
			setItem(2, inv.InvoiceNumber)
			setItem(3, line+1)
			setItem(4, item.Description)
			setItem(5, item.Quantity)
			setItem(6, item.Rate)
			setItem(7, item.Amount)
			itemRow++
		}
	}
	return f, nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}
