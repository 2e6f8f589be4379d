// Package normalize projects stored invoice documents onto the fixed Invoice
// shape. Every field has a documented fallback, so Normalize never fails.
package normalize

import (
	"fmt"
	"time"

	"invoicedash/internal"
)

const (
	DefaultInvoiceNumber  = "N/A"
	DefaultBilledTo       = "N/A"
	DefaultCompanyName    = "Default Company Inc."
	DefaultCompanyAddress = "123 Default St"
	DefaultRecipientName  = "Valued Customer"

	DateLayout = "2006-01-02"
)

// Stored key names.
const (
	KeyID             = "id"
	KeyInvoiceNumber  = "numero_factura"
	KeyBilledTo       = "facturado_a"
	KeyDateOfIssue    = "fecha_emision"
	KeyDueDate        = "fecha_vencimiento"
	KeyCompanyName    = "nombre_empresa"
	KeyCompanyAddress = "direccion_empresa"
	KeyRecipientName  = "nombre_destinatario"
	KeyCompanyEmail   = "email_empresa"
	KeyCompanyPhone   = "telefono_empresa"
	KeyBankName       = "nombre_banco"
	KeyAccountNumber  = "numero_cuenta"
	KeySwiftCode      = "swift"
	KeySubtotal       = "subtotal"
	KeyDiscount       = "descuento"
	KeyTotal          = "total"
	KeyTax            = "tax"
	KeyTaxRate        = "impuesto"
	KeyStaffing       = "porcentaje_staffing"
	KeyProject        = "porcentaje_proyecto"
	KeySoftware       = "porcentaje_software"
	KeyFileURL        = "file_url"
	KeyOnedriveFileID = "onedrive_file_id"
	KeyFileName       = "file_name"
	KeyLegacyFileName = "nombre_archivo"
	KeyLegacyMongoID  = "_id"
)

// Normalize maps one raw record onto an Invoice, using today's date as the
// issue-date fallback.
func Normalize(raw internal.RawRecord) internal.Invoice {
	return NormalizeAt(raw, time.Now())
}

// NormalizeAt is Normalize with an explicit clock.
func NormalizeAt(raw internal.RawRecord, now time.Time) internal.Invoice {
	subtotal := numberOr(raw, KeySubtotal, 0)
	taxAmount, taxRate := reconcileTax(raw, subtotal)

	return internal.Invoice{
		ID:             documentID(raw),
		InvoiceNumber:  textOr(raw, KeyInvoiceNumber, DefaultInvoiceNumber),
		OnedriveFileID: textOr(raw, KeyOnedriveFileID, ""),
		FileName:       textPtr(raw, KeyFileName, KeyLegacyFileName),

		BilledTo:       textOr(raw, KeyBilledTo, DefaultBilledTo),
		CompanyName:    textOr(raw, KeyCompanyName, DefaultCompanyName),
		CompanyAddress: textOr(raw, KeyCompanyAddress, DefaultCompanyAddress),
		RecipientName:  textOr(raw, KeyRecipientName, DefaultRecipientName),
		CompanyEmail:   textPtr(raw, KeyCompanyEmail),
		CompanyPhone:   textPtr(raw, KeyCompanyPhone),
		BankName:       textPtr(raw, KeyBankName),
		AccountNumber:  textPtr(raw, KeyAccountNumber),
		SwiftCode:      textPtr(raw, KeySwiftCode),

		DateOfIssue: textOr(raw, KeyDateOfIssue, now.Format(DateLayout)),
		DueDate:     textPtr(raw, KeyDueDate),

		Subtotal: subtotal,
		Discount: numberOr(raw, KeyDiscount, 0),
		Tax:      taxAmount,
		TaxRate:  taxRate,
		Total:    numberOr(raw, KeyTotal, 0),

		Items: collectItems(raw),

		StaffingPercentage: numberOr(raw, KeyStaffing, 0),
		ProjectPercentage:  numberOr(raw, KeyProject, 0),
		SoftwarePercentage: numberOr(raw, KeySoftware, 0),

		PDFURL: textPtr(raw, KeyFileURL),
	}
}

// All normalizes a batch with one shared clock reading.
func All(raws []internal.RawRecord) []internal.Invoice {
	now := time.Now()
	out := make([]internal.Invoice, 0, len(raws))
	for _, raw := range raws {
		out = append(out, NormalizeAt(raw, now))
	}
	return out
}

func documentID(raw internal.RawRecord) string {
	for _, key := range []string{KeyID, KeyLegacyMongoID} {
		switch v := raw[key].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}
