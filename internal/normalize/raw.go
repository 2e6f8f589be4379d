package normalize

import (
	"invoicedash/internal"
)

// ToRaw writes an Invoice back in the stored key convention. Items are
// flattened into the item_{i}_* family and the tax is stored as an amount,
// so Normalize(ToRaw(inv)) reproduces every written field.
func ToRaw(inv internal.Invoice) internal.RawRecord {
	raw := internal.RawRecord{
		KeyInvoiceNumber:  inv.InvoiceNumber,
		KeyBilledTo:       inv.BilledTo,
		KeyCompanyName:    inv.CompanyName,
		KeyCompanyAddress: inv.CompanyAddress,
		KeyRecipientName:  inv.RecipientName,
		KeyDateOfIssue:    inv.DateOfIssue,
		KeySubtotal:       inv.Subtotal,
		KeyDiscount:       inv.Discount,
		KeyTax:            inv.Tax,
		KeyTotal:          inv.Total,
		KeyStaffing:       inv.StaffingPercentage,
		KeyProject:        inv.ProjectPercentage,
		KeySoftware:       inv.SoftwarePercentage,
	}
	if inv.ID != "" {
		raw[KeyID] = inv.ID
	}
	if inv.OnedriveFileID != "" {
		raw[KeyOnedriveFileID] = inv.OnedriveFileID
	}

	optional := map[string]*string{
		KeyFileName:      inv.FileName,
		KeyCompanyEmail:  inv.CompanyEmail,
		KeyCompanyPhone:  inv.CompanyPhone,
		KeyBankName:      inv.BankName,
		KeyAccountNumber: inv.AccountNumber,
		KeySwiftCode:     inv.SwiftCode,
		KeyDueDate:       inv.DueDate,
		KeyFileURL:       inv.PDFURL,
	}
	for key, value := range optional {
		if value != nil {
			raw[key] = *value
		}
	}

	for i, item := range inv.Items {
		descKey, qtyKey, rateKey, amountKey := ItemKeys(i)
		raw[descKey] = item.Description
		raw[qtyKey] = item.Quantity
		raw[rateKey] = item.Rate
		raw[amountKey] = item.Amount
	}
	return raw
}
