package normalize

import (
	"invoicedash/internal"
	"invoicedash/internal/util"
)

// reconcileTax derives the (amount, rate) pair from whichever tax field the
// record carries. An explicit "tax" amount wins over an "impuesto" rate.
func reconcileTax(raw internal.RawRecord, subtotal float64) (amount, rate float64) {
	if tax, ok := number(raw[KeyTax]); ok {
		if subtotal > 0 {
			return tax, tax / subtotal * 100
		}
		return tax, 0
	}
	if impuesto, ok := number(raw[KeyTaxRate]); ok {
		return subtotal * (impuesto / 100), impuesto
	}
	if s, ok := raw[KeyTaxRate].(string); ok {
		parsed, ok := util.ParseLeadingFloat(s)
		if !ok {
			return 0, 0
		}
		return subtotal * (parsed / 100), parsed
	}
	return 0, 0
}
