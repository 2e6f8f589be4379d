package normalize

import (
	"fmt"

	"invoicedash/internal"
)

// ItemKeys returns the four stored keys of line item i.
func ItemKeys(i int) (description, quantity, rate, amount string) {
	prefix := fmt.Sprintf("item_%d_", i)
	return prefix + "description", prefix + "quantity", prefix + "rate", prefix + "amount"
}

// collectItems rebuilds the ordered item list from the indexed item_{i}_*
// keys. The scan stops at the first index with none of its four keys present,
// so a hole truncates the list even when later indices carry data.
func collectItems(raw internal.RawRecord) []internal.Item {
	items := []internal.Item{}
	for i := 0; ; i++ {
		descKey, qtyKey, rateKey, amountKey := ItemKeys(i)
		if !has(raw, descKey) && !has(raw, qtyKey) && !has(raw, rateKey) && !has(raw, amountKey) {
			return items
		}
		description, _ := raw[descKey].(string)
		items = append(items, internal.Item{
			Description: description,
			Quantity:    numberOr(raw, qtyKey, 0),
			Rate:        numberOr(raw, rateKey, 0),
			Amount:      numberOr(raw, amountKey, 0),
		})
	}
}
