package ingest

import (
	"regexp"
	"strings"
	"time"

	"invoicedash/internal"
	"invoicedash/internal/normalize"
	"invoicedash/internal/util"
)

type valueKind int

const (
	kindText valueKind = iota
	kindAmount
	kindDate
	kindPercent
)

type fieldRule struct {
	key  string
	kind valueKind
	re   *regexp.Regexp
}

func rule(key string, kind valueKind, labels string) fieldRule {
	return fieldRule{
		key:  key,
		kind: kind,
		re:   regexp.MustCompile(`(?i)^(?:` + labels + `)\s*[:#]+\s*(?P<v>\S.*)$`),
	}
}

// Labels are matched at the start of a line, in English and Spanish.
var fieldRules = []fieldRule{
	rule(normalize.KeyInvoiceNumber, kindText, `invoice\s*(?:no\.?|number|num\.?)?|n[úu]mero\s+de\s+factura|factura\s*(?:n[º°o]\.?)?`),
	rule(normalize.KeyBilledTo, kindText, `bill(?:ed)?\s+to|facturad[oa]\s+a|cliente`),
	rule(normalize.KeyCompanyName, kindText, `company(?:\s+name)?|from|empresa|emisor`),
	rule(normalize.KeyCompanyAddress, kindText, `(?:company\s+)?address|direcci[óo]n`),
	rule(normalize.KeyRecipientName, kindText, `attn\.?|attention|recipient|destinatario`),
	rule(normalize.KeyCompanyEmail, kindText, `e-?mail|correo`),
	rule(normalize.KeyCompanyPhone, kindText, `phone|telephone|tel[ée]fono|tel\.?`),
	rule(normalize.KeyBankName, kindText, `bank(?:\s+name)?|banco`),
	rule(normalize.KeyAccountNumber, kindText, `account(?:\s+(?:number|no\.?))?|iban|n[úu]mero\s+de\s+cuenta|cuenta`),
	rule(normalize.KeySwiftCode, kindText, `swift(?:\s*/\s*bic)?(?:\s+code)?|bic`),
	rule(normalize.KeyDateOfIssue, kindDate, `date\s+of\s+issue|issue\s+date|invoice\s+date|date|fecha\s+de\s+emisi[óo]n|fecha`),
	rule(normalize.KeyDueDate, kindDate, `due\s+date|payment\s+due|fecha\s+de\s+vencimiento|vencimiento`),
	rule(normalize.KeySubtotal, kindAmount, `sub-?total|base\s+imponible`),
	rule(normalize.KeyDiscount, kindAmount, `discount|descuento`),
	rule(normalize.KeyTotal, kindAmount, `total(?:\s+(?:due|amount|a\s+pagar))?|amount\s+due|importe\s+total`),
	rule(normalize.KeyStaffing, kindPercent, `staffing`),
	rule(normalize.KeyProject, kindPercent, `project|proyecto`),
	rule(normalize.KeySoftware, kindPercent, `software`),
}

var (
	taxLine      = regexp.MustCompile(`(?i)^(?:tax|vat|iva|impuesto)\b(?P<rest>.*)$`)
	percentRe    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
	currencyRe   = regexp.MustCompile(`(?i)\b(?:eur|usd|gbp|mxn|cop|ars|clp)\b|[$€£¥]`)
	amountOnlyRe = regexp.MustCompile(`^[+-]?\d[\d\s.,']*$`)
)

var dateLayouts = []string{
	"2006-01-02", "2006/01/02", "02/01/2006", "2/1/2006", "02-01-2006", "02.01.2006",
	"January 2, 2006", "Jan 2, 2006", "2 January 2006", "02 Jan 2006", "2 Jan 2006",
}

// parseFields reads "Label: value" lines into rec. The first occurrence of a
// label wins, so a body that repeats the total further down keeps the first.
func parseFields(lines []string, rec internal.RawRecord) {
	for _, line := range lines {
		line = util.NormalizeSpaces(line)
		if line == "" {
			continue
		}
		if parseTaxLine(line, rec) {
			continue
		}
		for _, r := range fieldRules {
			if _, done := rec[r.key]; done {
				continue
			}
			m := r.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if value, ok := convert(r.kind, m[r.re.SubexpIndex("v")]); ok {
				rec[r.key] = value
				break
			}
		}
	}
}

// parseTaxLine handles "IVA 21%", "Tax (21%): 21.00" and "Tax: 21.00".
// A percentage becomes the impuesto rate and a bare amount the tax amount.
func parseTaxLine(line string, rec internal.RawRecord) bool {
	m := taxLine.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	rest := m[taxLine.SubexpIndex("rest")]
	matched := false
	if pm := percentRe.FindStringSubmatch(rest); pm != nil {
		if rate, ok := util.ParseAmount(pm[1]); ok {
			if _, done := rec[normalize.KeyTaxRate]; !done {
				rec[normalize.KeyTaxRate] = rate
			}
			matched = true
		}
		rest = strings.Replace(rest, pm[0], " ", 1)
	}
	if _, after, found := strings.Cut(rest, ":"); found {
		rest = after
	}
	if amount, ok := parseMoney(rest); ok {
		if _, done := rec[normalize.KeyTax]; !done {
			rec[normalize.KeyTax] = amount
		}
		matched = true
	}
	return matched
}

func convert(kind valueKind, value string) (any, bool) {
	value = strings.TrimSpace(value)
	switch kind {
	case kindAmount:
		return parseMoney(value)
	case kindPercent:
		if m := percentRe.FindStringSubmatch(value); m != nil {
			return util.ParseAmount(m[1])
		}
		return nil, false
	case kindDate:
		return parseDate(value), value != ""
	default:
		return value, value != ""
	}
}

// parseMoney accepts a bare amount with an optional currency mark, so
// "Tax ID: B123" is not read as a number.
func parseMoney(value string) (float64, bool) {
	bare := strings.TrimSpace(currencyRe.ReplaceAllString(value, " "))
	if !amountOnlyRe.MatchString(bare) {
		return 0, false
	}
	return util.ParseAmount(bare)
}

// parseDate returns YYYY-MM-DD when value matches a known layout, otherwise the
// text as written.
func parseDate(value string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(normalize.DateLayout)
		}
	}
	return value
}
