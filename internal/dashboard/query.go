package dashboard

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"invoicedash/internal"
	"invoicedash/internal/util"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 200
	DefaultSort     = "dateOfIssue"
)

type Query struct {
	Q        string
	Company  string
	From     string
	To       string
	MinTotal *float64
	MaxTotal *float64
	Sort     string
	Order    string
	Page     int
	PageSize int
}

type Page struct {
	Items      []internal.Invoice `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalPages int                `json:"totalPages"`
}

var sortFields = map[string]func(a, b internal.Invoice) int{
	"invoiceNumber": func(a, b internal.Invoice) int { return strings.Compare(util.Fold(a.InvoiceNumber), util.Fold(b.InvoiceNumber)) },
	"dateOfIssue":   func(a, b internal.Invoice) int { return strings.Compare(a.DateOfIssue, b.DateOfIssue) },
	"dueDate":       func(a, b internal.Invoice) int { return strings.Compare(util.Deref(a.DueDate), util.Deref(b.DueDate)) },
	"companyName":   func(a, b internal.Invoice) int { return strings.Compare(util.Fold(a.CompanyName), util.Fold(b.CompanyName)) },
	"billedTo":      func(a, b internal.Invoice) int { return strings.Compare(util.Fold(a.BilledTo), util.Fold(b.BilledTo)) },
	"total":         func(a, b internal.Invoice) int { return cmp.Compare(a.Total, b.Total) },
	"subtotal":      func(a, b internal.Invoice) int { return cmp.Compare(a.Subtotal, b.Subtotal) },
	"tax":           func(a, b internal.Invoice) int { return cmp.Compare(a.Tax, b.Tax) },
}

// normalized fills defaults and rejects unknown sort keys.
func (q Query) normalized() (Query, error) {
	if q.Sort == "" {
		q.Sort = DefaultSort
		if q.Order == "" {
			q.Order = "desc"
		}
	}
	if q.Order == "" {
		q.Order = "asc"
	}
	q.Order = strings.ToLower(q.Order)

	var verr ValidationError
	if _, ok := sortFields[q.Sort]; !ok {
		verr.add("sort", "unknown sort field "+q.Sort)
	}
	if q.Order != "asc" && q.Order != "desc" {
		verr.add("order", "must be asc or desc")
	}
	if q.MinTotal != nil && q.MaxTotal != nil && *q.MinTotal > *q.MaxTotal {
		verr.add("minTotal", "must not exceed maxTotal")
	}
	if len(verr.Fields) > 0 {
		return q, &verr
	}

	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	return q, nil
}

func (q Query) matches(inv internal.Invoice) bool {
	if q.Q != "" {
		needle := util.Fold(q.Q)
		hay := []string{inv.InvoiceNumber, inv.CompanyName, inv.BilledTo, inv.RecipientName, util.Deref(inv.FileName)}
		if !slices.ContainsFunc(hay, func(s string) bool { return strings.Contains(util.Fold(s), needle) }) {
			return false
		}
	}
	if q.Company != "" && util.Fold(inv.CompanyName) != util.Fold(q.Company) {
		return false
	}
	if q.From != "" && inv.DateOfIssue < q.From {
		return false
	}
	// To is inclusive of the whole day even when dates carry a time suffix.
	if q.To != "" && dayOf(inv.DateOfIssue) > q.To {
		return false
	}
	if q.MinTotal != nil && inv.Total < *q.MinTotal {
		return false
	}
	if q.MaxTotal != nil && inv.Total > *q.MaxTotal {
		return false
	}
	return true
}

func dayOf(date string) string {
	if len(date) > 10 {
		return date[:10]
	}
	return date
}

// apply filters and sorts, leaving pagination to the caller.
func (q Query) apply(all []internal.Invoice) []internal.Invoice {
	out := make([]internal.Invoice, 0, len(all))
	for _, inv := range all {
		if q.matches(inv) {
			out = append(out, inv)
		}
	}
	byField := sortFields[q.Sort]
	slices.SortStableFunc(out, func(a, b internal.Invoice) int {
		c := byField(a, b)
		if q.Order == "desc" {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Service) ListInvoices(ctx context.Context, q Query) (Page, error) {
	q, err := q.normalized()
	if err != nil {
		return Page{}, err
	}
	all, err := s.invoices(ctx)
	if err != nil {
		return Page{}, err
	}
	matched := q.apply(all)

	start := min((q.Page-1)*q.PageSize, len(matched))
	end := min(start+q.PageSize, len(matched))
	return Page{
		Items:      matched[start:end],
		Total:      len(matched),
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: (len(matched) + q.PageSize - 1) / q.PageSize,
	}, nil
}

// Export returns every invoice matching q in list order, ignoring paging.
func (s *Service) Export(ctx context.Context, q Query) ([]internal.Invoice, error) {
	q, err := q.normalized()
	if err != nil {
		return nil, err
	}
	all, err := s.invoices(ctx)
	if err != nil {
		return nil, err
	}
	return q.apply(all), nil
}
