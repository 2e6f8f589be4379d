package dashboard

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"invoicedash/internal"
	"invoicedash/internal/normalize"
	"invoicedash/internal/util"
)

const unknownMonth = "unknown"

type Bucket struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

type Stats struct {
	InvoiceCount       int      `json:"invoiceCount"`
	Subtotal           float64  `json:"subtotal"`
	Tax                float64  `json:"tax"`
	Total              float64  `json:"total"`
	ByMonth            []Bucket `json:"byMonth"`
	ByCompany          []Bucket `json:"byCompany"`
	AvgStaffingPercent float64  `json:"avgStaffingPercentage"`
	AvgProjectPercent  float64  `json:"avgProjectPercentage"`
	AvgSoftwarePercent float64  `json:"avgSoftwarePercentage"`
	PendingErrors      int      `json:"pendingErrors"`
}

type bucketSum struct {
	count int
	total decimal.Decimal
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		invoices []internal.Invoice
		pending  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoices, err = s.invoices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = s.store.CountErrorInvoices(gctx, internal.ErrorPending)
		if err != nil {
			return fmt.Errorf("count pending errors: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	st := aggregate(invoices)
	st.PendingErrors = pending
	return st, nil
}

func aggregate(invoices []internal.Invoice) Stats {
	var subtotal, tax, total, staffing, project, software decimal.Decimal
	months := map[string]*bucketSum{}
	companies := map[string]*bucketSum{}

	for _, inv := range invoices {
		invTotal := decimal.NewFromFloat(inv.Total)
		subtotal = subtotal.Add(decimal.NewFromFloat(inv.Subtotal))
		tax = tax.Add(decimal.NewFromFloat(inv.Tax))
		total = total.Add(invTotal)
		staffing = staffing.Add(decimal.NewFromFloat(inv.StaffingPercentage))
		project = project.Add(decimal.NewFromFloat(inv.ProjectPercentage))
		software = software.Add(decimal.NewFromFloat(inv.SoftwarePercentage))

		addTo(months, monthOf(inv.DateOfIssue), invTotal)
		addTo(companies, util.NormalizeSpaces(inv.CompanyName), invTotal)
	}

	st := Stats{
		InvoiceCount: len(invoices),
		Subtotal:     cents(subtotal),
		Tax:          cents(tax),
		Total:        cents(total),
		ByMonth:      buckets(months),
		ByCompany:    buckets(companies),
	}
	if n := len(invoices); n > 0 {
		count := decimal.NewFromInt(int64(n))
		st.AvgStaffingPercent = cents(staffing.Div(count))
		st.AvgProjectPercent = cents(project.Div(count))
		st.AvgSoftwarePercent = cents(software.Div(count))
	}

	slices.SortFunc(st.ByMonth, func(a, b Bucket) int {
		switch {
		case a.Key == unknownMonth:
			return 1
		case b.Key == unknownMonth:
			return -1
		}
		return strings.Compare(a.Key, b.Key)
	})
	slices.SortFunc(st.ByCompany, func(a, b Bucket) int {
		if a.Total != b.Total {
			if a.Total > b.Total {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key, b.Key)
	})
	return st
}

func addTo(m map[string]*bucketSum, key string, amount decimal.Decimal) {
	b, ok := m[key]
	if !ok {
		b = &bucketSum{}
		m[key] = b
	}
	b.count++
	b.total = b.total.Add(amount)
}

func buckets(m map[string]*bucketSum) []Bucket {
	out := make([]Bucket, 0, len(m))
	for key, b := range m {
		out = append(out, Bucket{Key: key, Count: b.count, Total: cents(b.total)})
	}
	return out
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// monthOf returns the YYYY-MM of an issue date, or "unknown" when the stored
// text is not a date.
func monthOf(date string) string {
	day, err := time.Parse(normalize.DateLayout, dayOf(date))
	if err != nil {
		return unknownMonth
	}
	return day.Format("2006-01")
}
