// Package dashboard serves the invoice views: filtered lists, chart
// aggregates, the error-correction workflow and AI summaries.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"invoicedash/internal"
	"invoicedash/internal/normalize"
	"invoicedash/internal/summary"
)

// Store is the document store behind the dashboard. Both the SQLite and the
// MongoDB backends implement it.
type Store interface {
	ListInvoices(ctx context.Context) ([]internal.RawRecord, error)
	GetInvoice(ctx context.Context, id string) (internal.RawRecord, error)
	ListErrorInvoices(ctx context.Context, status internal.ErrorStatus) ([]internal.ErrorInvoice, error)
	GetErrorInvoice(ctx context.Context, id string) (internal.ErrorInvoice, error)
	CountErrorInvoices(ctx context.Context, status internal.ErrorStatus) (int, error)
	ResolveErrorInvoice(ctx context.Context, id string, raw internal.RawRecord) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, inv internal.Invoice) (summary.Summary, error)
}

type Service struct {
	store      Store
	summarizer Summarizer
	pdfDir     string
	now        func() time.Time
}

// NewService builds the dashboard service. summarizer may be nil, in which
// case Summarize reports summary.ErrNoModel.
func NewService(store Store, summarizer Summarizer, pdfDir string) *Service {
	return &Service{
		store:      store,
		summarizer: summarizer,
		pdfDir:     pdfDir,
		now:        time.Now,
	}
}

func (s *Service) invoices(ctx context.Context) ([]internal.Invoice, error) {
	raws, err := s.store.ListInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	now := s.now()
	out := make([]internal.Invoice, 0, len(raws))
	for _, raw := range raws {
		out = append(out, normalize.NormalizeAt(raw, now))
	}
	return out, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (internal.Invoice, error) {
	raw, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return internal.Invoice{}, err
	}
	return normalize.NormalizeAt(raw, s.now()), nil
}

func (s *Service) Summarize(ctx context.Context, id string) (summary.Summary, error) {
	if s.summarizer == nil {
		return summary.Summary{}, summary.ErrNoModel
	}
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return summary.Summary{}, err
	}
	return s.summarizer.Summarize(ctx, inv)
}
