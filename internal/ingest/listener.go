package ingest

import (
	"context"
	"time"

	"invoicedash/internal/logger"
)

// Listener runs FetchAndStore on a fixed interval until its context ends.
type Listener struct {
	service  *Service
	label    string
	max      int
	interval time.Duration
}

func NewListener(service *Service, label string, max int, interval time.Duration) *Listener {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Listener{service: service, label: label, max: max, interval: interval}
}

func (l *Listener) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	for {
		res, err := l.service.FetchAndStore(ctx, l.label, l.max)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("listener cycle failed", "err", err)
		} else {
			log.Info("listener cycle done",
				"fetched", res.Fetched, "new", res.New, "invoices", res.Invoices,
				"errors", res.Errors, "skipped", res.Skipped, "failed", res.Failed)
		}

		timer := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
