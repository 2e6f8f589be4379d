// Package ingest turns invoice mail into stored documents: messages are
// fetched from a mailbox, parsed, and stored either as invoices or, when key
// fields are missing, as error invoices awaiting manual correction.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"invoicedash/internal"
	"invoicedash/internal/logger"
	"invoicedash/internal/util"
)

const lastRunKey = "ingest.last_run"

// Store is the part of the document store ingestion writes to.
type Store interface {
	InsertInvoice(ctx context.Context, raw internal.RawRecord) (string, error)
	InsertErrorInvoice(ctx context.Context, e internal.ErrorInvoice) (string, error)
	UpsertEmail(ctx context.Context, provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error)
	ListEmailsByStatus(ctx context.Context, status string, limit int) ([]internal.EmailRow, error)
	UpdateEmailStatus(ctx context.Context, emailID string, status string) error
	InsertRun(ctx context.Context, traceID, kind string, timings map[string]float64, counts map[string]int) error
	SetMetadata(ctx context.Context, key, value string) error
}

type Service struct {
	store     Store
	connector MailConnector
	mail      *MailStore
	pdfDir    string
}

type Result struct {
	Fetched   int
	New       int
	Processed int
	Invoices  int
	Errors    int
	Skipped   int
	Failed    int
}

func NewService(store Store, connector MailConnector, rawMailDir, pdfDir string) *Service {
	return &Service{
		store:     store,
		connector: connector,
		mail:      NewMailStore(store, rawMailDir),
		pdfDir:    pdfDir,
	}
}

// FetchAndStore pulls up to max messages from label, registers the new ones
// and processes everything still pending.
func (s *Service) FetchAndStore(ctx context.Context, label string, max int) (Result, error) {
	if s.connector == nil {
		return Result{}, fmt.Errorf("no mail connector configured")
	}
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return Result{}, fmt.Errorf("fetch inbox: %w", err)
	}

	res := Result{Fetched: len(messages)}
	for _, msg := range messages {
		row, err := s.mail.Save(ctx, msg)
		if err != nil {
			return res, fmt.Errorf("store message %s: %w", msg.MessageID, err)
		}
		if row.Status == EmailFetched {
			res.New++
		}
	}

	processed, err := s.ProcessPending(ctx, max)
	res.Processed = processed.Processed
	res.Invoices = processed.Invoices
	res.Errors = processed.Errors
	res.Skipped = processed.Skipped
	res.Failed = processed.Failed
	return res, err
}

// ProcessPending extracts every registered message not yet processed. A
// message that cannot be read is marked failed and the batch continues.
func (s *Service) ProcessPending(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	log := logger.FromContext(ctx)

	pending, err := s.store.ListEmailsByStatus(ctx, EmailFetched, limit)
	if err != nil {
		return Result{}, fmt.Errorf("list pending emails: %w", err)
	}

	var res Result
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.processEmail(ctx, email)
		if err != nil {
			log.Warn("email processing failed", "messageId", email.MessageID, "err", err)
			res.Failed++
			if err := s.store.UpdateEmailStatus(ctx, email.ID, EmailFailed); err != nil {
				return res, err
			}
			continue
		}
		res.Processed++
		switch out {
		case outcomeInvoice:
			res.Invoices++
		case outcomeError:
			res.Errors++
		case outcomeSkipped:
			res.Skipped++
		}
	}

	s.recordRun(ctx, start, res)
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeInvoice
	outcomeError
)

func (s *Service) processEmail(ctx context.Context, email internal.EmailRow) (outcome, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("read raw message: %w", err)
	}
	ext, err := ExtractRecord(raw, s.pdfDir)
	if err != nil {
		return outcomeSkipped, err
	}

	log := logger.FromContext(ctx).With("messageId", email.MessageID)
	for _, w := range ext.Warnings {
		log.Warn("extraction warning", "detail", w)
	}

	if ext.Empty() {
		return outcomeSkipped, s.store.UpdateEmailStatus(ctx, email.ID, EmailSkipped)
	}
	ext.Record[KeySourceMessageID] = email.MessageID

	result := outcomeInvoice
	if len(ext.Missing) == 0 {
		id, err := s.store.InsertInvoice(ctx, ext.Record)
		if err != nil {
			return outcomeSkipped, fmt.Errorf("store invoice: %w", err)
		}
		log.Info("invoice stored", "invoiceId", id)
	} else {
		result = outcomeError
		id, err := s.store.InsertErrorInvoice(ctx, internal.ErrorInvoice{
			FileName:     util.FirstNonEmpty(ext.FileName, ext.Subject, email.Subject, email.MessageID),
			PDFPath:      ext.PDFPath,
			ErrorMessage: "missing fields: " + strings.Join(ext.Missing, ", "),
			RawData:      ext.Record,
			Status:       internal.ErrorPending,
		})
		if err != nil {
			return outcomeSkipped, fmt.Errorf("store error invoice: %w", err)
		}
		log.Info("error invoice stored", "errorId", id, "missing", ext.Missing)
	}
	return result, s.store.UpdateEmailStatus(ctx, email.ID, EmailProcessed)
}

func (s *Service) recordRun(ctx context.Context, start time.Time, res Result) {
	log := logger.FromContext(ctx)
	counts := map[string]int{
		"processed": res.Processed,
		"invoices":  res.Invoices,
		"errors":    res.Errors,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
	}
	timings := map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}
	if err := s.store.InsertRun(ctx, uuid.NewString(), "ingest", timings, counts); err != nil {
		log.Warn("record run failed", "err", err)
	}
	if err := s.store.SetMetadata(ctx, lastRunKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn("record last run failed", "err", err)
	}
}
