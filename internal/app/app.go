// Package app wires configuration into the services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"invoicedash/internal/config"
	"invoicedash/internal/dashboard"
	"invoicedash/internal/ingest"
	"invoicedash/internal/logger"
	"invoicedash/internal/storage"
	"invoicedash/internal/storage/mongostore"
	"invoicedash/internal/summary"
)

// Store is everything the binaries need from a document store backend.
type Store interface {
	dashboard.Store
	ingest.Store
	GetMetadata(ctx context.Context, key string) (*string, error)
	Close() error
}

var (
	_ Store = (*storage.DB)(nil)
	_ Store = (*mongostore.Store)(nil)
)

func InitLogger(cfg config.Config) logger.Logger {
	logger.Init(&logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		Output:     os.Stderr,
		JSON:       cfg.LogJSON,
		TimeFormat: "2006-01-02 15:04:05",
	})
	return logger.Default()
}

// OpenStore opens the backend selected by DB_DRIVER.
func OpenStore(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.DBDriver {
	case "sqlite", "":
		return storage.Open(cfg.DBPath)
	case "mongo", "mongodb":
		if err := cfg.Require("MONGO_URI", cfg.MongoURI); err != nil {
			return nil, err
		}
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

// NewSummarizer returns nil when no model is configured, which turns the
// summary endpoint into a 503.
func NewSummarizer(cfg config.Config, log logger.Logger) (dashboard.Summarizer, error) {
	model, err := summary.NewModel(cfg)
	if errors.Is(err, summary.ErrNoModel) {
		log.Warn("LLM_API_KEY not set, invoice summaries disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return summary.NewService(model, summary.OptionsFromConfig(cfg)), nil
}

func NewIngest(ctx context.Context, cfg config.Config, store Store, provider string) (*ingest.Service, error) {
	conn, err := ingest.NewConnector(ctx, provider, cfg)
	if err != nil {
		return nil, err
	}
	return ingest.NewService(store, conn, cfg.RawMailDir, cfg.PDFDir), nil
}

func NewListener(ctx context.Context, cfg config.Config, store Store) (*ingest.Listener, error) {
	svc, err := NewIngest(ctx, cfg, store, cfg.MailListenerProvider)
	if err != nil {
		return nil, err
	}
	return ingest.NewListener(
		svc,
		cfg.MailListenerLabel,
		cfg.MailListenerFetchMax,
		time.Duration(cfg.MailListenerIntervalSec)*time.Second,
	), nil
}
