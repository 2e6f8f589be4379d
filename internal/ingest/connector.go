package ingest

import (
	"context"
	"fmt"
	"strings"

	"invoicedash/internal"
	"invoicedash/internal/config"
	"invoicedash/internal/ingest/gmail"
	"invoicedash/internal/ingest/imap"
)

// MailConnector pulls raw messages from a mailbox.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// NewConnector builds the connector for provider ("gmail" or "imap").
func NewConnector(ctx context.Context, provider string, cfg config.Config) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmail.NewConnector(ctx, cfg)
	case "imap":
		return imap.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
