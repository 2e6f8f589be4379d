package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"invoicedash/internal"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrAlreadyResolved = errors.New("error invoice already resolved")
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS invoices (
  id TEXT PRIMARY KEY,
  doc TEXT NOT NULL,
  createdAt TEXT NOT NULL,
  updatedAt TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_createdAt ON invoices(createdAt);

CREATE TABLE IF NOT EXISTS error_invoices (
  id TEXT PRIMARY KEY,
  fileName TEXT NOT NULL DEFAULT '',
  onedriveFileId TEXT NOT NULL DEFAULT '',
  pdfPath TEXT NOT NULL DEFAULT '',
  pdfUrl TEXT NOT NULL DEFAULT '',
  errorMessage TEXT NOT NULL DEFAULT '',
  rawData TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  invoiceId TEXT,
  createdAt TEXT NOT NULL,
  updatedAt TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_invoices_status ON error_invoices(status);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  kind TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// DecodeDocument decodes a stored JSON document keeping numbers as
// json.Number so numeric and string fields stay distinguishable.
func DecodeDocument(blob []byte) (internal.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	var raw internal.RawRecord
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = internal.RawRecord{}
	}
	return raw, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// documentID returns the string id carried by raw, or a fresh one.
func documentID(raw internal.RawRecord) string {
	if id, ok := raw["id"].(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func (d *DB) InsertInvoice(ctx context.Context, raw internal.RawRecord) (string, error) {
	return insertInvoice(ctx, d.conn, raw)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertInvoice(ctx context.Context, conn execer, raw internal.RawRecord) (string, error) {
	id := documentID(raw)
	doc := make(internal.RawRecord, len(raw)+1)
	for k, v := range raw {
		doc[k] = v
	}
	doc["id"] = id

	blob, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode invoice: %w", err)
	}
	ts := now()
	_, err = conn.ExecContext(ctx, `
INSERT INTO invoices (id, doc, createdAt, updatedAt) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updatedAt = excluded.updatedAt
`, id, string(blob), ts, ts)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (d *DB) ListInvoices(ctx context.Context) ([]internal.RawRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id, doc FROM invoices ORDER BY createdAt ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.RawRecord{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		raw, err := DecodeDocument([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("decode invoice %s: %w", id, err)
		}
		raw["id"] = id
		out = append(out, raw)
	}
	return out, rows.Err()
}

func (d *DB) GetInvoice(ctx context.Context, id string) (internal.RawRecord, error) {
	var doc string
	err := d.conn.QueryRowContext(ctx, `SELECT doc FROM invoices WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	raw, err := DecodeDocument([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("decode invoice %s: %w", id, err)
	}
	raw["id"] = id
	return raw, nil
}

func (d *DB) InsertErrorInvoice(ctx context.Context, e internal.ErrorInvoice) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = internal.ErrorPending
	}
	if e.RawData == nil {
		e.RawData = internal.RawRecord{}
	}
	rawJSON, err := json.Marshal(e.RawData)
	if err != nil {
		return "", fmt.Errorf("encode raw data: %w", err)
	}
	ts := now()
	_, err = d.conn.ExecContext(ctx, `
INSERT INTO error_invoices (id, fileName, onedriveFileId, pdfPath, pdfUrl, errorMessage, rawData, status, invoiceId, createdAt, updatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, e.ID, e.FileName, e.OnedriveFileID, e.PDFPath, e.PDFURL, e.ErrorMessage, string(rawJSON), string(e.Status), e.InvoiceID, ts, ts)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

const errorInvoiceColumns = `id, fileName, onedriveFileId, pdfPath, pdfUrl, errorMessage, rawData, status, invoiceId, createdAt, updatedAt`

type scanner interface {
	Scan(dest ...any) error
}

func scanErrorInvoice(row scanner) (internal.ErrorInvoice, error) {
	var e internal.ErrorInvoice
	var rawJSON, status, createdAt, updatedAt string
	if err := row.Scan(&e.ID, &e.FileName, &e.OnedriveFileID, &e.PDFPath, &e.PDFURL, &e.ErrorMessage, &rawJSON, &status, &e.InvoiceID, &createdAt, &updatedAt); err != nil {
		return internal.ErrorInvoice{}, err
	}
	raw, err := DecodeDocument([]byte(rawJSON))
	if err != nil {
		// raw_data is opaque; an unreadable blob is surfaced as an empty record
		raw = internal.RawRecord{}
	}
	e.RawData = raw
	e.Status = internal.ErrorStatus(status)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// ListErrorInvoices returns error invoices with the given status, or all of
// them when status is empty, newest first.
func (d *DB) ListErrorInvoices(ctx context.Context, status internal.ErrorStatus) ([]internal.ErrorInvoice, error) {
	query := `SELECT ` + errorInvoiceColumns + ` FROM error_invoices`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY createdAt DESC, id ASC`

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.ErrorInvoice{}
	for rows.Next() {
		e, err := scanErrorInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) GetErrorInvoice(ctx context.Context, id string) (internal.ErrorInvoice, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+errorInvoiceColumns+` FROM error_invoices WHERE id = ?`, id)
	e, err := scanErrorInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.ErrorInvoice{}, ErrNotFound
	}
	return e, err
}

func (d *DB) CountErrorInvoices(ctx context.Context, status internal.ErrorStatus) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_invoices WHERE status = ?`, string(status)).Scan(&n)
	return n, err
}

// ResolveErrorInvoice stores the corrected invoice and marks the error record
// resolved in one transaction. It returns the new invoice id.
func (d *DB) ResolveErrorInvoice(ctx context.Context, id string, raw internal.RawRecord) (string, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM error_invoices WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if internal.ErrorStatus(status) != internal.ErrorPending {
		return "", ErrAlreadyResolved
	}

	invoiceID, err := insertInvoice(ctx, tx, raw)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE error_invoices SET status = ?, invoiceId = ?, updatedAt = ? WHERE id = ?`,
		string(internal.ErrorResolved), invoiceID, now(), id); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return invoiceID, nil
}

func (d *DB) UpsertEmail(ctx context.Context, provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	var row internal.EmailRow
	err = d.conn.QueryRowContext(ctx, `
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if err != nil {
		return internal.EmailRow{}, fmt.Errorf("failed to upsert email: %w", err)
	}
	return row, nil
}

func (d *DB) ListEmailsByStatus(ctx context.Context, status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(ctx context.Context, emailID string, status string) error {
	_, err := d.conn.ExecContext(ctx, `UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) InsertRun(ctx context.Context, traceID, kind string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.ExecContext(ctx, `INSERT INTO runs (traceId, kind, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, kind, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
