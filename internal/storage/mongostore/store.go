// Package mongostore keeps invoice documents in MongoDB. It mirrors the
// operation set of the SQLite store so either can back the dashboard.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"invoicedash/internal"
	"invoicedash/internal/storage"
)

const (
	invoicesCollection      = "invoices"
	errorInvoicesCollection = "error_invoices"
	emailsCollection        = "emails"
	runsCollection          = "runs"
	metadataCollection      = "metadata"

	// createdAtField is written next to the invoice payload and stripped on read.
	createdAtField = "_createdAt"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(errorInvoicesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create error_invoices index: %w", err)
	}
	_, err = s.db.Collection(emailsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "messageId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create emails index: %w", err)
	}
	return nil
}

func (s *Store) InsertInvoice(ctx context.Context, raw internal.RawRecord) (string, error) {
	id := documentID(raw)
	doc := bson.M{}
	for k, v := range raw {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	doc["_id"] = id
	doc[createdAtField] = time.Now().UTC()

	_, err := s.db.Collection(invoicesCollection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ListInvoices(ctx context.Context) ([]internal.RawRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: createdAtField, Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection(invoicesCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]internal.RawRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toRawRecord(doc))
	}
	return out, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (internal.RawRecord, error) {
	var doc bson.M
	err := s.db.Collection(invoicesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toRawRecord(doc), nil
}

type errorInvoiceDoc struct {
	ID             string    `bson:"_id"`
	FileName       string    `bson:"fileName"`
	OnedriveFileID string    `bson:"onedriveFileId"`
	PDFPath        string    `bson:"pdfPath"`
	PDFURL         string    `bson:"pdfUrl"`
	ErrorMessage   string    `bson:"errorMessage"`
	RawData        bson.M    `bson:"raw_data"`
	Status         string    `bson:"status"`
	InvoiceID      *string   `bson:"invoiceId,omitempty"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func (d errorInvoiceDoc) toModel() internal.ErrorInvoice {
	raw := internal.RawRecord{}
	for k, v := range d.RawData {
		raw[k] = plain(v)
	}
	return internal.ErrorInvoice{
		ID:             d.ID,
		FileName:       d.FileName,
		OnedriveFileID: d.OnedriveFileID,
		PDFPath:        d.PDFPath,
		PDFURL:         d.PDFURL,
		ErrorMessage:   d.ErrorMessage,
		RawData:        raw,
		Status:         internal.ErrorStatus(d.Status),
		InvoiceID:      d.InvoiceID,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (s *Store) InsertErrorInvoice(ctx context.Context, e internal.ErrorInvoice) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = internal.ErrorPending
	}
	ts := time.Now().UTC()
	doc := errorInvoiceDoc{
		ID:             e.ID,
		FileName:       e.FileName,
		OnedriveFileID: e.OnedriveFileID,
		PDFPath:        e.PDFPath,
		PDFURL:         e.PDFURL,
		ErrorMessage:   e.ErrorMessage,
		RawData:        bson.M(e.RawData),
		Status:         string(e.Status),
		InvoiceID:      e.InvoiceID,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	if doc.RawData == nil {
		doc.RawData = bson.M{}
	}
	if _, err := s.db.Collection(errorInvoicesCollection).InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *Store) ListErrorInvoices(ctx context.Context, status internal.ErrorStatus) ([]internal.ErrorInvoice, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = string(status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection(errorInvoicesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []errorInvoiceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]internal.ErrorInvoice, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *Store) GetErrorInvoice(ctx context.Context, id string) (internal.ErrorInvoice, error) {
	var doc errorInvoiceDoc
	err := s.db.Collection(errorInvoicesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return internal.ErrorInvoice{}, storage.ErrNotFound
	}
	if err != nil {
		return internal.ErrorInvoice{}, err
	}
	return doc.toModel(), nil
}

func (s *Store) CountErrorInvoices(ctx context.Context, status internal.ErrorStatus) (int, error) {
	n, err := s.db.Collection(errorInvoicesCollection).CountDocuments(ctx, bson.M{"status": string(status)})
	return int(n), err
}

// ResolveErrorInvoice claims the pending error record before writing the
// invoice, so two concurrent corrections cannot both succeed.
func (s *Store) ResolveErrorInvoice(ctx context.Context, id string, raw internal.RawRecord) (string, error) {
	invoiceID := documentID(raw)
	coll := s.db.Collection(errorInvoicesCollection)

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(internal.ErrorPending)},
		bson.M{"$set": bson.M{"status": string(internal.ErrorResolved), "invoiceId": invoiceID, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return "", err
	}
	if res.MatchedCount == 0 {
		n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", storage.ErrNotFound
		}
		return "", storage.ErrAlreadyResolved
	}

	withID := internal.RawRecord{}
	for k, v := range raw {
		withID[k] = v
	}
	withID["id"] = invoiceID
	if _, err := s.InsertInvoice(ctx, withID); err != nil {
		_, _ = coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
			"$set":   bson.M{"status": string(internal.ErrorPending), "updatedAt": time.Now().UTC()},
			"$unset": bson.M{"invoiceId": ""},
		})
		return "", err
	}
	return invoiceID, nil
}

type emailDoc struct {
	ID         string `bson:"_id"`
	Provider   string `bson:"provider"`
	MessageID  string `bson:"messageId"`
	Subject    string `bson:"subject"`
	Sender     string `bson:"sender"`
	ReceivedAt string `bson:"receivedAt"`
	Hash       string `bson:"hash"`
	Status     string `bson:"status"`
	RawRef     string `bson:"rawRef"`
}

func (d emailDoc) toModel() internal.EmailRow {
	return internal.EmailRow{
		ID:         d.ID,
		Provider:   d.Provider,
		MessageID:  d.MessageID,
		Subject:    d.Subject,
		Sender:     d.Sender,
		ReceivedAt: d.ReceivedAt,
		Hash:       d.Hash,
		Status:     d.Status,
		RawRef:     d.RawRef,
	}
}

func (s *Store) UpsertEmail(ctx context.Context, provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	coll := s.db.Collection(emailsCollection)
	filter := bson.M{"provider": provider, "messageId": messageID}
	update := bson.M{
		"$set": bson.M{
			"subject":    subject,
			"sender":     sender,
			"receivedAt": receivedAt,
			"hash":       hash,
			"rawRef":     rawRef,
		},
		"$setOnInsert": bson.M{"_id": uuid.NewString(), "status": status},
	}
	if _, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return internal.EmailRow{}, err
	}
	var doc emailDoc
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return internal.EmailRow{}, fmt.Errorf("failed to upsert email: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Store) ListEmailsByStatus(ctx context.Context, status string, limit int) ([]internal.EmailRow, error) {
	opts := options.Find().SetSort(bson.D{{Key: "receivedAt", Value: 1}}).SetLimit(int64(limit))
	cur, err := s.db.Collection(emailsCollection).Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, err
	}
	var docs []emailDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]internal.EmailRow, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *Store) UpdateEmailStatus(ctx context.Context, emailID string, status string) error {
	_, err := s.db.Collection(emailsCollection).UpdateOne(ctx, bson.M{"_id": emailID}, bson.M{"$set": bson.M{"status": status}})
	return err
}

func (s *Store) InsertRun(ctx context.Context, traceID, kind string, timings map[string]float64, counts map[string]int) error {
	_, err := s.db.Collection(runsCollection).InsertOne(ctx, bson.M{
		"traceId":   traceID,
		"kind":      kind,
		"timings":   timings,
		"counts":    counts,
		"createdAt": time.Now().UTC(),
	})
	return err
}

func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.Collection(metadataCollection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value, "updatedAt": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) GetMetadata(ctx context.Context, key string) (*string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := s.db.Collection(metadataCollection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc.Value, nil
}
