package dashboard

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicedash/internal"
	"invoicedash/internal/normalize"
	"invoicedash/internal/storage"
	"invoicedash/internal/summary"
	"invoicedash/internal/util"
)

func openStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "dash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *storage.DB, docs ...internal.RawRecord) {
	t.Helper()
	for _, doc := range docs {
		_, err := db.InsertInvoice(context.Background(), doc)
		require.NoError(t, err)
	}
}

func fixedService(db *storage.DB, summarizer Summarizer, pdfDir string) *Service {
	svc := NewService(db, summarizer, pdfDir)
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func seedInvoices(t *testing.T, db *storage.DB) {
	seed(t, db,
		internal.RawRecord{"id": "a", "numero_factura": "F-001", "nombre_empresa": "Acme", "facturado_a": "Globex",
			"fecha_emision": "2026-01-15", "subtotal": 100, "tax": 21, "total": 121, "porcentaje_staffing": 50},
		internal.RawRecord{"id": "b", "numero_factura": "F-002", "nombre_empresa": "Initech", "facturado_a": "Acme Labs",
			"fecha_emision": "2026-02-03", "subtotal": 200, "impuesto": 10, "total": 220, "porcentaje_staffing": 100},
		internal.RawRecord{"id": "c", "numero_factura": "F-003", "nombre_empresa": "acme", "facturado_a": "Umbrella",
			"fecha_emision": "2026-01-20", "subtotal": 50.1, "impuesto": "5%", "total": 52.6, "file_name": "umbrella.pdf"},
		internal.RawRecord{"id": "d", "fecha_emision": "sometime"},
	)
}

func ids(invoices []internal.Invoice) []string {
	out := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, inv.ID)
	}
	return out
}

func TestListInvoices(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	seedInvoices(t, db)
	svc := fixedService(db, nil, t.TempDir())

	t.Run("Should default to newest issue date first", func(t *testing.T) {
		page, err := svc.ListInvoices(ctx, Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "b", "c", "a"}, ids(page.Items))
		assert.Equal(t, 4, page.Total)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, DefaultPageSize, page.PageSize)
		assert.Equal(t, 1, page.TotalPages)
	})

	t.Run("Should filter by free text across names and file", func(t *testing.T) {
		page, err := svc.ListInvoices(ctx, Query{Q: "ACME", Sort: "invoiceNumber"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids(page.Items))

		page, err = svc.ListInvoices(ctx, Query{Q: "umbrella.pdf"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, ids(page.Items))
	})

	t.Run("Should match company case-insensitively and exactly", func(t *testing.T) {
		page, err := svc.ListInvoices(ctx, Query{Company: "ACME", Sort: "total", Order: "asc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, ids(page.Items))
	})

	t.Run("Should apply inclusive date and total ranges", func(t *testing.T) {
		minTotal := 60.0
		page, err := svc.ListInvoices(ctx, Query{From: "2026-01-15", To: "2026-02-03", MinTotal: &minTotal, Sort: "dateOfIssue", Order: "asc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(page.Items))
	})

	t.Run("Should break ties by id", func(t *testing.T) {
		page, err := svc.ListInvoices(ctx, Query{Sort: "dueDate"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, ids(page.Items))
	})

	t.Run("Should paginate and clamp page size", func(t *testing.T) {
		page, err := svc.ListInvoices(ctx, Query{Sort: "invoiceNumber", Page: 2, PageSize: 3})
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
		assert.Equal(t, 2, page.TotalPages)

		page, err = svc.ListInvoices(ctx, Query{Page: 9})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.NotNil(t, page.Items)

		page, err = svc.ListInvoices(ctx, Query{PageSize: 1000})
		require.NoError(t, err)
		assert.Equal(t, MaxPageSize, page.PageSize)
	})

	t.Run("Should reject unknown sort fields and orders", func(t *testing.T) {
		_, err := svc.ListInvoices(ctx, Query{Sort: "color", Order: "sideways"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Fields, 2)
	})

	t.Run("Should export every match without paging", func(t *testing.T) {
		all, err := svc.Export(ctx, Query{PageSize: 1})
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	seedInvoices(t, db)
	_, err := db.InsertErrorInvoice(ctx, internal.ErrorInvoice{FileName: "x.pdf", ErrorMessage: "missing total"})
	require.NoError(t, err)

	st, err := fixedService(db, nil, t.TempDir()).Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, st.InvoiceCount)
	assert.Equal(t, 350.1, st.Subtotal)
	assert.Equal(t, 393.6, st.Total)
	assert.Equal(t, 43.51, st.Tax)
	assert.Equal(t, 37.5, st.AvgStaffingPercent)
	assert.Equal(t, 1, st.PendingErrors)

	assert.Equal(t, []Bucket{
		{Key: "2026-01", Count: 2, Total: 173.6},
		{Key: "2026-02", Count: 1, Total: 220},
		{Key: "unknown", Count: 1, Total: 0},
	}, st.ByMonth)

	require.Len(t, st.ByCompany, 4)
	assert.Equal(t, "Initech", st.ByCompany[0].Key)
	assert.Equal(t, 220.0, st.ByCompany[0].Total)
}

func TestAggregateNonFinite(t *testing.T) {
	t.Run("Should count documents with NaN or infinite money as zero", func(t *testing.T) {
		inv := normalize.NormalizeAt(internal.RawRecord{
			"id":       "bad",
			"total":    math.NaN(),
			"subtotal": math.Inf(1),
		}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

		var st Stats
		require.NotPanics(t, func() { st = aggregate([]internal.Invoice{inv}) })
		assert.Equal(t, 1, st.InvoiceCount)
		assert.Zero(t, st.Total)
		assert.Zero(t, st.Subtotal)
	})
}

func TestStatsEmpty(t *testing.T) {
	st, err := fixedService(openStore(t), nil, t.TempDir()).Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.InvoiceCount)
	assert.Empty(t, st.ByMonth)
	assert.Zero(t, st.AvgProjectPercent)
}

func TestCorrectErrorInvoice(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	pdfDir := t.TempDir()
	svc := fixedService(db, nil, pdfDir)

	errID, err := db.InsertErrorInvoice(ctx, internal.ErrorInvoice{
		FileName:       "scan.pdf",
		OnedriveFileID: "drive-1",
		PDFPath:        filepath.Join(pdfDir, "scan.pdf"),
		ErrorMessage:   "missing total",
		RawData:        internal.RawRecord{"numero_factura": "F-9"},
	})
	require.NoError(t, err)

	t.Run("Should list field problems", func(t *testing.T) {
		_, err := svc.CorrectErrorInvoice(ctx, errID, CorrectionForm{
			DateOfIssue:       "15/01/2026",
			Discount:          -1,
			ProjectPercentage: 120,
			Items:             []CorrectionItem{{Quantity: 1}},
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		fields := map[string]string{}
		for _, f := range verr.Fields {
			fields[f.Field] = f.Message
		}
		assert.Equal(t, "is required", fields["invoiceNumber"])
		assert.Equal(t, "is required", fields["billedTo"])
		assert.Equal(t, "is required", fields["companyName"])
		assert.Equal(t, "must be a date in YYYY-MM-DD format", fields["dateOfIssue"])
		assert.Equal(t, "must be at least 0", fields["discount"])
		assert.Equal(t, "must be at most 100", fields["projectPercentage"])
		assert.Equal(t, "is required", fields["items[0].description"])
	})

	t.Run("Should reject whitespace-only names and leave the error pending", func(t *testing.T) {
		_, err := svc.CorrectErrorInvoice(ctx, errID, CorrectionForm{
			InvoiceNumber: "   ",
			BilledTo:      "\t",
			CompanyName:   " ",
			DateOfIssue:   "2026-01-15",
			Items:         []CorrectionItem{{Description: "  ", Quantity: 1}},
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		fields := map[string]string{}
		for _, f := range verr.Fields {
			fields[f.Field] = f.Message
		}
		assert.Equal(t, "is required", fields["invoiceNumber"])
		assert.Equal(t, "is required", fields["billedTo"])
		assert.Equal(t, "is required", fields["companyName"])
		assert.Equal(t, "is required", fields["items[0].description"])

		e, err := svc.GetErrorInvoice(ctx, errID)
		require.NoError(t, err)
		assert.Equal(t, internal.ErrorPending, e.Status)
	})

	t.Run("Should derive amounts, store the invoice and resolve the error", func(t *testing.T) {
		tax := 21.0
		inv, err := svc.CorrectErrorInvoice(ctx, errID, CorrectionForm{
			InvoiceNumber: "F-9",
			BilledTo:      "Globex",
			CompanyName:   "Acme",
			DateOfIssue:   "2026-01-15",
			DueDate:       "2026-02-15",
			Tax:           tax,
			Items: []CorrectionItem{
				{Description: "Design", Quantity: 2, Rate: 30},
				{Description: "Fixed fee", Quantity: 1, Rate: 0, Amount: util.FloatPtr(40)},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "F-9", inv.InvoiceNumber)
		assert.Equal(t, 100.0, inv.Subtotal)
		assert.Equal(t, 121.0, inv.Total)
		assert.Equal(t, 21.0, inv.TaxRate)
		assert.Equal(t, "drive-1", inv.OnedriveFileID)
		require.NotNil(t, inv.FileName)
		assert.Equal(t, "scan.pdf", *inv.FileName)
		require.NotNil(t, inv.PDFURL)
		assert.Equal(t, "/api/errors/"+errID+"/pdf", *inv.PDFURL)
		require.Len(t, inv.Items, 2)
		assert.Equal(t, 60.0, inv.Items[0].Amount)

		e, err := svc.GetErrorInvoice(ctx, errID)
		require.NoError(t, err)
		assert.Equal(t, internal.ErrorResolved, e.Status)
		require.NotNil(t, e.InvoiceID)
		assert.Equal(t, inv.ID, *e.InvoiceID)
	})

	t.Run("Should refuse a second correction", func(t *testing.T) {
		_, err := svc.CorrectErrorInvoice(ctx, errID, CorrectionForm{
			InvoiceNumber: "F-9", BilledTo: "x", CompanyName: "y", DateOfIssue: "2026-01-15",
		})
		assert.ErrorIs(t, err, storage.ErrAlreadyResolved)
	})

	t.Run("Should report unknown error invoices", func(t *testing.T) {
		_, err := svc.CorrectErrorInvoice(ctx, "missing", CorrectionForm{
			InvoiceNumber: "F-9", BilledTo: "x", CompanyName: "y", DateOfIssue: "2026-01-15",
		})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestOpenErrorPDF(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	pdfDir := t.TempDir()
	svc := fixedService(db, nil, pdfDir)

	inside := filepath.Join(pdfDir, "abc.pdf")
	require.NoError(t, os.WriteFile(inside, []byte("%PDF-1.4"), 0o644))
	outside := filepath.Join(t.TempDir(), "secret.pdf")
	require.NoError(t, os.WriteFile(outside, []byte("%PDF-1.4"), 0o644))

	okID, err := db.InsertErrorInvoice(ctx, internal.ErrorInvoice{FileName: "abc.pdf", PDFPath: inside})
	require.NoError(t, err)
	escapeID, err := db.InsertErrorInvoice(ctx, internal.ErrorInvoice{FileName: "secret.pdf", PDFPath: outside})
	require.NoError(t, err)
	noPDFID, err := db.InsertErrorInvoice(ctx, internal.ErrorInvoice{FileName: "none"})
	require.NoError(t, err)

	t.Run("Should return stored PDFs inside the PDF directory", func(t *testing.T) {
		path, err := svc.OpenErrorPDF(ctx, okID)
		require.NoError(t, err)
		assert.Equal(t, inside, path)
	})

	t.Run("Should refuse paths outside the PDF directory", func(t *testing.T) {
		_, err := svc.OpenErrorPDF(ctx, escapeID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Should report records without a PDF", func(t *testing.T) {
		_, err := svc.OpenErrorPDF(ctx, noPDFID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Should expose a download URL on listed records", func(t *testing.T) {
		list, err := svc.ListErrorInvoices(ctx, internal.ErrorPending)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for _, e := range list {
			if e.ID == noPDFID {
				assert.Empty(t, e.PDFURL)
			} else {
				assert.Equal(t, "/api/errors/"+e.ID+"/pdf", e.PDFURL)
			}
		}
	})
}

type stubSummarizer struct {
	fn func(ctx context.Context, inv internal.Invoice) (summary.Summary, error)
}

func (s stubSummarizer) Summarize(ctx context.Context, inv internal.Invoice) (summary.Summary, error) {
	return s.fn(ctx, inv)
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	seedInvoices(t, db)

	t.Run("Should pass the normalized invoice to the summarizer", func(t *testing.T) {
		svc := fixedService(db, stubSummarizer{fn: func(_ context.Context, inv internal.Invoice) (summary.Summary, error) {
			return summary.Summary{InvoiceID: inv.ID, Text: inv.CompanyName}, nil
		}}, t.TempDir())
		got, err := svc.Summarize(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "Initech", got.Text)
	})

	t.Run("Should report a disabled summarizer", func(t *testing.T) {
		_, err := fixedService(db, nil, t.TempDir()).Summarize(ctx, "b")
		assert.ErrorIs(t, err, summary.ErrNoModel)
	})

	t.Run("Should report unknown invoices", func(t *testing.T) {
		svc := fixedService(db, stubSummarizer{fn: func(context.Context, internal.Invoice) (summary.Summary, error) {
			return summary.Summary{}, errors.New("should not be called")
		}}, t.TempDir())
		_, err := svc.Summarize(ctx, "zzz")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
