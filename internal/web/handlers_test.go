package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"invoicedash/internal"
	"invoicedash/internal/auth"
	"invoicedash/internal/dashboard"
	"invoicedash/internal/logger"
	"invoicedash/internal/storage"
	"invoicedash/internal/summary"
)

type MockSummarizer struct {
	SummarizeFunc func(ctx context.Context, inv internal.Invoice) (summary.Summary, error)
}

func (m *MockSummarizer) Summarize(ctx context.Context, inv internal.Invoice) (summary.Summary, error) {
	return m.SummarizeFunc(ctx, inv)
}

type testEnv struct {
	handler http.Handler
	db      *storage.DB
	pdfDir  string
	cookie  *http.Cookie
}

func newTestEnv(t *testing.T, summarizer dashboard.Summarizer) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pdfDir := t.TempDir()
	dash := dashboard.NewService(db, summarizer, pdfDir)
	authSvc := auth.NewService(auth.DemoProvider{
		User:        internal.User{ID: "demo", Name: "Demo", Email: "demo@example.com"},
		CallbackURL: "/auth/callback",
	}, time.Hour, false)
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

	env := &testEnv{handler: NewServer(dash, authSvc, NewMetrics(), log).Handler(), db: db, pdfDir: pdfDir}
	env.cookie = env.login(t)
	return env
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := e.request(http.MethodGet, "/auth/login", nil, false)
	require.Equal(t, http.StatusFound, w.Code)
	w = e.request(http.MethodGet, w.Header().Get("Location"), nil, false)
	require.Equal(t, http.StatusFound, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func (e *testEnv) request(method, target string, body []byte, withSession bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withSession && e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(target string) *httptest.ResponseRecorder {
	return e.request(http.MethodGet, target, nil, true)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Fields  []struct {
		Field string `json:"field"`
	} `json:"fields"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func seedInvoices(t *testing.T, db *storage.DB) {
	t.Helper()
	docs := []internal.RawRecord{
		{"id": "a", "numero_factura": "F-1", "nombre_empresa": "Acme", "fecha_emision": "2026-01-10", "subtotal": 100, "impuesto": "21", "total": 121},
		{"id": "b", "numero_factura": "F-2", "nombre_empresa": "Initech", "fecha_emision": "2026-02-10", "subtotal": 10, "total": 10},
	}
	for _, doc := range docs {
		_, err := db.InsertInvoice(context.Background(), doc)
		require.NoError(t, err)
	}
}

func TestPublicRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("Should answer health checks without a session", func(t *testing.T) {
		w := env.request(http.MethodGet, "/healthz", nil, false)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should expose request counters", func(t *testing.T) {
		env.get("/api/stats")
		w := env.request(http.MethodGet, "/metrics", nil, false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",route="/api/stats",status="200"}`)
	})

	t.Run("Should guard the API", func(t *testing.T) {
		w := env.request(http.MethodGet, "/api/invoices", nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, decode(t, w).Success)
	})

	t.Run("Should return the signed-in user", func(t *testing.T) {
		w := env.get("/api/me")
		require.Equal(t, http.StatusOK, w.Code)
		var user internal.User
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &user))
		assert.Equal(t, "demo@example.com", user.Email)
	})
}

func TestInvoiceRoutes(t *testing.T) {
	env := newTestEnv(t, &MockSummarizer{SummarizeFunc: func(_ context.Context, inv internal.Invoice) (summary.Summary, error) {
		return summary.Summary{InvoiceID: inv.ID, Text: "Summary of " + inv.InvoiceNumber}, nil
	}})
	seedInvoices(t, env.db)

	t.Run("Should list normalized invoices with filters", func(t *testing.T) {
		w := env.get("/api/invoices?q=acme&pageSize=10")
		require.Equal(t, http.StatusOK, w.Code)
		var page dashboard.Page
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, "F-1", page.Items[0].InvoiceNumber)
		assert.Equal(t, 21.0, page.Items[0].Tax)
		assert.Equal(t, 10, page.PageSize)
	})

	t.Run("Should reject malformed numbers", func(t *testing.T) {
		w := env.get("/api/invoices?minTotal=lots")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should reject unknown sort fields", func(t *testing.T) {
		w := env.get("/api/invoices?sort=color")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Should fetch one invoice or 404", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, env.get("/api/invoices/b").Code)
		assert.Equal(t, http.StatusNotFound, env.get("/api/invoices/zzz").Code)
	})

	t.Run("Should summarize an invoice", func(t *testing.T) {
		w := env.request(http.MethodPost, "/api/invoices/a/summary", nil, true)
		require.Equal(t, http.StatusOK, w.Code)
		var sum summary.Summary
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &sum))
		assert.Equal(t, "Summary of F-1", sum.Text)
	})

	t.Run("Should return chart stats", func(t *testing.T) {
		w := env.get("/api/stats")
		require.Equal(t, http.StatusOK, w.Code)
		var st dashboard.Stats
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &st))
		assert.Equal(t, 2, st.InvoiceCount)
		assert.Equal(t, 131.0, st.Total)
	})

	t.Run("Should export a workbook", func(t *testing.T) {
		w := env.get("/api/export.xlsx?sort=invoiceNumber")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
		f, err := excelize.OpenReader(w.Body)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Invoices")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "F-1", rows[1][1])
	})
}

func TestSummaryDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	seedInvoices(t, env.db)

	w := env.request(http.MethodPost, "/api/invoices/a/summary", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestErrorRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pdfPath := filepath.Join(env.pdfDir, "scan.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 test"), 0o644))
	id, err := env.db.InsertErrorInvoice(ctx, internal.ErrorInvoice{
		FileName:     "scan.pdf",
		PDFPath:      pdfPath,
		ErrorMessage: "missing fields: total",
		RawData:      internal.RawRecord{"numero_factura": "F-7"},
	})
	require.NoError(t, err)

	t.Run("Should list pending error invoices", func(t *testing.T) {
		w := env.get("/api/errors")
		require.Equal(t, http.StatusOK, w.Code)
		var list []internal.ErrorInvoice
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
		require.Len(t, list, 1)
		assert.Equal(t, "/api/errors/"+id+"/pdf", list[0].PDFURL)

		assert.Equal(t, http.StatusBadRequest, env.get("/api/errors?status=weird").Code)
	})

	t.Run("Should stream the source PDF", func(t *testing.T) {
		w := env.get("/api/errors/" + id + "/pdf")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
	})

	t.Run("Should return field errors for an invalid correction", func(t *testing.T) {
		w := env.request(http.MethodPost, "/api/errors/"+id+"/correct", []byte(`{"invoiceNumber":"F-7"}`), true)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decode(t, w)
		assert.NotEmpty(t, body.Fields)
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		w := env.request(http.MethodPost, "/api/errors/"+id+"/correct", []byte(`{`), true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should resolve with a valid correction and refuse a second one", func(t *testing.T) {
		body := []byte(`{
			"invoiceNumber": "F-7",
			"billedTo": "Globex",
			"companyName": "Acme",
			"dateOfIssue": "2026-03-01",
			"tax": 2.1,
			"items": [{"description": "Support", "quantity": 1, "rate": 10}]
		}`)
		w := env.request(http.MethodPost, "/api/errors/"+id+"/correct", body, true)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var inv internal.Invoice
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &inv))
		assert.Equal(t, 10.0, inv.Subtotal)
		assert.Equal(t, 12.1, inv.Total)

		w = env.request(http.MethodPost, "/api/errors/"+id+"/correct", body, true)
		assert.Equal(t, http.StatusConflict, w.Code)

		w = env.get("/api/errors?status=resolved")
		var list []internal.ErrorInvoice
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
		require.Len(t, list, 1)
		assert.Equal(t, internal.ErrorResolved, list[0].Status)
	})

	t.Run("Should 404 unknown error invoices", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.get("/api/errors/nope").Code)
		assert.Equal(t, http.StatusNotFound, env.get("/api/errors/nope/pdf").Code)
	})
}
