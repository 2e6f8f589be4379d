package summary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"invoicedash/internal"
	"invoicedash/internal/config"
	"invoicedash/internal/util"
)

type fakeModel struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	text     string
	lastText string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var parts []string
	for _, m := range messages {
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				parts = append(parts, tp.Text)
			}
		}
	}
	f.lastText = strings.Join(parts, "\n")
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.text}}}, nil
}

func testOptions() Options {
	return Options{
		ModelName:     "test-model",
		Timeout:       time.Second,
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
		RateLimitRPS:  1000,
	}
}

func sampleInvoice() internal.Invoice {
	return internal.Invoice{
		ID:            "inv-1",
		InvoiceNumber: "F-100",
		CompanyName:   "Acme",
		BilledTo:      "Globex",
		DateOfIssue:   "2026-03-01",
		DueDate:       util.StringPtr("2026-03-31"),
		Subtotal:      100,
		Tax:           21,
		TaxRate:       21,
		Total:         121,
		Items:         []internal.Item{{Description: "Consulting", Quantity: 2, Rate: 50, Amount: 100}},
	}
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the model text and include invoice facts in the prompt", func(t *testing.T) {
		model := &fakeModel{text: "  Acme billed Globex 121.00.  "}
		svc := NewService(model, testOptions())

		got, err := svc.Summarize(ctx, sampleInvoice())
		require.NoError(t, err)
		assert.Equal(t, "inv-1", got.InvoiceID)
		assert.Equal(t, "Acme billed Globex 121.00.", got.Text)
		assert.Equal(t, "test-model", got.Model)
		assert.False(t, got.Cached)
		assert.False(t, got.GeneratedAt.IsZero())
		assert.Contains(t, model.lastText, "Invoice number: F-100")
		assert.Contains(t, model.lastText, "Due date: 2026-03-31")
		assert.Contains(t, model.lastText, "1. Consulting | qty 2 | rate 50.00 | amount 100.00")
	})

	t.Run("Should serve repeated requests from cache", func(t *testing.T) {
		model := &fakeModel{text: "cached text"}
		svc := NewService(model, testOptions())

		_, err := svc.Summarize(ctx, sampleInvoice())
		require.NoError(t, err)
		again, err := svc.Summarize(ctx, sampleInvoice())
		require.NoError(t, err)
		assert.True(t, again.Cached)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("Should regenerate when the invoice content changes", func(t *testing.T) {
		model := &fakeModel{text: "text"}
		svc := NewService(model, testOptions())

		inv := sampleInvoice()
		_, err := svc.Summarize(ctx, inv)
		require.NoError(t, err)
		inv.Total = 500
		_, err = svc.Summarize(ctx, inv)
		require.NoError(t, err)
		assert.Equal(t, 2, model.calls)
	})

	t.Run("Should retry transient failures", func(t *testing.T) {
		model := &fakeModel{
			text: "after retry",
			errs: []error{errors.New("API returned unexpected status code: 503"), errors.New("rate limit reached")},
		}
		svc := NewService(model, testOptions())

		got, err := svc.Summarize(ctx, sampleInvoice())
		require.NoError(t, err)
		assert.Equal(t, "after retry", got.Text)
		assert.Equal(t, 3, model.calls)
	})

	t.Run("Should give up after the configured attempts", func(t *testing.T) {
		model := &fakeModel{errs: []error{
			errors.New("status 502"), errors.New("status 502"), errors.New("status 502"), errors.New("status 502"),
		}}
		svc := NewService(model, testOptions())

		_, err := svc.Summarize(ctx, sampleInvoice())
		require.Error(t, err)
		assert.Equal(t, 3, model.calls)
	})

	t.Run("Should not retry permanent failures", func(t *testing.T) {
		model := &fakeModel{errs: []error{errors.New("invalid api key")}}
		svc := NewService(model, testOptions())

		_, err := svc.Summarize(ctx, sampleInvoice())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid api key")
		assert.Equal(t, 1, model.calls)
	})

	t.Run("Should reject empty model output", func(t *testing.T) {
		model := &fakeModel{text: "   "}
		svc := NewService(model, testOptions())

		_, err := svc.Summarize(ctx, sampleInvoice())
		assert.ErrorIs(t, err, errEmptyResponse)
	})

	t.Run("Should give up waiting for a rate slot past the caller's deadline", func(t *testing.T) {
		model := &fakeModel{text: "ok"}
		opts := testOptions()
		opts.RateLimitRPS = 1
		svc := NewService(model, opts)

		_, err := svc.Summarize(ctx, sampleInvoice())
		require.NoError(t, err)

		other := sampleInvoice()
		other.ID = "inv-2"
		short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = svc.Summarize(short, other)
		require.Error(t, err)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("Should default to one model call per second", func(t *testing.T) {
		svc := NewService(&fakeModel{text: "ok"}, Options{})
		assert.Equal(t, rate.Limit(1), svc.limiter.Limit())
		assert.Equal(t, 1, svc.limiter.Burst())
	})

	t.Run("Should report a missing model", func(t *testing.T) {
		svc := NewService(nil, testOptions())
		assert.False(t, svc.Enabled())

		_, err := svc.Summarize(ctx, sampleInvoice())
		assert.ErrorIs(t, err, ErrNoModel)
	})
}

func TestNewModel(t *testing.T) {
	t.Run("Should be disabled without an API key", func(t *testing.T) {
		_, err := NewModel(config.Config{})
		assert.ErrorIs(t, err, ErrNoModel)
	})

	t.Run("Should require a base URL for azure", func(t *testing.T) {
		_, err := NewModel(config.Config{LLMProvider: "azure", LLMAPIKey: "k", LLMModel: "gpt"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LLM_BASE_URL")
	})

	t.Run("Should reject unknown providers", func(t *testing.T) {
		_, err := NewModel(config.Config{LLMProvider: "carrier-pigeon", LLMAPIKey: "k"})
		require.Error(t, err)
	})

	t.Run("Should build an openai client", func(t *testing.T) {
		model, err := NewModel(config.Config{LLMProvider: "openai", LLMAPIKey: "k", LLMModel: "gpt-4o-mini"})
		require.NoError(t, err)
		assert.NotNil(t, model)
	})
}

func TestPromptWithoutItems(t *testing.T) {
	inv := sampleInvoice()
	inv.Items = nil
	inv.DueDate = nil
	prompt := buildPrompt(inv)
	assert.Contains(t, prompt, "Line items: none")
	assert.Contains(t, prompt, "Due date: not stated")
}
