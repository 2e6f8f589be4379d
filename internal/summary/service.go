package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"invoicedash/internal"
	"invoicedash/internal/config"
	"invoicedash/internal/logger"
)

type Summary struct {
	InvoiceID   string    `json:"invoiceId"`
	Text        string    `json:"text"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generatedAt"`
	Cached      bool      `json:"cached"`
}

type Options struct {
	ModelName     string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	RateLimitRPS  int
	CacheSize     int
	CacheTTL      time.Duration
}

type Service struct {
	model   Generator
	opts    Options
	cache   *expirable.LRU[string, Summary]
	limiter *rate.Limiter
	now     func() time.Time
}

// NewService wraps model with caching, rate limiting and retries. Model calls
// are spaced at RateLimitRPS per second with no burst. A nil model
// yields a service whose Summarize always returns ErrNoModel.
func NewService(model Generator, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 1
	}
	return &Service{
		model:   model,
		opts:    opts,
		cache:   expirable.NewLRU[string, Summary](opts.CacheSize, nil, opts.CacheTTL),
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1),
		now:     time.Now,
	}
}

func (s *Service) Enabled() bool {
	return s != nil && s.model != nil
}

func (s *Service) Summarize(ctx context.Context, inv internal.Invoice) (Summary, error) {
	if !s.Enabled() {
		return Summary{}, ErrNoModel
	}
	key := cacheKey(inv)
	if cached, ok := s.cache.Get(key); ok {
		cached.Cached = true
		return cached, nil
	}

	log := logger.FromContext(ctx).With("invoiceId", inv.ID)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildPrompt(inv)),
	}

	backoff := retry.WithMaxRetries(uint64(s.opts.RetryAttempts), retry.NewExponential(s.opts.RetryBackoff))
	var text string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err := s.generate(ctx, messages)
		if err != nil {
			if isTransient(ctx, err) {
				log.Warn("summary attempt failed", "attempt", attempt, "err", err)
				return retry.RetryableError(err)
			}
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize invoice %s: %w", inv.ID, err)
	}

	result := Summary{
		InvoiceID:   inv.ID,
		Text:        text,
		Model:       s.opts.ModelName,
		GeneratedAt: s.now().UTC(),
	}
	s.cache.Add(key, result)
	log.Info("summary generated", "attempts", attempt, "chars", len(text))
	return result, nil
}

func (s *Service) generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	resp, err := s.model.GenerateContent(callCtx, messages, llms.WithTemperature(0.2), llms.WithMaxTokens(400))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", errEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

var errEmptyResponse = errors.New("model returned an empty summary")

// isTransient reports whether a failed call is worth retrying. A per-call
// timeout is transient; cancellation of the caller's context is not.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, probe := range []string{"429", "rate limit", "500", "502", "503", "504", "timeout", "connection reset", "eof"} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}

// cacheKey ties a cached summary to the invoice content, so an edited invoice
// gets a fresh summary.
func cacheKey(inv internal.Invoice) string {
	blob, _ := json.Marshal(inv)
	sum := sha256.Sum256(blob)
	return inv.ID + ":" + hex.EncodeToString(sum[:8])
}

// OptionsFromConfig maps the LLM_* and SUMMARY_* settings onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		ModelName:     cfg.LLMModel,
		Timeout:       cfg.LLMTimeout(),
		RetryAttempts: cfg.LLMRetryAttempts,
		RateLimitRPS:  cfg.LLMRateLimitRPS,
		CacheSize:     cfg.SummaryCacheSize,
		CacheTTL:      cfg.SummaryCacheTTL(),
	}
}
