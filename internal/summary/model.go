package summary

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"invoicedash/internal/config"
)

// ErrNoModel means no language model is configured and summaries are off.
var ErrNoModel = errors.New("summary model not configured")

// Generator is the part of a langchaingo model the summarizer needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewModel builds the hosted model client from configuration. LLM_PROVIDER
// "azure" targets an Azure OpenAI deployment named by LLM_MODEL.
func NewModel(cfg config.Config) (Generator, error) {
	if cfg.LLMAPIKey == "" {
		return nil, ErrNoModel
	}

	opts := []openai.Option{
		openai.WithModel(cfg.LLMModel),
		openai.WithToken(cfg.LLMAPIKey),
	}
	switch cfg.LLMProvider {
	case "azure":
		if err := cfg.Require("LLM_BASE_URL", cfg.LLMBaseURL); err != nil {
			return nil, err
		}
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(cfg.LLMAPIVersion),
			openai.WithBaseURL(cfg.LLMBaseURL),
		)
	case "openai", "":
		if cfg.LLMBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLMBaseURL))
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMProvider)
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cfg.LLMProvider, err)
	}
	return llm, nil
}
