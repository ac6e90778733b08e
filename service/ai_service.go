package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tieubaoca/course-assistant/config"
	"github.com/tieubaoca/course-assistant/types"
)

type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
}

// Completer is the language model behind the assistant. messages starts with
// the system prompt and ends with the user turn to answer.
type Completer interface {
	Complete(ctx context.Context, messages []types.Message, opts CompletionOptions) (string, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewCompleter builds the completion client for the configured provider.
func NewCompleter(cfg *config.Config) (Completer, error) {
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		if cfg.LLM.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", config.ErrInvalidConfig)
		}
		return NewOpenAIService(cfg.LLM.BaseURL, cfg.LLM.OpenAIAPIKey, cfg.LLM.Model), nil
	case config.ProviderGemini:
		var keys []string
		for _, k := range strings.Split(cfg.LLM.GeminiAPIKey, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return NewGeminiService(keys, cfg.LLM.Model)
	}
	return nil, fmt.Errorf("%w: unknown llm provider %q", config.ErrInvalidConfig, cfg.LLM.Provider)
}

// NewEmbedder builds the embedding client. Embeddings always go through an
// OpenAI-compatible endpoint, whichever provider answers questions.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	if cfg.LLM.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", config.ErrInvalidConfig)
	}
	return NewOpenAIEmbedder(cfg.EmbeddingBaseURL(), cfg.LLM.OpenAIAPIKey, cfg.Embedding.Model), nil
}
