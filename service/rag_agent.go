package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tieubaoca/course-assistant/logger"
	"github.com/tieubaoca/course-assistant/types"
	"go.uber.org/zap"
)

const (
	// NoContextPlaceholder stands in for the course material when retrieval finds nothing.
	NoContextPlaceholder = "(no relevant course material found)"

	snippetRunes = 500
)

// Retriever is the search side of the vector index.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]types.SearchResult, error)
}

type AgentConfig struct {
	SystemPrompt string
	TopK         int
	Temperature  float32
	MaxTokens    int
}

// RAGAgent answers questions from retrieved course material.
type RAGAgent struct {
	retriever Retriever
	completer Completer
	cfg       AgentConfig
}

func NewRAGAgent(retriever Retriever, completer Completer, cfg AgentConfig) *RAGAgent {
	return &RAGAgent{retriever: retriever, completer: completer, cfg: cfg}
}

// FormatCitation renders one result as 【source: file (page N)】content. The
// page qualifier is left out for unpaged formats.
func FormatCitation(r types.SearchResult) string {
	return "【source: " + FormatSource(r.Metadata.Filename, r.Metadata.PageNumber) + "】" + r.Content
}

// FormatSource renders "file" or "file (page N)"; page 0 means unpaged.
func FormatSource(filename string, page int) string {
	if filename == "" {
		filename = "unknown file"
	}
	if page != 0 {
		return fmt.Sprintf("%s (page %d)", filename, page)
	}
	return filename
}

// RetrieveContext searches the index and joins the formatted results in
// similarity order. No results give an empty context.
func (a *RAGAgent) RetrieveContext(ctx context.Context, query string, topK int) (string, []types.SearchResult, error) {
	results, err := a.retriever.Search(ctx, query, topK)
	if err != nil {
		return "", nil, err
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, FormatCitation(r))
	}
	return strings.Join(parts, "\n"), results, nil
}

// Answer retrieves context for query and asks the model. Failures come back as
// the answer text so an interactive session keeps going.
func (a *RAGAgent) Answer(ctx context.Context, query string, history []types.Message) string {
	answer, _, _, err := a.answer(ctx, query, history, a.cfg.TopK, CompletionOptions{
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return "error generating answer: " + err.Error()
	}
	return answer
}

// Chat serves the admin chat operation. Zero-valued request fields fall back
// to the agent defaults.
func (a *RAGAgent) Chat(ctx context.Context, req types.ChatRequest) types.ChatResponse {
	start := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = a.cfg.TopK
	}
	opts := CompletionOptions{Temperature: a.cfg.Temperature, MaxTokens: a.cfg.MaxTokens}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		opts.MaxTokens = req.MaxTokens
	}

	answer, material, results, err := a.answer(ctx, req.Message, req.History, topK, opts)
	if err != nil {
		answer = "error generating answer: " + err.Error()
	}

	sources := make([]types.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, types.Source{
			Filename:   r.Metadata.Filename,
			PageNumber: r.Metadata.PageNumber,
			Snippet:    truncateRunes(r.Content, snippetRunes),
		})
	}
	resp := types.ChatResponse{
		Answer:    answer,
		Sources:   sources,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if req.IncludeContext {
		resp.Context = &material
	}
	return resp
}

func (a *RAGAgent) answer(ctx context.Context, query string, history []types.Message, topK int, opts CompletionOptions) (string, string, []types.SearchResult, error) {
	material, results, err := a.RetrieveContext(ctx, query, topK)
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		return "", "", nil, err
	}
	if material == "" {
		material = NoContextPlaceholder
	}

	answer, err := a.completer.Complete(ctx, a.buildMessages(query, material, history), opts)
	if err != nil {
		logger.Error("completion failed", zap.Error(err))
		return "", material, results, err
	}
	return answer, material, results, nil
}

func (a *RAGAgent) buildMessages(query, material string, history []types.Message) []types.Message {
	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, types.Message{Role: types.RoleSystem, Content: a.cfg.SystemPrompt})
	for _, m := range history {
		if (m.Role == types.RoleUser || m.Role == types.RoleAssistant) && m.Content != "" {
			messages = append(messages, m)
		}
	}
	messages = append(messages, types.Message{
		Role:    types.RoleUser,
		Content: UserPrompt(material, query),
	})
	return messages
}

// UserPrompt wraps retrieved context and the student's question into the final user turn.
func UserPrompt(material, query string) string {
	return "Answer the [Student question] based on the following [Course material].\n" +
		"[Course material]\n" + material + "\n" +
		"[Student question]\n" + query
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
