package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/tieubaoca/course-assistant/logger"
	"github.com/tieubaoca/course-assistant/types"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiService answers through the Gemini API. Several API keys may be
// configured; on a failed call it rotates to the next key and retries once.
type GeminiService struct {
	apiKeys    []string
	currentKey int
	client     *genai.Client
	modelName  string
	mu         sync.Mutex
}

func NewGeminiService(apiKeys []string, modelName string) (*GeminiService, error) {
	if len(apiKeys) == 0 {
		return nil, errors.New("no API keys provided")
	}
	service := &GeminiService{
		apiKeys:   apiKeys,
		modelName: modelName,
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKeys[0]))
	if err != nil {
		return nil, err
	}
	service.client = client
	return service, nil
}

func (s *GeminiService) currentClient() *genai.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *GeminiService) rotateAPIKey(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
	client, err := genai.NewClient(ctx, option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return err
	}
	old := s.client
	s.client = client
	if err := old.Close(); err != nil {
		logger.Warn("failed to close gemini client", zap.Error(err))
	}
	return nil
}

func (s *GeminiService) Complete(ctx context.Context, messages []types.Message, opts CompletionOptions) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to send")
	}
	var (
		system  []string
		history []*genai.Content
	)
	for _, msg := range messages[:len(messages)-1] {
		switch msg.Role {
		case types.RoleSystem:
			system = append(system, msg.Content)
		case types.RoleAssistant:
			history = append(history, &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}, Role: "model"})
		default:
			history = append(history, &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}, Role: "user"})
		}
	}
	prompt := messages[len(messages)-1].Content

	resp, err := s.send(ctx, system, history, prompt, opts)
	if err != nil && len(s.apiKeys) > 1 {
		logger.Warn("gemini call failed, rotating api key", zap.Error(err))
		if err := s.rotateAPIKey(ctx); err != nil {
			return "", err
		}
		resp, err = s.send(ctx, system, history, prompt, opts)
	}
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no response generated")
	}

	var content strings.Builder
	if cand := resp.Candidates[0]; cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				content.WriteString(string(text))
			}
		}
	}
	return content.String(), nil
}

func (s *GeminiService) send(ctx context.Context, system []string, history []*genai.Content, prompt string, opts CompletionOptions) (*genai.GenerateContentResponse, error) {
	model := s.currentClient().GenerativeModel(s.modelName)
	model.SetTemperature(opts.Temperature)
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}
	chat := model.StartChat()
	chat.History = history
	return chat.SendMessage(ctx, genai.Text(prompt))
}

func (s *GeminiService) Close() error {
	return s.currentClient().Close()
}
