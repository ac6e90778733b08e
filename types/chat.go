package types

import "encoding/json"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat. Zero-valued tuning fields fall
// back to the configured defaults.
type ChatRequest struct {
	Message        string    `json:"message"`
	History        []Message `json:"history,omitempty"`
	TopK           int       `json:"top_k,omitempty"`
	Temperature    *float32  `json:"temperature,omitempty"`
	MaxTokens      int       `json:"max_tokens,omitempty"`
	IncludeContext bool      `json:"include_context,omitempty"`
}

type Source struct {
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
	Snippet    string `json:"snippet"`
}

type ChatResponse struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	LatencyMs int64    `json:"latency_ms"`
	Context   *string  `json:"context,omitempty"`
}

const (
	TypeWebsocketPing          = "ping"
	TypeWebsocketPong          = "pong"
	TypeWebsocketChat          = "chat"
	TypeWebsocketRebuildStatus = "rebuild_status"
	TypeWebsocketError         = "error"
)

type WebsocketRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WebSocketResponse struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type WebSocketErrorResponse struct {
	Message string `json:"message"`
}
