package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tieubaoca/course-assistant/logger"
	"github.com/tieubaoca/course-assistant/types"
	"go.uber.org/zap"
)

const (
	wsReadLimit   = 512 * 1024
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = wsPongWait * 9 / 10
	wsWriteWait   = 10 * time.Second
	wsErrBadInput = "Error processing message"
)

// ChatBackend is what the websocket needs from the application.
type ChatBackend interface {
	Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error)
	RebuildStatus() types.RebuildStatus
}

type WebSocketService struct {
	backend    ChatBackend
	upgrader   websocket.Upgrader
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewWebSocketService(backend ChatBackend) *WebSocketService {
	return &WebSocketService{
		backend:    backend,
		pongWait:   wsPongWait,
		pingPeriod: wsPingPeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (adjust for production)
			},
		},
	}
}

// HandleChat serves one websocket session. Requests are answered in order on
// the connection they arrived on.
func (s *WebSocketService) HandleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Control pings go through WriteControl, which is safe next to the
	// writes made by the read loop below.
	go func() {
		ticker := time.NewTicker(s.pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		// Nothing is read while a completion runs, so the deadline is
		// lifted until the reply is written.
		conn.SetReadDeadline(time.Time{})

		resp := s.handleMessage(ctx, p)
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("websocket write error", zap.Error(err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.pongWait))
	}
}

func (s *WebSocketService) handleMessage(ctx context.Context, p []byte) types.WebSocketResponse {
	var req types.WebsocketRequest
	if err := json.Unmarshal(p, &req); err != nil {
		logger.Debug("websocket unmarshal error", zap.Error(err))
		return wsError(wsErrBadInput)
	}

	switch req.Type {
	case types.TypeWebsocketPing:
		return types.WebSocketResponse{
			Type:    types.TypeWebsocketPong,
			Payload: types.PingResponse{OK: true, Ts: unixSeconds(time.Now())},
		}
	case types.TypeWebsocketRebuildStatus:
		return types.WebSocketResponse{
			Type:    types.TypeWebsocketRebuildStatus,
			Payload: s.backend.RebuildStatus(),
		}
	case types.TypeWebsocketChat:
		var chatReq types.ChatRequest
		if err := json.Unmarshal(req.Payload, &chatReq); err != nil {
			return wsError(wsErrBadInput)
		}
		if strings.TrimSpace(chatReq.Message) == "" {
			return wsError("message is required")
		}
		res, err := s.backend.Chat(ctx, chatReq)
		if err != nil {
			logger.Error("chat failed", zap.Error(err))
			return wsError(err.Error())
		}
		return types.WebSocketResponse{Type: types.TypeWebsocketChat, Payload: res}
	}
	return wsError("invalid message type: " + req.Type)
}

func wsError(msg string) types.WebSocketResponse {
	return types.WebSocketResponse{
		Type:    types.TypeWebsocketError,
		Payload: types.WebSocketErrorResponse{Message: msg},
	}
}
