package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/course-assistant/logger"
	"github.com/tieubaoca/course-assistant/service"
	"github.com/tieubaoca/course-assistant/types"
	"go.uber.org/zap"
)

type ChatService interface {
	Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error)
}

type ChatHandler struct {
	chatService ChatService
	wsService   *service.WebSocketService
}

func NewChatHandler(backend service.ChatBackend) *ChatHandler {
	return &ChatHandler{
		chatService: backend,
		wsService:   service.NewWebSocketService(backend),
	}
}

func (h *ChatHandler) HandleChat(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  false,
			Message: "Invalid request body",
		})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  false,
			Message: "message is required",
		})
		return
	}

	resp, err := h.chatService.Chat(c.Request.Context(), req)
	if err != nil {
		logger.Error("chat failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.DataResponse{
			Status:  false,
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) HandlePing(c *gin.Context) {
	c.JSON(http.StatusOK, types.PingResponse{
		OK: true,
		Ts: float64(time.Now().UnixNano()) / float64(time.Second),
	})
}

func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	h.wsService.HandleChat(c.Writer, c.Request)
}
