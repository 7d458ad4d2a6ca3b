package http

import (
	"net/http"
	"strconv"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	"chatgate/internal/infrastructure/middleware"
	apperrors "chatgate/pkg/errors"

	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 500

// MessageHandler routes are mounted behind RoomAccessMiddleware.
type MessageHandler struct {
	messages *services.MessageChannel
}

func NewMessageHandler(messages *services.MessageChannel) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type PostMessageRequest struct {
	Message string `json:"message"`
}

// ListMessages returns the room transcript oldest first. ?limit=N keeps the
// newest N.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxHistoryLimit {
			c.Error(apperrors.NewInvalidInputError("limit must be between 0 and 500"))
			return
		}
		limit = n
	}

	roomID := domain.RoomID(c.Param("id"))
	msgs, err := h.messages.History(c.Request.Context(), roomID, limit)
	if err != nil {
		c.Error(err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": msgs})
}

// PostMessage writes synchronously so the caller learns about failures.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	roomID := domain.RoomID(c.Param("id"))
	id, err := h.messages.Append(c.Request.Context(), roomID, middleware.Username(c), req.Message)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "room_id": roomID})
}
