package http

import (
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/service/messages"
)

// ChatHandlers provides read-only HTTP access to chats and their history.
type ChatHandlers struct {
	messages        *messages.Service
	historyPageSize int
	log             *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *messages.Service, historyPageSize int, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{messages: svc, historyPageSize: historyPageSize, log: logger}
}

// ListChats returns the caller's chat list, most recent first.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	uid, ok := sessionUID(c)
	if !ok {
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	entries, err := h.messages.ChatList(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(stdhttp.StatusOK, proto.GetChatListResponse{Response: proto.OK(), ChatList: chatListEntries(entries)})
}

// History returns a chat's messages in timestamp order.
// GET /api/chats/:chatId/messages?limit=50&before=1700000000000
func (h *ChatHandlers) History(c *gin.Context) {
	uid, ok := sessionUID(c)
	if !ok {
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	limit := h.historyPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		before = time.UnixMilli(ms)
	}

	chatID := c.Param("chatId")
	msgs, err := h.messages.History(c.Request.Context(), uid, chatID, limit, before)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(stdhttp.StatusOK, proto.GetChatHistoryResponse{Response: proto.OK(), ChatID: chatID, Messages: messagePayloads(msgs)})
}
