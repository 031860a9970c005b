package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/service/friends"
)

// FriendsHandlers provides HTTP handlers for friend management endpoints.
type FriendsHandlers struct {
	service *friends.Service
	log     *zerolog.Logger
}

// NewFriendsHandlers creates a new friends handlers instance.
func NewFriendsHandlers(svc *friends.Service, logger *zerolog.Logger) *FriendsHandlers {
	return &FriendsHandlers{
		service: svc,
		log:     logger,
	}
}

// SendFriendRequestRequest represents the request body for sending a friend request.
type SendFriendRequestRequest struct {
	ToUID string `json:"toUid" binding:"required"`
}

// ListFriends returns the caller's friends with their online state.
// GET /api/friends
func (h *FriendsHandlers) ListFriends(c *gin.Context) {
	uid, ok := sessionUID(c)
	if !ok {
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	list, err := h.service.ListFriends(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(stdhttp.StatusOK, proto.GetFriendListResponse{Response: proto.OK(), Friends: userInfos(list)})
}

// SendRequest handles sending a friend request.
// POST /api/friends/requests
func (h *FriendsHandlers) SendRequest(c *gin.Context) {
	uid, ok := sessionUID(c)
	if !ok {
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid friend request body")
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.service.SendRequest(c.Request.Context(), uid, req.ToUID); err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(stdhttp.StatusAccepted, proto.FriendRequestResponse{Response: proto.OK(), ToUID: req.ToUID})
}
