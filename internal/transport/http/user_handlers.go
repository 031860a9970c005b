package http

import (
	stdhttp "net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/presence"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/service/friends"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store    store.UserStore
	friends  *friends.Service
	presence *presence.Registry
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, svc *friends.Service, reg *presence.Registry, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:    st,
		friends:  svc,
		presence: reg,
		log:      logger,
	}
}

// ProfileResponse represents the caller's own profile.
type ProfileResponse struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Online   bool   `json:"online"`
}

// Me returns the authenticated user's profile.
// GET /api/me
func (h *UserHandlers) Me(c *gin.Context) {
	uid, ok := sessionUID(c)
	if !ok {
		h.log.Error().Msg("uid not found in context")
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	u, err := h.store.GetUser(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(stdhttp.StatusOK, ProfileResponse{
		UID:      u.UID,
		Username: u.Username,
		Nickname: u.Nickname,
		Online:   h.presence.IsOnline(u.UID),
	})
}

// SearchUsers handles searching for users.
// GET /api/users/search?q=query
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	uid, ok := sessionUID(c)
	if !ok {
		h.log.Error().Msg("uid not found in context")
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "search query is required"})
		return
	}

	found, err := h.friends.SearchUsers(c.Request.Context(), uid, query)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(stdhttp.StatusOK, proto.SearchUsersResponse{Response: proto.OK(), Users: userInfos(found)})
}
