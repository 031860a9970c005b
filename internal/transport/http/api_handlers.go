package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse represents the registration response body.
type RegisterResponse struct {
	UID string `json:"uid"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Token    string `json:"token"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError renders err with the status matching its kind. Unexpected
// errors are logged and hidden.
func writeError(c *gin.Context, logger *zerolog.Logger, err error) {
	code, msg, known := failure(err)
	if !known {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(httpStatus(err), ErrorResponse{Error: msg, Code: code})
}

// Register handles user registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	u, err := h.authService.Register(c.Request.Context(), req.Username, req.Password, req.Nickname)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Info().Str("username", u.Username).Str("uid", u.UID).Msg("user registered successfully")
	c.JSON(stdhttp.StatusCreated, RegisterResponse{UID: u.UID})
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	u, token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Info().Str("username", u.Username).Msg("user logged in successfully")
	c.JSON(stdhttp.StatusOK, AuthResponse{UID: u.UID, Username: u.Username, Nickname: u.Nickname, Token: token})
}
