package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// NewServer builds the HTTP server: health, the WebSocket gateway and the REST API.
func NewServer(svc Services, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(svc, st, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts the WebSocket gateway on a plain mux and hands every
// other path to the gin engine. /ws must not pass through gin: its
// ResponseWriter cannot be hijacked once the 101 status is written.
func NewHandler(svc Services, st store.Store, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	dispatcher := NewDispatcher(svc, cfg.HistoryPageSize, logger)
	ws := NewWSHandler(dispatcher, svc.Presence, WSOptions{
		PingInterval:       cfg.PingInterval,
		PingTimeout:        cfg.PingTimeout,
		MaxMessageBytes:    cfg.MaxMessageBytes,
		ClientBuffer:       cfg.ClientBuffer,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, logger)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", NewRouter(svc, st, cfg, logger))
	return mux
}

// NewRouter builds the gin engine serving health and the REST API.
func NewRouter(svc Services, st store.Store, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/health", healthHandler(st, svc))

	api := NewAPIHandlers(svc.Auth, logger)
	users := NewUserHandlers(st, svc.Friends, svc.Presence, logger)
	friendsH := NewFriendsHandlers(svc.Friends, logger)
	chats := NewChatHandlers(svc.Messages, cfg.HistoryPageSize, logger)

	r.POST("/api/register", api.Register)
	r.POST("/api/login", api.Login)

	authed := r.Group("/api", AuthMiddleware(svc.Auth, logger))
	authed.GET("/me", users.Me)
	authed.GET("/users/search", users.SearchUsers)
	authed.GET("/friends", friendsH.ListFriends)
	authed.POST("/friends/requests", friendsH.SendRequest)
	authed.GET("/chats", chats.ListChats)
	authed.GET("/chats/:chatId/messages", chats.History)

	return r
}

// HealthResponse reports liveness and the number of connected users.
type HealthResponse struct {
	Status string `json:"status"`
	Online int    `json:"online"`
}

func healthHandler(st store.Store, svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(stdhttp.StatusServiceUnavailable, HealthResponse{Status: "store unavailable"})
			return
		}
		c.JSON(stdhttp.StatusOK, HealthResponse{Status: "ok", Online: svc.Presence.Online()})
	}
}
