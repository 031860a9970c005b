package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/presence"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

var errSuperseded = errors.New("session superseded")

// WSOptions tunes each WebSocket connection.
type WSOptions struct {
	PingInterval       time.Duration
	PingTimeout        time.Duration
	MaxMessageBytes    int64
	ClientBuffer       int
	RateLimitPerMinute int
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	dispatcher *Dispatcher
	presence   *presence.Registry
	opts       WSOptions
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(dispatcher *Dispatcher, reg *presence.Registry, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{dispatcher: dispatcher, presence: reg, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	client := core.NewClient(uuid.NewString(), h.opts.ClientBuffer)
	client.RemoteAddr = r.RemoteAddr
	defer client.Close()
	defer h.presence.Unbind(context.WithoutCancel(r.Context()), client)

	limiter := newRateLimiter(h.opts.RateLimitPerMinute, time.Minute)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	sess := newSession(client, limiter)
	h.log.Debug().Str("client_id", client.ID).Str("remote", client.RemoteAddr).Msg("ws connected")

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return h.readLoop(ctx, conn, sess) })
	g.Go(func() error { return h.writeLoop(ctx, conn, client) })
	g.Go(func() error { return h.pingLoop(ctx, conn, client) })
	err = g.Wait()

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errSuperseded):
		status = websocket.StatusPolicyViolation
		reason = errSuperseded.Error()
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Debug().Str("client_id", client.ID).Str("uid", client.UID()).Msg("ws disconnected")
	conn.Close(status, reason)
}

// readLoop decodes frames itself rather than with wsjson.Read, which closes
// the connection on malformed JSON.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", sess.client.ID).Msg("malformed ws frame")
			sess.client.SendWait(ctx, protocolError(core.ErrCodeBadRequest, "malformed frame"))
			continue
		}
		if inbound.Type == "" {
			sess.client.SendWait(ctx, protocolError(core.ErrCodeBadRequest, "type is required"))
			continue
		}
		h.dispatcher.Dispatch(ctx, sess, inbound)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			// flush what was queued before the close, e.g. sessionSuperseded
			for {
				select {
				case event := <-client.Events:
					if err := h.write(ctx, conn, event); err != nil {
						return err
					}
				default:
					return errSuperseded
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, event *core.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout())
	defer cancel()
	return wsjson.Write(ctx, conn, outboundFromEvent(event))
}

func (h *WSHandler) writeTimeout() time.Duration {
	if h.opts.PingTimeout > 0 {
		return h.opts.PingTimeout
	}
	return 10 * time.Second
}

// pingLoop probes the peer and refreshes presence while it answers.
func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	if h.opts.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout())
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Str("client_id", client.ID).Msg("ping failed")
				return err
			}
			if client.UID() != "" {
				h.presence.Touch(ctx, client)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
