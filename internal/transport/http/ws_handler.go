package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/core"
)

const writeTimeout = 10 * time.Second

// WSOptions tunes websocket connections.
type WSOptions struct {
	// InboundRateLimit is the number of client frames accepted per minute; excess frames are dropped.
	InboundRateLimit int
	// PingInterval is the keepalive period. Zero disables pings.
	PingInterval time.Duration
}

// WSHandler upgrades HTTP connections and bridges them to a core.Session.
type WSHandler struct {
	core *core.Core
	auth *auth.Service
	opts WSOptions
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(c *core.Core, authService *auth.Service, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{core: c, auth: authService, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	identity := h.identify(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	sess := h.core.NewSession(uuid.NewString(), identity)
	if err := sess.Connect(r.Context()); err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			h.log.Debug().Str("conn_id", sess.ID()).Msg("closing unauthenticated connection")
			_ = conn.Close(websocket.StatusNormalClosure, "unauthenticated")
			return
		}
		h.log.Error().Err(err).Str("conn_id", sess.ID()).Msg("connect session")
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	defer sess.Disconnect()

	if err := h.serve(r.Context(), conn, sess); err != nil {
		h.log.Warn().Err(err).Str("conn_id", sess.ID()).Msg("ws connection closed with error")
	}
}

func (h *WSHandler) identify(r *stdhttp.Request) core.Identity {
	token := requestToken(r)
	if token == "" {
		return core.Identity{}
	}
	user, claims, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		return core.Identity{}
	}
	return core.Identity{User: user, SessionID: claims.SessionID}
}

// serve runs the read, session, write and ping loops until the session ends.
// The write loop owns the close handshake so frames queued before the end are flushed.
func (h *WSHandler) serve(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan []byte)
	limiter := newRateLimiter(h.opts.InboundRateLimit)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return h.readLoop(gctx, conn, sess, limiter, inbound)
	})
	g.Go(func() error {
		defer sess.Disconnect()
		err := sess.Run(gctx, inbound)
		switch {
		case errors.Is(err, core.ErrSessionTerminated), errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, core.ErrSlowConsumer):
			h.log.Warn().Str("conn_id", sess.ID()).Msg("closing lagging connection")
			return nil
		}
		return err
	})
	g.Go(func() error {
		return h.writeLoop(ctx, conn, sess)
	})
	g.Go(func() error {
		return h.pingLoop(gctx, conn, sess)
	})
	return g.Wait()
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session, limiter *rateLimiter, inbound chan<- []byte) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return normalizeCloseErr(err)
		}
		if typ != websocket.MessageText {
			h.log.Debug().Str("conn_id", sess.ID()).Msg("dropping binary frame")
			continue
		}
		if !limiter.allow() {
			h.log.Debug().Str("conn_id", sess.ID()).Msg("inbound rate limit exceeded")
			continue
		}

		select {
		case inbound <- data:
		case <-sess.Done():
			// keep reading until the close handshake completes
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		select {
		case o := <-sess.Outbound():
			if err := h.write(ctx, conn, o); err != nil {
				return fmt.Errorf("write %s: %w", o.OutboundType(), normalizeCloseErr(err))
			}
		case <-sess.Done():
			h.flush(ctx, conn, sess)
			if sess.Overflowed() {
				// the client resyncs on reconnect
				_ = conn.Close(websocket.StatusTryAgainLater, "too slow")
				return nil
			}
			_ = conn.Close(websocket.StatusNormalClosure, "session ended")
			return nil
		}
	}
}

// flush writes whatever is still queued after the session ended.
func (h *WSHandler) flush(ctx context.Context, conn *websocket.Conn, sess *core.Session) {
	for {
		select {
		case o := <-sess.Outbound():
			if err := h.write(ctx, conn, o); err != nil {
				h.log.Debug().Err(err).Str("conn_id", sess.ID()).Msg("flush outbound")
				return
			}
		default:
			return
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	if h.opts.PingInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.opts.PingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// normalizeCloseErr maps orderly closes to nil.
func normalizeCloseErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusTryAgainLater:
		return nil
	}
	return err
}
