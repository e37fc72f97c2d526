package syncauth

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/ldirer/livestore-chat/cmd/internal/auth/tokens"
)

const (
	wsSubprotocol = "chat.sync.v1"

	wsMaxPingFailures = 3
	wsCloseGrace      = 1 * time.Second
)

// handleWS upgrades to a WebSocket and runs the sync handshake.
//
// The first frame must be {"type":"auth","authToken","storeId"}. After auth.ok the
// connection stays open until the peer leaves or the token expires; a client renews
// by sending another auth frame for the same store with a fresh token.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	if err := enforceOrigin(r, g.cfg.OriginRequired, g.cfg.AllowedOrigins); err != nil {
		g.log.Info("sync.ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("sync.ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != wsSubprotocol {
		g.log.Info("sync.ws.reject.subprotocol", "got", sp, "want", wsSubprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(g.cfg.MaxFrameBytes)

	s := &wsSession{g: g, conn: conn, id: uuid.NewString()}
	s.run(r.Context())
}

type wsSession struct {
	g    *Gateway
	conn *websocket.Conn
	id   string

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *wsSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	s.cancel = cancel

	claims, storeID, ok := s.handshake(ctx)
	if !ok {
		return
	}

	expiry := time.AfterFunc(claims.ExpiresAt.Sub(s.g.clock()), func() {
		s.g.log.Info("sync.ws.expired", "session_id", s.id, "user_id", claims.Subject)
		s.send(ctx, serverMessage{Type: typeAuthExpired, Message: "sync token expired"})
		s.shutdown(websocket.StatusPolicyViolation, "token expired")
	})
	defer expiry.Stop()

	heartbeatDone := make(chan struct{})
	go s.heartbeat(ctx, heartbeatDone)

	rl := newRateLimiter(s.g.cfg.RateEvents, s.g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, s.g.cfg.ReadIdleTimeout)
		var msg clientMessage
		err := wsjson.Read(readCtx, s.conn, &msg)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose, readErrCtxDone:
				s.shutdown(websocket.StatusNormalClosure, "bye")
			default:
				s.g.log.Info("sync.ws.read.fail", "session_id", s.id, "err", err)
				s.shutdownNow()
			}
			break readLoop
		}

		now := s.g.clock()
		if !rl.allow(now) {
			s.sendError(ctx, "rate_limited", "too many messages")
			s.shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		switch msg.Type {
		case typePing:
			s.send(ctx, serverMessage{Type: typePong})

		case typeAuth:
			if strings.TrimSpace(msg.StoreID) != storeID {
				s.sendError(ctx, "store_mismatch", "a connection is bound to one store")
				continue readLoop
			}
			next, err := s.g.auth.Authorize(msg.AuthToken, storeID, now)
			if err != nil {
				s.sendError(ctx, Code(err), err.Error())
				continue readLoop
			}
			expiry.Reset(next.ExpiresAt.Sub(now))
			s.send(ctx, authOK(next, storeID))

		default:
			s.sendError(ctx, "unsupported", "unsupported message type")
		}
	}

	s.shutdown(websocket.StatusNormalClosure, "bye")

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// handshake reads and verifies the auth frame. It closes the connection on failure.
func (s *wsSession) handshake(ctx context.Context) (tokens.Claims, string, bool) {
	authCtx, cancel := context.WithTimeout(ctx, s.g.cfg.AuthTimeout)
	defer cancel()

	var msg clientMessage
	if err := wsjson.Read(authCtx, s.conn, &msg); err != nil {
		s.g.log.Info("sync.ws.auth.read.fail", "session_id", s.id, "err", err)
		s.shutdown(websocket.StatusPolicyViolation, "auth required")
		return tokens.Claims{}, "", false
	}
	if msg.Type != typeAuth {
		s.sendError(ctx, "auth_required", "first message must be auth")
		s.shutdown(websocket.StatusPolicyViolation, "auth required")
		return tokens.Claims{}, "", false
	}

	storeID := strings.TrimSpace(msg.StoreID)
	claims, err := s.g.auth.Authorize(msg.AuthToken, storeID, s.g.clock())
	if err != nil {
		code := Code(err)
		s.g.log.Info("sync.ws.auth.reject", "session_id", s.id, "reason", code, "store_id", storeID)
		s.sendError(ctx, code, err.Error())
		s.shutdown(websocket.StatusPolicyViolation, code)
		return tokens.Claims{}, "", false
	}

	s.g.log.Info("sync.ws.auth.ok", "session_id", s.id, "user_id", claims.Subject, "store_id", storeID)
	s.send(ctx, authOK(claims, storeID))
	return claims, storeID, true
}

func (s *wsSession) heartbeat(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	t := time.NewTicker(s.g.cfg.HeartbeatInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, s.g.cfg.HeartbeatTimeout)
			err := s.conn.Ping(hbCtx)
			hbCancel()

			if err != nil {
				failures++
				s.g.log.Info("sync.ws.ping.fail", "session_id", s.id, "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					s.shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func authOK(c tokens.Claims, storeID string) serverMessage {
	exp := c.ExpiresAt
	return serverMessage{Type: typeAuthOK, UserID: c.Subject, StoreID: storeID, ExpiresAt: &exp}
}

// ---- send helpers ----

func (s *wsSession) send(ctx context.Context, m serverMessage) {
	wctx, cancel := context.WithTimeout(ctx, s.g.cfg.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, s.conn, m); err != nil {
		s.g.log.Info("sync.ws.write.fail", "session_id", s.id, "close_status", websocket.CloseStatus(err), "err", err)
		s.shutdownNow()
	}
}

func (s *wsSession) sendError(ctx context.Context, code, msg string) {
	s.send(ctx, serverMessage{Type: typeError, Code: code, Message: msg})
}

// shutdown is idempotent.
func (s *wsSession) shutdown(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		_ = s.conn.Close(code, reason)
		s.cancel()
	})
}

// shutdownNow drops the connection without a close handshake.
func (s *wsSession) shutdownNow() {
	s.closeOnce.Do(func() {
		_ = s.conn.CloseNow()
		s.cancel()
	})
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
