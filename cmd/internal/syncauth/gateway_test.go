package syncauth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/ldirer/livestore-chat/cmd/internal/auth/tokens"
	"github.com/ldirer/livestore-chat/cmd/internal/telemetry"
)

func scrape(t *testing.T, m *telemetry.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

type gatewayEnv struct {
	iss *tokens.Issuer
	srv *httptest.Server
}

func newGatewayEnv(t *testing.T, cfg Config, ttl time.Duration) *gatewayEnv {
	t.Helper()
	iss := newIssuer(t, ttl)
	a, err := NewAuthorizer(iss, nil)
	require.NoError(t, err)

	g, err := NewGateway(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, a)
	require.NoError(t, err)

	mux := http.NewServeMux()
	g.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &gatewayEnv{iss: iss, srv: srv}
}

func (e *gatewayEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/sync"
}

func (e *gatewayEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	return e.dialWith(t, ctx, []string{wsSubprotocol})
}

func (e *gatewayEnv) dialWith(t *testing.T, ctx context.Context, subprotocols []string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   http.Header{"Origin": []string{e.srv.URL}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) serverMessage {
	t.Helper()
	var m serverMessage
	require.NoError(t, wsjson.Read(ctx, conn, &m))
	return m
}

// readClose reads until the server closes and returns the close status.
func readClose(t *testing.T, ctx context.Context, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func testGatewayConfig() Config {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"http://127.0.0.1"}
	return cfg
}

func TestAuthorizeEndpoint(t *testing.T) {
	env := newGatewayEnv(t, testGatewayConfig(), 0)
	now := time.Now()
	good := signSync(t, env.iss, "u1", []string{"user_u1"}, now)

	post := func(body any) *http.Response {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		resp, err := http.Post(env.srv.URL+"/sync/authorize", "application/json", bytes.NewReader(b))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := post(authorizeRequest{AuthToken: good, StoreID: "user_u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok authorizeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	require.True(t, ok.Success)
	require.Equal(t, "u1", ok.UserID)
	require.Equal(t, "user_u1", ok.StoreID)

	cases := []struct {
		name   string
		req    authorizeRequest
		status int
		code   string
	}{
		{"missing token", authorizeRequest{StoreID: "user_u1"}, http.StatusUnauthorized, "AUTH_TOKEN_MISSING"},
		{"missing store", authorizeRequest{AuthToken: good}, http.StatusBadRequest, "STORE_ID_MISSING"},
		{"invalid token", authorizeRequest{AuthToken: "nope", StoreID: "user_u1"}, http.StatusUnauthorized, "AUTH_TOKEN_INVALID"},
		{"forbidden store", authorizeRequest{AuthToken: good, StoreID: "user_u2"}, http.StatusForbidden, "STORE_FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(tc.req)
			require.Equal(t, tc.status, resp.StatusCode)
			var e errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			require.Equal(t, tc.code, e.Error.Code)
		})
	}

	get, err := http.Get(env.srv.URL + "/sync/authorize")
	require.NoError(t, err)
	_ = get.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func TestWS_AuthPingAndRenew(t *testing.T) {
	env := newGatewayEnv(t, testGatewayConfig(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	require.Equal(t, wsSubprotocol, conn.Subprotocol())

	tok := signSync(t, env.iss, "u1", []string{"user_u1", "shared"}, time.Now())
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typeAuth, AuthToken: tok, StoreID: "user_u1"}))

	ok := readMsg(t, ctx, conn)
	require.Equal(t, typeAuthOK, ok.Type)
	require.Equal(t, "u1", ok.UserID)
	require.Equal(t, "user_u1", ok.StoreID)
	require.NotNil(t, ok.ExpiresAt)

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typePing}))
	require.Equal(t, typePong, readMsg(t, ctx, conn).Type)

	// Renewal is bound to the original store.
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typeAuth, AuthToken: tok, StoreID: "shared"}))
	mismatch := readMsg(t, ctx, conn)
	require.Equal(t, typeError, mismatch.Type)
	require.Equal(t, "store_mismatch", mismatch.Code)

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typeAuth, AuthToken: "bad", StoreID: "user_u1"}))
	require.Equal(t, CodeTokenInvalid, readMsg(t, ctx, conn).Code)

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typeAuth, AuthToken: tok, StoreID: "user_u1"}))
	require.Equal(t, typeAuthOK, readMsg(t, ctx, conn).Type)

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: "push"}))
	require.Equal(t, "unsupported", readMsg(t, ctx, conn).Code)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))
}

func TestWS_RejectsForbiddenStore(t *testing.T) {
	env := newGatewayEnv(t, testGatewayConfig(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	tok := signSync(t, env.iss, "u1", []string{"user_u1"}, time.Now())
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typeAuth, AuthToken: tok, StoreID: "user_u2"}))

	m := readMsg(t, ctx, conn)
	require.Equal(t, typeError, m.Type)
	require.Equal(t, CodeStoreForbidden, m.Code)
	require.Equal(t, websocket.StatusPolicyViolation, readClose(t, ctx, conn))
}

func TestWS_FirstMessageMustBeAuth(t *testing.T) {
	env := newGatewayEnv(t, testGatewayConfig(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typePing}))

	m := readMsg(t, ctx, conn)
	require.Equal(t, "auth_required", m.Code)
	require.Equal(t, websocket.StatusPolicyViolation, readClose(t, ctx, conn))
}

func TestWS_RequiresSubprotocol(t *testing.T) {
	env := newGatewayEnv(t, testGatewayConfig(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := env.dialWith(t, ctx, nil)
	require.Equal(t, websocket.StatusProtocolError, readClose(t, ctx, conn))
}

func TestWS_ClosesWhenTokenExpires(t *testing.T) {
	env := newGatewayEnv(t, testGatewayConfig(), 2*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	tok := signSync(t, env.iss, "u1", []string{"user_u1"}, time.Now())
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typeAuth, AuthToken: tok, StoreID: "user_u1"}))
	require.Equal(t, typeAuthOK, readMsg(t, ctx, conn).Type)

	require.Equal(t, typeAuthExpired, readMsg(t, ctx, conn).Type)
	require.Equal(t, websocket.StatusPolicyViolation, readClose(t, ctx, conn))
}

func TestWS_RateLimited(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.RateEvents = 2
	cfg.RateWindow = time.Minute
	env := newGatewayEnv(t, cfg, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	tok := signSync(t, env.iss, "u1", []string{"user_u1"}, time.Now())
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typeAuth, AuthToken: tok, StoreID: "user_u1"}))
	require.Equal(t, typeAuthOK, readMsg(t, ctx, conn).Type)

	for i := 0; i < 2; i++ {
		require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typePing}))
		require.Equal(t, typePong, readMsg(t, ctx, conn).Type)
	}
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typePing}))
	require.Equal(t, "rate_limited", readMsg(t, ctx, conn).Code)
	require.Equal(t, websocket.StatusPolicyViolation, readClose(t, ctx, conn))
}

func TestWS_RejectsForeignOrigin(t *testing.T) {
	env := newGatewayEnv(t, testGatewayConfig(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
		HTTPHeader:   http.Header{"Origin": []string{"https://evil.example.net"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
