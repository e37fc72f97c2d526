package syncauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Gateway serves the sync authorization endpoints.
type Gateway struct {
	log  *slog.Logger
	cfg  Config
	auth *Authorizer

	// Derived for websocket.Accept, which only authorizes same-host origins on its own.
	originPatterns []string

	now func() time.Time
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGateway constructs a Gateway.
func NewGateway(log *slog.Logger, cfg Config, auth *Authorizer, opts ...GatewayOption) (*Gateway, error) {
	if auth == nil {
		return nil, errors.New("sync: nil authorizer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	g := &Gateway{
		log:            log,
		cfg:            cfg,
		auth:           auth,
		originPatterns: originPatterns(cfg.AllowedOrigins),
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Register wires the sync routes onto mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	if g == nil || mux == nil {
		return
	}
	mux.HandleFunc("/sync/authorize", g.handleAuthorize)
	mux.HandleFunc("/sync", g.handleWS)
}

func (g *Gateway) clock() time.Time { return g.now().UTC() }

func (g *Gateway) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	var req authorizeRequest
	body := http.MaxBytesReader(w, r.Body, g.cfg.MaxFrameBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	claims, err := g.auth.Authorize(req.AuthToken, req.StoreID, g.clock())
	if err != nil {
		code := Code(err)
		g.log.InfoContext(r.Context(), "sync.authorize.reject", "reason", code, "store_id", req.StoreID)
		writeError(w, statusFor(code), strings.ToUpper(code), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, authorizeResponse{
		Success:   true,
		UserID:    claims.Subject,
		StoreID:   strings.TrimSpace(req.StoreID),
		ExpiresAt: claims.ExpiresAt,
	})
}

func statusFor(code string) int {
	switch code {
	case CodeStoreMissing:
		return http.StatusBadRequest
	case CodeStoreForbidden:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}
