package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/identity"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/magiclink"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/session"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/tokens"
	"github.com/ldirer/livestore-chat/cmd/internal/telemetry"
)

// Handler wires HTTP auth endpoints to the identity, magic link and session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	links    *magiclink.Service
	sessions *session.Service
	metrics  *telemetry.Metrics

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithMetrics records auth outcomes on m.
func WithMetrics(m *telemetry.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessCfg session.Config, users identity.Store, links *magiclink.Service, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if users == nil || links == nil || sessions == nil {
		return nil, errors.New("auth: missing dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}

	h := &Handler{
		log:        log,
		cfg:        cfg,
		users:      users,
		links:      links,
		sessions:   sessions,
		accessTTL:  sessions.Tokens().TTL(),
		refreshTTL: sessCfg.RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/request-magic-link", h.handleRequestMagicLink)
	mux.HandleFunc("/auth/submit-magic-link", h.handleSubmitMagicLink)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout-all", h.handleLogoutAll)
	mux.HandleFunc("/auth/me", h.handleMe)
}

func (h *Handler) clock() time.Time { return h.now().UTC() }

// ---- handlers ----

func (h *Handler) handleRequestMagicLink(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req requestMagicLinkRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "Missing required field: email")
		return
	}
	if !identity.ValidEmail(email) {
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid email address")
		return
	}

	ctx := r.Context()
	now := h.clock()

	// Unified login/signup: unknown addresses get an account, but only once the
	// request has passed the per-address limit.
	var (
		user    identity.User
		created bool
	)
	ensureUser := func(ctx context.Context) error {
		var err error
		user, created, err = h.users.EnsureUser(ctx, email, now)
		if err != nil {
			return errEnsureUser{err}
		}
		if created {
			h.log.InfoContext(ctx, "auth.user.created", "user_id", user.ID)
		}
		return nil
	}

	if err := h.links.SendLoginLink(ctx, email, now, magiclink.BeforeCreate(ensureUser)); err != nil {
		var (
			rl magiclink.RateLimitError
			eu errEnsureUser
		)
		switch {
		case errors.As(err, &rl):
			writeRateLimited(w, rl.RetryAfter)
		case errors.As(err, &eu) && identity.IsInvalidInput(eu.err):
			writeError(w, http.StatusBadRequest, codeValidation, "Invalid email address")
		case errors.As(err, &eu):
			h.log.ErrorContext(ctx, "auth.magic_link.user.fail", "err", eu.err)
			writeInternal(w)
		case errors.Is(err, magiclink.ErrEmailCouldNotBeSent):
			writeError(w, http.StatusServiceUnavailable, codeEmailNotSent, "The login e-mail could not be sent")
		default:
			h.log.ErrorContext(ctx, "auth.magic_link.send.fail", "err", err)
			writeInternal(w)
		}
		return
	}

	h.metrics.MagicLinkIssued()
	h.auditMagicLinkRequested(ctx, r, user.ID, created)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Magic link sent successfully"})
}

func (h *Handler) handleSubmitMagicLink(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req submitMagicLinkRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	tok := strings.TrimSpace(req.Token)
	if tok == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "Missing required field: token")
		return
	}

	ctx := r.Context()
	now := h.clock()

	v, err := h.links.ValidateMagicToken(ctx, tok, now)
	if err != nil {
		h.log.ErrorContext(ctx, "auth.magic_link.validate.fail", "err", err)
		writeInternal(w)
		return
	}
	if !v.Valid() {
		h.metrics.MagicLinkValidated(string(v.Reason))
		h.auditLoginFailed(ctx, r, string(v.Reason))
		writeError(w, http.StatusBadRequest, strings.ToUpper(string(v.Reason)), magicLinkMessage(v.Reason))
		return
	}
	h.metrics.MagicLinkValidated(string(v.Status))

	user, err := h.users.GetUserByEmail(ctx, v.Email)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, codeUserNotFound, "User not found")
			return
		}
		h.log.ErrorContext(ctx, "auth.login.user.fail", "err", err)
		writeInternal(w)
		return
	}

	issued, err := h.sessions.GenerateTokens(ctx, user.ID, nil, now)
	if err != nil {
		h.log.ErrorContext(ctx, "auth.login.issue.fail", "user_id", user.ID, "err", err)
		writeInternal(w)
		return
	}

	h.setSessionCookies(w, issued)
	h.auditLoginSuccess(ctx, r, user.ID, issued.FamilyID)
	writeJSON(w, http.StatusOK, tokenResponse{
		Success:        true,
		Email:          v.Email,
		Message:        "Magic link validated successfully",
		LivestoreToken: issued.SyncToken,
	})
}

func magicLinkMessage(reason magiclink.Reason) string {
	switch reason {
	case magiclink.ReasonTokenNotFound:
		return "Magic link not found"
	case magiclink.ReasonAlreadyUsed:
		return "Magic link has already been used"
	case magiclink.ReasonExpired:
		return "Magic link has expired"
	default:
		return "Invalid magic link"
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	refreshToken := cookieValue(r, refreshCookieName)
	if refreshToken == "" {
		h.metrics.Refresh("missing")
		writeError(w, http.StatusUnauthorized, codeRefreshMissing, "Refresh token not found")
		return
	}

	ctx := r.Context()
	issued, err := h.sessions.RefreshTokens(ctx, refreshToken, h.clock())
	if err != nil {
		code := session.Code(err)
		h.metrics.Refresh(code)
		if code == session.CodeInternal {
			h.log.ErrorContext(ctx, "auth.refresh.fail", "err", err)
			writeInternal(w)
			return
		}
		h.auditRefreshFailed(ctx, r, code)
		writeError(w, http.StatusUnauthorized, strings.ToUpper(code), refreshMessage(code))
		return
	}

	h.metrics.Refresh("ok")
	h.setSessionCookies(w, issued)
	h.auditRefreshSuccess(ctx, r, issued.UserID, issued.FamilyID)
	writeJSON(w, http.StatusOK, tokenResponse{
		Success:        true,
		Message:        "Tokens refreshed successfully",
		LivestoreToken: issued.SyncToken,
	})
}

func refreshMessage(code string) string {
	switch code {
	case session.CodeTokenExpired:
		return "Refresh token has expired"
	case session.CodeTokenRevoked:
		return "Refresh token has been revoked"
	default:
		return "Refresh token not found"
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	ctx := r.Context()
	if refreshToken := cookieValue(r, refreshCookieName); refreshToken != "" {
		if err := h.sessions.Logout(ctx, refreshToken, h.clock()); err != nil {
			h.log.ErrorContext(ctx, "auth.logout.fail", "err", err)
			writeInternal(w)
			return
		}
	}

	h.metrics.Logout()
	h.auditLogout(ctx, r)
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out successfully"})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.sessions.RevokeAll(ctx, claims.Subject, h.clock()); err != nil {
		h.log.ErrorContext(ctx, "auth.logout_all.fail", "err", err)
		writeInternal(w)
		return
	}

	h.metrics.Logout()
	h.auditLogoutAll(ctx, r, claims.Subject)
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out everywhere"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	u, err := h.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, codeUserNotFound, "User not found")
			return
		}
		h.log.ErrorContext(ctx, "auth.me.fail", "err", err)
		writeInternal(w)
		return
	}

	stores := claims.Resources
	if stores == nil {
		stores = []string{}
	}
	writeJSON(w, http.StatusOK, meResponse{Success: true, User: toUserResponse(u), Stores: stores})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (tokens.Claims, bool) {
	tok := accessToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, codeAccessMissing, "Access token not found")
		return tokens.Claims{}, false
	}
	claims, err := h.sessions.Tokens().VerifyAccessToken(tok, h.clock())
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeAccessInvalid, "Invalid access token")
		return tokens.Claims{}, false
	}
	return claims, true
}

// errEnsureUser marks a user directory failure surfaced through SendLoginLink.
type errEnsureUser struct{ err error }

func (e errEnsureUser) Error() string { return "ensure user: " + e.err.Error() }
func (e errEnsureUser) Unwrap() error { return e.err }
