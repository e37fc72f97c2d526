package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// audit records a security-relevant event with the caller's network identity.
func (h *Handler) audit(ctx context.Context, r *http.Request, action string, attrs ...any) {
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	base := []any{"action", action}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		base = append(base, "ip", ip.String())
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		base = append(base, "user_agent", ua)
	}

	h.log.LogAttrs(ctx, slog.LevelInfo, "audit", argsToAttrs(append(base, attrs...))...)
}

func argsToAttrs(args []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		out = append(out, slog.Any(key, args[i+1]))
	}
	return out
}

func (h *Handler) auditMagicLinkRequested(ctx context.Context, r *http.Request, userID string, created bool) {
	h.audit(ctx, r, "auth.magic_link.requested", "user_id", userID, "user_created", created)
}

func (h *Handler) auditLoginSuccess(ctx context.Context, r *http.Request, userID, familyID string) {
	h.audit(ctx, r, "auth.login.success", "user_id", userID, "family_id", familyID)
}

func (h *Handler) auditLoginFailed(ctx context.Context, r *http.Request, reason string) {
	h.audit(ctx, r, "auth.login.failed", "reason", reason)
}

func (h *Handler) auditRefreshSuccess(ctx context.Context, r *http.Request, userID, familyID string) {
	h.audit(ctx, r, "auth.refresh.success", "user_id", userID, "family_id", familyID)
}

func (h *Handler) auditRefreshFailed(ctx context.Context, r *http.Request, code string) {
	h.audit(ctx, r, "auth.refresh.failed", "reason", code)
}

func (h *Handler) auditLogout(ctx context.Context, r *http.Request) {
	h.audit(ctx, r, "auth.logout")
}

func (h *Handler) auditLogoutAll(ctx context.Context, r *http.Request, userID string) {
	h.audit(ctx, r, "auth.logout_all", "user_id", userID)
}
