package authapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/internal/auth/session"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// cookieMaxAge outlives the token by half its lifetime, so an expired token is
// still presented and can be told apart from no session at all.
func cookieMaxAge(ttl time.Duration) int {
	return int((ttl + ttl/2) / time.Second)
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, issued session.Issued) {
	h.setCookie(w, accessCookieName, issued.AccessToken, cookieMaxAge(h.accessTTL))
	h.setCookie(w, refreshCookieName, issued.RefreshToken, cookieMaxAge(h.refreshTTL))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     h.cfg.CookiePath,
			Domain:   h.cfg.CookieDomain,
			Expires:  time.Unix(0, 0).UTC(),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// accessToken reads the access token from its cookie, falling back to a bearer header.
func accessToken(r *http.Request) string {
	if v := cookieValue(r, accessCookieName); v != "" {
		return v
	}
	return bearerToken(r)
}
