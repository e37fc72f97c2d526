package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(r); got != tc.want {
			t.Fatalf("bearerToken(%q)=%q want %q", tc.header, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(r, false); got.String() != "10.0.0.1" {
		t.Fatalf("untrusted proxy: got %v", got)
	}
	if got := clientIP(r, true); got.String() != "203.0.113.9" {
		t.Fatalf("trusted proxy: got %v", got)
	}

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.4")
	if got := clientIP(r, true); got.String() != "198.51.100.4" {
		t.Fatalf("x-real-ip: got %v", got)
	}

	r.RemoteAddr = "garbage"
	if got := clientIP(r, false); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestCookieMaxAge(t *testing.T) {
	if got := cookieMaxAge(15 * time.Minute); got != 1350 {
		t.Fatalf("got %d", got)
	}
	if got := cookieMaxAge(7 * 24 * time.Hour); got != 907200 {
		t.Fatalf("got %d", got)
	}
}

func TestAccessToken_PrefersCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	if got := accessToken(r); got != "from-header" {
		t.Fatalf("got %q", got)
	}
	r.AddCookie(&http.Cookie{Name: accessCookieName, Value: "from-cookie"})
	if got := accessToken(r); got != "from-cookie" {
		t.Fatalf("got %q", got)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]int64{
		0:                       0,
		-time.Second:            0,
		time.Millisecond:        1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
	}
	for d, want := range cases {
		if got := retryAfterSeconds(d); got != want {
			t.Fatalf("retryAfterSeconds(%s)=%d want %d", d, got, want)
		}
	}
}
