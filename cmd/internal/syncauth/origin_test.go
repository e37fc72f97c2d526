package syncauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnforceOrigin(t *testing.T) {
	allowed := []string{"http://localhost", "https://chat.example.com"}

	cases := []struct {
		name     string
		origin   string
		required bool
		allowed  []string
		ok       bool
	}{
		{name: "missing and required", origin: "", required: true, allowed: allowed, ok: false},
		{name: "missing and optional", origin: "", required: false, allowed: allowed, ok: true},
		{name: "exact", origin: "https://chat.example.com", required: true, allowed: allowed, ok: true},
		{name: "host with port", origin: "http://localhost:5173", required: true, allowed: allowed, ok: true},
		{name: "case insensitive host", origin: "https://CHAT.example.com", required: true, allowed: allowed, ok: true},
		{name: "foreign", origin: "https://evil.example.net", required: true, allowed: allowed, ok: false},
		{name: "empty allowlist", origin: "http://localhost", required: true, allowed: nil, ok: false},
		{name: "wildcard", origin: "https://anything.test", required: true, allowed: []string{"*"}, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/sync", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			err := enforceOrigin(r, tc.required, tc.allowed)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestOriginHostOnly(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"http://localhost":      "localhost",
		"http://127.0.0.1:8080": "127.0.0.1",
		"Example.COM:443":       "example.com",
		"example.com":           "example.com",
		"http://":               "",
	}
	for in, want := range cases {
		if got := originHostOnly(in); got != want {
			t.Fatalf("originHostOnly(%q)=%q want %q", in, got, want)
		}
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"http://localhost", "http://localhost:3000", "*", "https://b.example"})
	require.Equal(t, []string{"b.example", "b.example:*", "localhost", "localhost:*"}, got)
}
