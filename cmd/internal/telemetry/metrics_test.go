package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.MagicLinkIssued()
	m.MagicLinkIssued()
	m.MagicLinkValidated("valid")
	m.MagicLinkValidated("expired")
	m.Refresh("ok")
	m.Refresh("token_revoked")
	m.Refresh("token_revoked")
	m.Logout()
	m.SyncAuthorization("denied")

	require.Equal(t, 2.0, testutil.ToFloat64(m.magicLinksIssued))
	require.Equal(t, 1.0, testutil.ToFloat64(m.magicLinksValidated.WithLabelValues("expired")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.refresh.WithLabelValues("token_revoked")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.logouts))
	require.Equal(t, 1.0, testutil.ToFloat64(m.syncAuthorizations.WithLabelValues("denied")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.MagicLinkIssued()
	m.MagicLinkValidated("valid")
	m.Refresh("ok")
	m.Logout()
	m.SyncAuthorization("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Logout()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.True(t, strings.Contains(string(body), "chat_auth_logouts_total 1"), string(body))
	require.True(t, strings.Contains(string(body), "go_goroutines"))
}
