package app

import (
	"net/http"
	"time"

	authapi "github.com/ldirer/livestore-chat/cmd/internal/auth/api"
	"github.com/ldirer/livestore-chat/cmd/internal/syncauth"
	"github.com/ldirer/livestore-chat/cmd/internal/telemetry"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	db *backends,
	metrics *telemetry.Metrics,
	auth *authapi.Handler,
	sync *syncauth.Gateway,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !db.durable() {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if err := db.ping(r.Context(), 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			log.Info("readyz.db.not_ready", "backend", db.kind, "err", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", metrics.Handler())

	auth.Register(mux)
	sync.Register(mux)
}
