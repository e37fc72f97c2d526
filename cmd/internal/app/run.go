package app

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
)

// Overrides are command-line settings that win over the environment.
// An empty field keeps the matching part of CHAT_HTTP_ADDR.
type Overrides struct {
	Host string
	Port string
}

// apply replaces only the parts of addr that o sets.
func (o Overrides) apply(addr string) (string, error) {
	if o.Host == "" && o.Port == "" {
		return addr, nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("%w: http addr %q: %v", ErrConfig, addr, err)
	}
	if o.Host != "" {
		host = o.Host
	}
	if o.Port != "" {
		port = o.Port
	}
	return net.JoinHostPort(host, port), nil
}

// Run is the CLI entrypoint used by cmd/authserver.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(o Overrides) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if cfg.HTTPAddr, err = o.apply(cfg.HTTPAddr); err != nil {
		return err
	}
	log := NewLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
