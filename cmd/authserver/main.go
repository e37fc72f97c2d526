// Command authserver serves magic-link login, token refresh and sync authorization.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/ldirer/livestore-chat/cmd/internal/app"
)

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}
	if err := app.Run(o); err != nil {
		slog.Error("authserver.exit", "err", err)
		os.Exit(1)
	}
}

// parseFlags reads --port/-p and --host/-h. Each flag overrides only its own part
// of CHAT_HTTP_ADDR, and only when given.
func parseFlags(args []string, out io.Writer) (app.Overrides, error) {
	fs := flag.NewFlagSet("authserver", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		port int
		host string
	)
	fs.IntVar(&port, "port", 9003, "port to listen on")
	fs.IntVar(&port, "p", 9003, "shorthand for --port")
	fs.StringVar(&host, "host", "0.0.0.0", "interface to bind")
	fs.StringVar(&host, "h", "0.0.0.0", "shorthand for --host")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(out, "usage: authserver [--host addr] [--port n]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return app.Overrides{}, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return app.Overrides{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	var o app.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port", "p":
			o.Port = strconv.Itoa(port)
		case "host", "h":
			o.Host = host
		}
	})
	if o.Port != "" && (port <= 0 || port > 65535) {
		_, _ = fmt.Fprintf(out, "invalid port %d\n", port)
		return app.Overrides{}, fmt.Errorf("invalid port %d", port)
	}
	return o, nil
}
