package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const redacted = "[redacted]"

// prettyHandler writes one line per record for local development:
//
//	15:04:05.000 INFO  http.request method=POST path=/auth/refresh status=401 ...
//
// Attributes whose key names a credential are never printed.
type prettyHandler struct {
	w     io.Writer
	opts  slog.HandlerOptions
	color bool
	mu    *sync.Mutex

	// pre holds attrs from With, already flattened under the groups open at the time.
	pre    []keyedValue
	prefix string
}

type keyedValue struct {
	key string
	val slog.Value
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, color: color, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(paint(ts.Format("15:04:05.000"), ansiDim, h.color))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level, h.color))
	b.WriteByte(' ')
	b.WriteString(paint(r.Message, ansiBright, h.color))

	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			src := fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
			b.WriteString(" src=")
			b.WriteString(paint(src, ansiDim, h.color))
		}
	}

	for _, kv := range h.pre {
		h.writeField(&b, kv)
	}
	fields := make([]keyedValue, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields = flatten(fields, h.prefix, a)
		return true
	})
	for _, kv := range fields {
		h.writeField(&b, kv)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.pre = append([]keyedValue(nil), h.pre...)
	for _, a := range attrs {
		cp.pre = flatten(cp.pre, h.prefix, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = joinKey(h.prefix, name)
	return &cp
}

// flatten appends a, expanding groups into dotted keys.
func flatten(dst []keyedValue, prefix string, a slog.Attr) []keyedValue {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		// Inline groups (empty key) splice their attrs into the parent.
		p := prefix
		if key != "" {
			p = joinKey(prefix, key)
		}
		for _, ga := range a.Value.Group() {
			dst = flatten(dst, p, ga)
		}
		return dst
	}
	if key == "" {
		return dst
	}
	return append(dst, keyedValue{key: joinKey(prefix, key), val: a.Value})
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func (h *prettyHandler) writeField(b *strings.Builder, kv keyedValue) {
	b.WriteByte(' ')
	b.WriteString(displayKey(kv.key))
	b.WriteByte('=')
	b.WriteString(h.formatValue(kv.key, kv.val))
}

func displayKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	}
	return k
}

func (h *prettyHandler) formatValue(key string, v slog.Value) string {
	if isSecretKey(key) {
		return paint(redacted, ansiDim, h.color)
	}

	switch key {
	case "method":
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), h.color)
	case "path":
		return paint(strings.TrimSpace(v.String()), ansiCyan, h.color)
	case "request_id", "session_id", "user_id":
		return paint(v.String(), ansiDim, h.color)
	case "err":
		return paint(quoteIfNeeded(valueToString(v)), ansiRed, h.color)
	case "status":
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "status_class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result", "outcome":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	}
	return quoteIfNeeded(valueToString(v))
}

// isSecretKey matches keys that could carry a bearer credential, e.g.
// "token", "refresh_token", "authToken" or "sync.secret".
func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	k := strings.ToLower(key)
	switch k {
	case "authorization", "cookie", "password":
		return true
	}
	return strings.HasSuffix(k, "token") || strings.HasSuffix(k, "secret")
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// levelTag pads to five columns so messages line up.
func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("ERROR", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("WARN ", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("DEBUG", ansiMagenta, color)
	default:
		return paint("INFO ", ansiBlue, color)
	}
}
