/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log configures the process-wide slog logger: a compact console
// handler or JSON on stderr, plus an optional rotating JSON file. Attributes
// stored on a context with ContextWithAttrs (the load id, the request id)
// are added to every record logged with that context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"storyreader/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls Init. FromEnv reads SR_LOG_LEVEL, SR_LOG_FORMAT
// (console|json), SR_LOG_FILE and SR_LOG_SOURCE.
type Options struct {
	Level     string
	Format    string
	AddSource bool
	// File enables a rotating JSON log next to the console output.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Writer replaces stderr.
	Writer io.Writer
}

const (
	EnvLevel  = "SR_LOG_LEVEL"
	EnvFormat = "SR_LOG_FORMAT"
	EnvFile   = "SR_LOG_FILE"
	EnvSource = "SR_LOG_SOURCE"

	componentKey = "component"
)

var (
	mu       sync.RWMutex
	current  *slog.Logger
	levelVar = new(slog.LevelVar)
)

// L returns the process logger, initializing it from the environment on
// first use.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Init installs a new process logger and makes it slog's default.
func Init(opts Options) {
	levelVar.Set(parseLevel(opts.Level))
	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}

	var sinks []slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		sinks = append(sinks, slog.NewJSONHandler(out, &slog.HandlerOptions{Level: levelVar, AddSource: opts.AddSource}))
	} else {
		sinks = append(sinks, newConsoleHandler(out, levelVar, opts.AddSource))
	}
	if f := strings.TrimSpace(opts.File); f != "" {
		rot := &lj.Logger{
			Filename:   f,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     28,
			Compress:   true,
		}
		sinks = append(sinks, slog.NewJSONHandler(rot, &slog.HandlerOptions{Level: levelVar, AddSource: opts.AddSource}))
	}

	var h slog.Handler = sinks[0]
	if len(sinks) > 1 {
		h = fanout(sinks)
	}
	logger := slog.New(contextHandler{next: h}).With(
		slog.String("app", "storyreader"),
		slog.String("ver", version.Version),
	)

	mu.Lock()
	current = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// SetLevel changes the level of the installed logger without rebuilding it.
func SetLevel(level string) { levelVar.Set(parseLevel(level)) }

func FromEnv() Options {
	return Options{
		Level:     getenv(EnvLevel, "info"),
		Format:    getenv(EnvFormat, "console"),
		AddSource: parseBoolish(os.Getenv(EnvSource)),
		File:      os.Getenv(EnvFile),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBoolish(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func WithComponent(name string) *slog.Logger { return L().With(slog.String(componentKey, name)) }

func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// Discard returns a logger that drops everything.
func Discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

type ctxAttrsKey struct{}
type loadIDKey struct{}

// ContextWithAttrs returns a context whose log records carry attrs in
// addition to any attached earlier.
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	all := make([]slog.Attr, 0, len(prev)+len(attrs))
	all = append(all, prev...)
	all = append(all, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, all)
}

// ContextWithLoadID tags records with the load id of one story load.
func ContextWithLoadID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, loadIDKey{}, id)
	if id == "" {
		return ctx
	}
	return ContextWithAttrs(ctx, slog.String("load_id", id))
}

func LoadIDFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(loadIDKey{}).(string)
	return id, ok && id != ""
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// contextHandler adds the attrs stored by ContextWithAttrs.
type contextHandler struct{ next slog.Handler }

func (h contextHandler) Enabled(ctx context.Context, l slog.Level) bool { return h.next.Enabled(ctx, l) }

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if attrs, ok := ctx.Value(ctxAttrsKey{}).([]slog.Attr); ok {
			r.AddAttrs(attrs...)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

// fanout sends each record to every sink that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// consoleHandler prints
//
//	15:04:05.000 INF loader   message key=value ...
//
// The component attribute becomes the padded third column; app and ver
// are left to the JSON sinks.
type consoleHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool
	component string
	attrs     []slog.Attr
	prefix    string
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{w: w, mu: &sync.Mutex{}, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	threshold := slog.LevelInfo
	if h.level != nil {
		threshold = h.level.Level()
	}
	return l >= threshold
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	comp := h.component
	if comp == "" {
		comp = "-"
	}
	b.WriteString(comp)
	for i := len(comp); i < 9; i++ {
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	if h.addSource {
		if file, line := recordSource(r); file != "" {
			b.WriteString(" src=")
			b.WriteString(file)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(line))
		}
	}
	b.WriteByte('\n')
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// recordSource resolves the call site from the record's PC.
func recordSource(r slog.Record) (string, int) {
	if r.PC == 0 {
		return "", 0
	}
	f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
	return f.File, f.Line
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		switch {
		case h.prefix == "" && a.Key == componentKey:
			c.component = a.Value.String()
		case h.prefix == "" && (a.Key == "app" || a.Key == "ver"):
		default:
			a.Key = h.prefix + a.Key
			c.attrs = append(c.attrs, a)
		}
	}
	return &c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERR"
	case l >= slog.LevelWarn:
		return "WRN"
	case l >= slog.LevelInfo:
		return "INF"
	}
	return "DBG"
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	}
	return v.String()
}
