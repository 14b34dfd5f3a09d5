// Package logging builds the gateway's structured logger on top of
// log/slog, with a selectable output format in the style of the example
// pack's slogobs handler (compact/pretty/json).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/brightloop/qgateway/internal/telemetry"
)

// Format selects the rendering of emitted log lines.
type Format string

const (
	FormatCompact Format = "compact"
	FormatPretty  Format = "pretty"
	FormatJSON    Format = "json"
)

// Options configures New.
type Options struct {
	Format Format
	Level  slog.Level
	Output io.Writer
}

// Option mutates Options.
type Option func(*Options)

func WithFormat(f Format) Option { return func(o *Options) { o.Format = f } }
func WithLevel(l slog.Level) Option { return func(o *Options) { o.Level = l } }
func WithOutput(w io.Writer) Option { return func(o *Options) { o.Output = w } }

func defaultOptions() Options {
	o := Options{Format: FormatCompact, Level: slog.LevelInfo, Output: os.Stderr}
	switch strings.ToLower(os.Getenv("QGATEWAY_LOG_FORMAT")) {
	case "json":
		o.Format = FormatJSON
	case "pretty":
		o.Format = FormatPretty
	}
	if lvl := os.Getenv("QGATEWAY_LOG_LEVEL"); lvl != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(lvl)); err == nil {
			o.Level = l
		}
	}
	return o
}

// New builds a *slog.Logger honoring opts, falling back to env-derived
// defaults for anything unset.
func New(opts ...Option) *slog.Logger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.Level}
	var h slog.Handler
	switch o.Format {
	case FormatJSON:
		h = slog.NewJSONHandler(o.Output, handlerOpts)
	case FormatPretty:
		handlerOpts.AddSource = true
		h = slog.NewTextHandler(o.Output, handlerOpts)
	default:
		h = slog.NewTextHandler(o.Output, handlerOpts)
	}
	return slog.New(h)
}

// TelemetryHook adapts a *slog.Logger to telemetry.Hook, logging request
// start/end without ever including prompt or response content.
type TelemetryHook struct {
	Logger *slog.Logger
}

func (h TelemetryHook) OnRequestStart(e telemetry.StartEvent) {
	h.Logger.Info("request.start",
		"request_id", e.RequestID,
		"route", e.Route,
		"model", e.Model,
		"stream", e.Stream,
	)
}

func (h TelemetryHook) OnRequestEnd(e telemetry.EndEvent) {
	attrs := []any{
		"request_id", e.RequestID,
		"route", e.Route,
		"status", e.Status,
		"duration_ms", e.Duration.Milliseconds(),
		"input_tokens", e.InputToks,
		"output_tokens", e.OutputToks,
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err.Error())
		h.Logger.Error("request.end", attrs...)
		return
	}
	h.Logger.Info("request.end", attrs...)
}
