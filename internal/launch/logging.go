// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

var launchLogger = newLogger(os.Stdout, "json")

func newLogger(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetLogOutput replaces the run logger. format is "json" (default) or "text".
func SetLogOutput(w io.Writer, format string) error {
	switch format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q (want json or text)", format)
	}
	launchLogger = newLogger(w, format)
	return nil
}

func logEvent(env Env, message string, fields ...any) {
	baseFields := []any{"timestamp_ns", time.Now().UTC().UnixNano()}
	if env.CorrelationID != "" {
		baseFields = append(baseFields, "correlation_id", env.CorrelationID)
	}
	allFields := append(baseFields, fields...)
	launchLogger.Info(message, allFields...)
	emitOTel(env, otellog.SeverityInfo, message, allFields)
}

// emitOTel mirrors a log record to the OpenTelemetry Logs API. It is a noop
// until the host installs a LoggerProvider.
func emitOTel(env Env, severity otellog.Severity, message string, fields []any) {
	var rec otellog.Record
	rec.SetTimestamp(time.Now())
	rec.SetSeverity(severity)
	rec.SetBody(otellog.StringValue(message))
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		rec.AddAttributes(otellog.String(key, fmt.Sprint(fields[i+1])))
	}
	global.GetLoggerProvider().Logger("droidrun").Emit(spanContext(env), rec)
}

// commandLogWriter turns a tool's stderr into one "command stderr" record
// per non-empty line. A trailing line without a newline is held until flush.
type commandLogWriter struct {
	env     Env
	command string
	args    string
	pending []byte
}

func newCommandLogWriter(env Env, bin string, args []string) *commandLogWriter {
	return &commandLogWriter{env: env, command: filepath.Base(bin), args: strings.Join(args, " ")}
}

func (w *commandLogWriter) Write(payload []byte) (int, error) {
	w.pending = append(w.pending, payload...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			return len(payload), nil
		}
		w.emit(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
}

// flush logs whatever the tool printed after its last newline.
func (w *commandLogWriter) flush() {
	w.emit(w.pending)
	w.pending = nil
}

func (w *commandLogWriter) emit(raw []byte) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return
	}
	fields := []any{"command", w.command, "stream", "stderr"}
	if w.args != "" {
		fields = append(fields, "args", w.args)
	}
	logEvent(w.env, "command stderr", append(fields, "line", line)...)
}
