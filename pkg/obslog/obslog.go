// Package obslog provides structured-logging helpers for HTTP
// send/receive, tool execution, policy decisions, user prompts, and stream
// diagnostics. It generalizes pkg/harness/logger.go's per-turn JSONL
// wrapper (LogEntry/redactString) from a harness-only decorator into a
// shared zerolog.Logger any package can take as a dependency.
package obslog

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"forgecore/pkg/transport"
)

// Config configures the base logger.
type Config struct {
	Writer io.Writer    // defaults to os.Stderr
	Level  zerolog.Level // used as given; the zero value is zerolog.DebugLevel
	Pretty bool         // use zerolog.ConsoleWriter instead of raw JSON
}

// New builds the base structured logger every package-level logger below
// derives from via .With()/.Sub-loggers.
func New(cfg Config) zerolog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level := cfg.Level
	logger := zerolog.New(w).With().Timestamp().Logger().Level(level)
	return logger
}

// LogTransportRequest logs an outbound HTTP request at debug level with
// credential-bearing headers redacted via transport.SanitizeHeaders.
func LogTransportRequest(log zerolog.Logger, method, url string, headers http.Header) {
	sanitized := transport.SanitizeHeaders(headers)
	log.Debug().
		Str("method", method).
		Str("url", url).
		Interface("headers", sanitized).
		Msg("transport: request")
}

// LogTransportResponse logs a completed HTTP round trip.
func LogTransportResponse(log zerolog.Logger, method, url string, status int, elapsed time.Duration) {
	ev := log.Debug()
	if status >= 400 {
		ev = log.Warn()
	}
	ev.Str("method", method).
		Str("url", url).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("transport: response")
}

// LogToolExecution logs one tool call's outcome.
func LogToolExecution(log zerolog.Logger, name, callID string, elapsed time.Duration, isError bool) {
	ev := log.Debug()
	if isError {
		ev = log.Warn()
	}
	ev.Str("tool", name).
		Str("call_id", callID).
		Dur("elapsed", elapsed).
		Bool("is_error", isError).
		Msg("tool: executed")
}

// LogPolicyDecision logs a policy evaluation verdict for one operation.
func LogPolicyDecision(log zerolog.Logger, kind, subject, verdict string) {
	log.Debug().
		Str("operation_kind", kind).
		Str("subject", subject).
		Str("verdict", verdict).
		Msg("policy: evaluated")
}

// LogUserPrompt logs that a Confirm verdict is blocking on user input,
// without logging the operation's raw path/command/URL at info level (that
// detail is in the Confirm prompt itself, not the log).
func LogUserPrompt(log zerolog.Logger, kind string) {
	log.Info().Str("operation_kind", kind).Msg("policy: awaiting user confirmation")
}

// LogStreamDiagnostics logs any tool-call-argument repairs pkg/stream.Collector
// recorded for a turn. A nil or empty diagnostics slice logs nothing.
func LogStreamDiagnostics(log zerolog.Logger, model string, diagnostics []string) {
	if len(diagnostics) == 0 {
		return
	}
	log.Warn().
		Str("model", model).
		Strs("diagnostics", diagnostics).
		Msg("stream: tool-call arguments repaired")
}

// RedactString keeps the first 20 characters of s and replaces the rest
// with a placeholder noting how many characters were elided. Ported from
// pkg/harness/logger.go's redactString.
func RedactString(s string) string {
	if len(s) <= 20 {
		return s
	}
	return s[:20] + strings.Repeat("*", 10) + " [" + strconv.Itoa(len(s)-20) + " chars redacted]"
}
