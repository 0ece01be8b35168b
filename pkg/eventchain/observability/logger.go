// Package observability provides structured logging, metrics and tracing
// for event dispatch.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds dispatch context to a logger.
// Returns a new logger with event_id, event_type and depth fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, evt.ID(), "CREATE", 0)
//	enriched.Info("validating identity") // includes event_id, event_type, depth
func EnrichLogger(logger *slog.Logger, eventID, eventType string, depth int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.Int("depth", depth),
	)
}

// LogDispatchStart logs the start of a processor chain.
func LogDispatchStart(logger *slog.Logger, contentType string, chainLength int) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch starting",
		slog.String("content_type", contentType),
		slog.Int("chain_length", chainLength),
	)
}

// LogDispatchComplete logs a chain that ran to the end or was short-circuited.
func LogDispatchComplete(logger *slog.Logger, durationMs float64, executed int, completed bool) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch completed",
		slog.Float64("duration_ms", durationMs),
		slog.Int("processors_executed", executed),
		slog.Bool("complete", completed),
	)
}

// LogDispatchError logs a chain aborted by an error.
func LogDispatchError(logger *slog.Logger, err error, durationMs float64, lastProcessor string) {
	if logger == nil {
		return
	}
	logger.Error("dispatch failed",
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_processor", lastProcessor),
	)
}

// LogProcessorStart logs processor execution start.
func LogProcessorStart(logger *slog.Logger, processor string, order int) {
	if logger == nil {
		return
	}
	logger.Debug("processor starting",
		slog.String("processor", processor),
		slog.Int("order", order),
	)
}

// LogProcessorComplete logs successful processor completion.
func LogProcessorComplete(logger *slog.Logger, processor string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("processor completed",
		slog.String("processor", processor),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogProcessorError logs a processor that returned an error or panicked.
func LogProcessorError(logger *slog.Logger, processor string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Warn("processor failed",
		slog.String("processor", processor),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogShortCircuit logs a processor that marked the event complete.
// remaining counts the candidates left in the chain; Supports was not
// checked for them.
func LogShortCircuit(logger *slog.Logger, processor string, remaining int) {
	if logger == nil {
		return
	}
	logger.Debug("event completed by processor",
		slog.String("processor", processor),
		slog.Int("remaining_candidates", remaining),
	)
}

// LogListenerError logs a failing outcome listener (non-fatal).
func LogListenerError(logger *slog.Logger, eventID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("outcome listener failed",
		slog.String("event_id", eventID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
