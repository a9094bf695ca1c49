package urldex

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with urldex-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithDataset adds a dataset field to the logger.
func (l *Logger) WithDataset(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dataset", name),
	}
}

// WithVersion adds an index version field to the logger.
func (l *Logger) WithVersion(version string) *Logger {
	return &Logger{
		Logger: l.Logger.With("version", version),
	}
}

// WithDomain adds a domain field to the logger.
func (l *Logger) WithDomain(domain string) *Logger {
	return &Logger{
		Logger: l.Logger.With("domain", domain),
	}
}

// LogIngestBatch logs an ingestion batch.
func (l *Logger) LogIngestBatch(ctx context.Context, dataset string, rows, rejected int) {
	if rejected > 0 {
		l.WarnContext(ctx, "batch ingested with rejections",
			"dataset", dataset,
			"rows", rows,
			"rejected", rejected,
		)
	} else {
		l.DebugContext(ctx, "batch ingested",
			"dataset", dataset,
			"rows", rows,
		)
	}
}

// LogBuild logs an index build.
func (l *Logger) LogBuild(ctx context.Context, version string, incremental bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"version", version,
			"incremental", incremental,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index build completed",
			"version", version,
			"incremental", incremental,
		)
	}
}

// LogQuery logs a query operation.
func (l *Logger) LogQuery(ctx context.Context, op, domain string, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"op", op,
			"domain", domain,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"op", op,
			"domain", domain,
			"results", results,
		)
	}
}

// LogPublish logs a manifest publish.
func (l *Logger) LogPublish(ctx context.Context, version string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "publish failed",
			"version", version,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "version published",
			"version", version,
		)
	}
}
