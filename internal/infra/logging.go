package infra

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

// NewLogger builds the daemon's production logger writing to logFile and
// stderr. If the file cannot be opened it falls back to stderr only.
func NewLogger(logFile, level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{logFile, "stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("failed to open log file, logging to stderr only",
			zap.String("log_file", logFile),
			zap.Error(err))
	}
	return logger
}

// LogReporter implements domain.OutcomeReporter by logging a per-tick summary.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a reporter that writes tick summaries to logger.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs skipped ticks at warn level, ticks with actions at info and
// quiet ticks at debug.
func (r *LogReporter) Report(_ context.Context, result domain.TickResult) error {
	if result.Skipped {
		r.logger.Warn("tick skipped", zap.Error(result.Err))
		return nil
	}

	fields := []zap.Field{
		zap.Int("scanned", result.Scanned),
		zap.Int("flagged", result.Flagged),
		zap.Int("terminated", result.Count(domain.ResultSuccess)),
		zap.Int("already_dead", result.Count(domain.ResultAlreadyDead)),
		zap.Int("failed", len(result.Records)-result.Count(domain.ResultSuccess)-result.Count(domain.ResultAlreadyDead)),
		zap.Int("rejected_processes", result.RejectedProcs),
		zap.Int("rejected_rules", result.RejectedRules),
		zap.Int64("duration_ms", result.DurationMs),
	}
	if result.Flagged == 0 {
		r.logger.Debug("tick complete", fields...)
		return nil
	}
	r.logger.Info("tick complete", fields...)
	return nil
}

// Ensure LogReporter implements domain.OutcomeReporter.
var _ domain.OutcomeReporter = (*LogReporter)(nil)
