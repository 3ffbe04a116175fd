package core

import (
	"log/slog"

	"mizan/internal/types"
)

// Compile-time assertion that SlogAdapter implements types.Logger.
var _ types.Logger = (*SlogAdapter)(nil)

// SlogAdapter bridges the process-wide *slog.Logger to the types.Logger
// interface consumed by domain components.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps an slog logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }

// With returns a logger carrying the given attributes on every record.
func (a *SlogAdapter) With(args ...any) types.Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}
