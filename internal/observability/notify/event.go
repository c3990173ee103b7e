package notify

import (
	"context"
	"log/slog"
	"time"
)

// Level is the severity of a connectivity status notice.
type Level string

const (
	// LevelDegraded: the backend is unreachable; a dismissible indicator is enough.
	LevelDegraded Level = "degraded"
	// LevelDown: failures reached the hard threshold; the user is blocked until retry.
	LevelDown Level = "down"
	// LevelRestored: the backend is reachable again.
	LevelRestored Level = "restored"
)

// StatusNotice is the canonical payload emitted for user-visible connectivity changes.
type StatusNotice struct {
	Level               Level
	Title               string
	Message             string
	ErrorKind           string
	ConsecutiveFailures int
	// Retryable tells the presenter to offer a retry action.
	Retryable  bool
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming status notices.
type Sink interface {
	SendStatusNotice(ctx context.Context, notice StatusNotice) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, notice StatusNotice) error

// SendStatusNotice implements the Sink interface.
func (f SinkFunc) SendStatusNotice(ctx context.Context, notice StatusNotice) error {
	if f == nil {
		return nil
	}
	return f(ctx, notice)
}

// LogSink writes notices to a structured logger. It is the default when no webhook is set.
type LogSink struct {
	Logger *slog.Logger
}

// SendStatusNotice implements the Sink interface.
func (s LogSink) SendStatusNotice(ctx context.Context, notice StatusNotice) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelWarn
	if notice.Level == LevelRestored {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, notice.Title,
		"level", string(notice.Level),
		"message", notice.Message,
		"error_kind", notice.ErrorKind,
		"consecutive_failures", notice.ConsecutiveFailures,
		"retryable", notice.Retryable,
	)
	return nil
}
