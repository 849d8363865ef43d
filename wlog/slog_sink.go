package wlog

import (
	"context"
	"log/slog"
)

// SlogSink is the default Logger, backed by log/slog — the structured
// logger the pack reaches for everywhere a logging *library* (as
// opposed to bare fmt.Print) shows up, e.g. zed-industries'
// agent-client-protocol Connection and AleutianLocal's LSP Server.
// Gated by a verbosity threshold matching ez-ipc's _Printer.verbosity:
// an event is emitted only when its Kind's Priority is <= verbosity.
type SlogSink struct {
	logger    *slog.Logger
	verbosity int
}

// NewSlogSink builds a SlogSink writing through logger (slog.Default()
// if nil) at the given verbosity. Higher verbosity shows more: 1 shows
// only connection lifecycle and errors, 4 shows everything including
// per-frame send/recv chatter.
func NewSlogSink(logger *slog.Logger, verbosity int) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger, verbosity: verbosity}
}

// Emit implements Logger.
func (s *SlogSink) Emit(e Event) {
	if Priority(e.Kind) > s.verbosity {
		return
	}
	level := levelFor(e.Kind)
	attrs := []any{slog.String("kind", string(e.Kind))}
	if e.PeerID != "" {
		attrs = append(attrs, slog.String("peer", e.PeerID))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("err", e.Err))
	}
	s.logger.Log(context.Background(), level, e.Message, attrs...)
}

func levelFor(k Kind) slog.Level {
	switch k {
	case KindError:
		return slog.LevelError
	case KindWarn:
		return slog.LevelWarn
	case KindRecv, KindSend, KindTab:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
