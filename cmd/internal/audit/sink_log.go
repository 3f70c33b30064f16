package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events as structured log records; the action is the message.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a LogSink. A nil log uses slog.Default.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Emit(ctx context.Context, e Event) error {
	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.Time("at", e.CreatedAt),
	}
	if c := contextAttrs(e.Context); len(c) > 0 {
		attrs = append(attrs, slog.Attr{Key: "context", Value: slog.GroupValue(c...)})
	}
	if e.Account.AccountID != 0 || e.Account.IdentityID != 0 {
		attrs = append(attrs, slog.Group("account",
			slog.Int64("account_id", e.Account.AccountID),
			slog.Int64("identity_id", e.Account.IdentityID),
		))
	}
	if e.Request.ID != "" {
		attrs = append(attrs, slog.Group("request",
			slog.String("id", e.Request.ID),
			slog.String("ip", e.Request.IP),
			slog.String("user_agent", e.Request.UserAgent),
		))
	}
	s.log.LogAttrs(ctx, slogLevel(e.Level), e.Action, attrs...)
	return nil
}

func contextAttrs(c Context) []slog.Attr {
	var out []slog.Attr
	if c.Identifier != "" {
		out = append(out, slog.String("identifier", c.Identifier))
	}
	if c.KeyDigest != "" {
		out = append(out, slog.String("key_digest", c.KeyDigest))
	}
	if c.TokenDigest != "" {
		out = append(out, slog.String("token_digest", c.TokenDigest))
	}
	if c.Reason != "" {
		out = append(out, slog.String("reason", c.Reason))
	}
	return out
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelCritical:
		return slog.LevelError
	case LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
