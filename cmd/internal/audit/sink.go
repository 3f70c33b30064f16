package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"warden/cmd/identity/ids"
)

// Sink receives completed events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to every sink. All sinks are tried; errors are joined.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Event) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Emit(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Emitter completes events and forwards them to a Sink.
// Sink failures are logged and never returned: auditing must not change an auth outcome.
// A nil *Emitter drops events.
type Emitter struct {
	sink Sink
	log  *slog.Logger
	now  func() time.Time
}

// NewEmitter returns an Emitter writing to sink. A nil log uses slog.Default.
func NewEmitter(sink Sink, log *slog.Logger) *Emitter {
	if sink == nil {
		sink = Nop
	}
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{sink: sink, log: log, now: time.Now}
}

// Emit fills ID, CreatedAt and Request when unset and forwards e.
func (em *Emitter) Emit(ctx context.Context, e Event) {
	if em == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = em.now().UTC()
	}
	if e.ID == "" {
		id, err := ids.NewULID(e.CreatedAt)
		if err != nil {
			em.log.Error("audit.emit.id.fail", "err", err, "action", e.Action)
			return
		}
		e.ID = id
	}
	if e.Request == (Request{}) {
		if r, ok := RequestFrom(ctx); ok {
			e.Request = r
		}
	}
	if err := em.sink.Emit(ctx, e); err != nil {
		em.log.Error("audit.emit.fail", "err", err, "action", e.Action)
	}
}
