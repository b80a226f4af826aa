// Package notify decides that a notification fires; delivery belongs to
// the external collaborators subscribed to the emitter. Emit never fails
// the operation that triggered it.
package notify

import (
	"context"
	"time"

	"tradecore/internal/types"

	"github.com/rs/zerolog"
)

type Event struct {
	UserID   string              `json:"user_id"`
	Kind     types.EventKind     `json:"kind"`
	Message  string              `json:"message"`
	Priority types.EventPriority `json:"priority"`
	At       time.Time           `json:"at"`
}

type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

type NopEmitter struct{}

func NewNopEmitter() *NopEmitter {
	return &NopEmitter{}
}

func (*NopEmitter) Emit(ctx context.Context, ev Event) {}

// LogEmitter writes every event to the structured log. Useful as the
// delivery sink in development and as a tee in production.
type LogEmitter struct {
	log zerolog.Logger
}

func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(ctx context.Context, ev Event) {
	e.log.Info().
		Str("user_id", ev.UserID).
		Str("kind", string(ev.Kind)).
		Str("priority", string(ev.Priority)).
		Str("message", ev.Message).
		Msg("notification")
}

// Multi fans one event out to several emitters.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, e := range m {
		e.Emit(ctx, ev)
	}
}

// NewEvent stamps an event with the current time.
func NewEvent(userID string, kind types.EventKind, priority types.EventPriority, message string) Event {
	return Event{UserID: userID, Kind: kind, Message: message, Priority: priority, At: time.Now().UTC()}
}
