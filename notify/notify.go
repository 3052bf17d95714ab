// Package notify delivers operator notifications about the live driver to
// Telegram and the log.
package notify

import (
	"context"
	"errors"

	"github.com/rustyeddy/volaccel/pkg/logger"
	"go.uber.org/zap"
)

// Event is one notification. HTML is the Telegram rendering and Fields the
// structured log rendering.
type Event interface {
	Kind() string
	HTML() string
	Fields() []zap.Field
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to a logger. Faults and the daily loss limit log at
// warn level.
type Log struct {
	L *logger.Logger
}

func NewLog(l *logger.Logger) *Log {
	if l == nil {
		l = logger.Nop()
	}
	return &Log{L: l}
}

func (n *Log) Notify(ctx context.Context, e Event) error {
	fields := append([]zap.Field{logger.StringField("event", e.Kind())}, e.Fields()...)
	switch e.(type) {
	case Fault, DailyLossLimit:
		n.L.WarnContext(ctx, "notify", fields...)
	default:
		n.L.InfoContext(ctx, "notify", fields...)
	}
	return nil
}
