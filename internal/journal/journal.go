// Package journal пишет события бота: в лог, в postgres или в оба места сразу.
package journal

import (
	"context"

	"go.uber.org/zap"

	"futures_bot/internal/models"
)

type Sink interface {
	Emit(ctx context.Context, ev models.Event)
}

// ZapSink пишет каждое событие одной строкой лога.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Emit(_ context.Context, ev models.Event) {
	s.log.Info("event",
		zap.String("kind", ev.Kind),
		zap.String("symbol", ev.Symbol),
		zap.Time("at", ev.Time),
		zap.Any("payload", ev.Payload),
	)
}

// Multi раздаёт событие всем приёмникам по порядку; nil пропускаются.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev models.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}
