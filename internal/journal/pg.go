package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"futures_bot/internal/models"
	"futures_bot/pkg/db"
)

const (
	insertEvent = `INSERT INTO bot_events (kind, symbol, created_at, payload) VALUES ($1, $2, $3, $4)`

	createEvents = `CREATE TABLE IF NOT EXISTS bot_events (
    id         BIGSERIAL PRIMARY KEY,
    kind       TEXT        NOT NULL,
    symbol     TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    payload    JSONB       NOT NULL DEFAULT '{}'::jsonb
)`
)

// PgSink пишет события в bot_events. Ошибка записи не останавливает торговлю, только логируется.
type PgSink struct {
	conn    db.Transaction
	log     *zap.Logger
	timeout time.Duration
}

func NewPgSink(conn db.Transaction, log *zap.Logger) *PgSink {
	return &PgSink{conn: conn, log: log, timeout: 2 * time.Second}
}

func (s *PgSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, createEvents); err != nil {
		return fmt.Errorf("journal.EnsureSchema: %w", err)
	}
	return nil
}

func (s *PgSink) Emit(ctx context.Context, ev models.Event) {
	// отменённый контекст цикла не должен терять запись о flatten
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.Insert(wctx, ev); err != nil {
		s.log.Warn("journal write failed", zap.String("kind", ev.Kind), zap.Error(err))
	}
}

func (s *PgSink) Insert(ctx context.Context, ev models.Event) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("journal.Insert: %w", err)
		}
	}()

	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	var data []byte
	data, err = sonic.Marshal(payload)
	if err != nil {
		return err
	}
	at := ev.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = s.conn.Exec(ctx, insertEvent, ev.Kind, ev.Symbol, at, data)
	return err
}
