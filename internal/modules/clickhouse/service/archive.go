// Package service складывает закрытые свечи в ClickHouse.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"futures_bot/internal/models"
)

type Batch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

// Conn: то, что архиву нужно от clickhouse.Conn.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (Batch, error)
	Close() error
}

type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

type chConn struct {
	c clickhouse.Conn
}

func (w chConn) Exec(ctx context.Context, query string, args ...any) error {
	return w.c.Exec(ctx, query, args...)
}

func (w chConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	return w.c.PrepareBatch(ctx, query)
}

func (w chConn) Close() error { return w.c.Close() }

func Open(ctx context.Context, cfg Config) (Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return chConn{c: conn}, nil
}

type Archive struct {
	conn Conn
	cfg  Config
	log  *zap.Logger

	mu   sync.Mutex
	last map[string]time.Time // symbol|interval -> последняя записанная свеча
}

func NewArchive(conn Conn, cfg Config, log *zap.Logger) *Archive {
	return &Archive{conn: conn, cfg: cfg, log: log, last: make(map[string]time.Time)}
}

func (a *Archive) EnsureSchema(ctx context.Context) error {
	if err := a.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", a.cfg.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol LowCardinality(String),
			interval LowCardinality(String),
			open_time DateTime64(3, 'UTC'),
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3, 'UTC'),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, interval, open_time)
	`, a.cfg.Database, a.cfg.Table)
	if err := a.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Archive дописывает свечи новее уже записанных. Повторная запись той же свечи схлопнется по version.
func (a *Archive) Archive(ctx context.Context, symbol, interval string, candles []models.Candle) error {
	key := symbol + "|" + interval
	a.mu.Lock()
	since := a.last[key]
	a.mu.Unlock()

	fresh := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if c.OpenTime.After(since) {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s", a.cfg.Database, a.cfg.Table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, c := range fresh {
		if err := batch.Append(symbol, interval, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume, now, ver); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}

	a.mu.Lock()
	if t := fresh[len(fresh)-1].OpenTime; t.After(a.last[key]) {
		a.last[key] = t
	}
	a.mu.Unlock()
	a.log.Debug("candles archived", zap.String("symbol", symbol), zap.Int("rows", len(fresh)))
	return nil
}

func (a *Archive) Close() error { return a.conn.Close() }
