// Package service реализует публичный kline-стрим Bybit v5.
package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"futures_bot/internal/helper"
	"futures_bot/internal/models"
)

// StateSink: куда отмечаем состояние соединения (health).
type StateSink interface {
	SetWSConnected(v bool)
	TouchTick(t time.Time)
}

type Config struct {
	URL          string
	Symbol       string
	Interval     string // "5"
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

type Stream struct {
	cfg    Config
	dialer *websocket.Dialer
	state  StateSink
	log    *zap.Logger
}

func NewStream(cfg Config, state StateSink, log *zap.Logger) *Stream {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Stream{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:  state,
		log:    log,
	}
}

func (s *Stream) Topic() string {
	return fmt.Sprintf("kline.%s.%s", s.cfg.Interval, s.cfg.Symbol)
}

type klineFrame struct {
	Topic string `json:"topic"`
	Data  []struct {
		Start   int64  `json:"start"`
		Open    string `json:"open"`
		High    string `json:"high"`
		Low     string `json:"low"`
		Close   string `json:"close"`
		Volume  string `json:"volume"`
		Confirm bool   `json:"confirm"`
	} `json:"data"`
}

// Run держит соединение до отмены ctx и отдаёт в out только закрытые свечи.
// Пауза между переподключениями растёт от MinBackoff до MaxBackoff.
func (s *Stream) Run(ctx context.Context, out chan<- models.Candle) {
	backoff := s.cfg.MinBackoff
	for {
		delivered, err := s.session(ctx, out)
		s.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		if delivered {
			backoff = s.cfg.MinBackoff
		}
		s.log.Warn("kline stream dropped, reconnecting",
			zap.String("topic", s.Topic()), zap.Duration("backoff", backoff), zap.Error(err))
		if helper.Sleep(ctx, backoff) != nil {
			return
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func (s *Stream) session(ctx context.Context, out chan<- models.Candle) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(v)
	}

	if err = write(map[string]any{"op": "subscribe", "args": []string{s.Topic()}}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	s.setConnected(true)
	s.log.Info("kline stream connected", zap.String("topic", s.Topic()))

	// keepalive: без ping bybit закрывает соединение через 10 минут
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(s.cfg.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				if err := write(map[string]string{"op": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	delivered := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return delivered, fmt.Errorf("read: %w", err)
		}
		candles, err := s.parse(msg)
		if err != nil {
			s.log.Debug("skip frame", zap.Error(err))
			continue
		}
		for _, c := range candles {
			select {
			case out <- c:
				delivered = true
				if s.state != nil {
					s.state.TouchTick(c.OpenTime)
				}
			case <-ctx.Done():
				return delivered, ctx.Err()
			}
		}
	}
}

// parse отдаёт закрытые свечи из кадра; служебные кадры (pong, ответ на subscribe) дают пусто.
func (s *Stream) parse(msg []byte) ([]models.Candle, error) {
	var f klineFrame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		return nil, err
	}
	if f.Topic != s.Topic() {
		return nil, nil
	}
	var out []models.Candle
	for _, d := range f.Data {
		if !d.Confirm {
			continue
		}
		var vals [5]float64
		for i, raw := range []string{d.Open, d.High, d.Low, d.Close, d.Volume} {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", raw, err)
			}
			vals[i] = v
		}
		out = append(out, models.Candle{
			OpenTime: time.UnixMilli(d.Start).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return out, nil
}

func (s *Stream) setConnected(v bool) {
	if s.state != nil {
		s.state.SetWSConnected(v)
	}
}
