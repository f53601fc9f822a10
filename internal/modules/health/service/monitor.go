package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"futures_bot/internal/flatten"
	"futures_bot/internal/metrics"
	"futures_bot/internal/models"
)

type Gateway interface {
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	FetchPosition(ctx context.Context, symbol string) (models.PositionSnapshot, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]string, error)
}

// Flattener: тот, кто умеет закрыть символ под его локом (Runner).
type Flattener interface {
	Flatten(ctx context.Context, reason string) (flatten.Report, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type EventSink interface {
	Emit(ctx context.Context, ev models.Event)
}

type MonitorConfig struct {
	Symbol             string
	Interval           time.Duration
	ErrorStreakMax     int
	AutoPanic          bool
	StalePositionAfter time.Duration
}

// Snapshot: результат последней проверки, отдаётся в /healthz.
type Snapshot struct {
	At          time.Time       `json:"at"`
	Checks      map[string]bool `json:"checks"`
	ErrorStreak int             `json:"error_streak"`
	LastOK      time.Time       `json:"last_ok"`
	LastPrice   float64         `json:"last_price"`
	PosOpen     bool            `json:"pos_open"`
	PosSeen     time.Time       `json:"pos_seen"`
	OpenOrders  int             `json:"open_orders"`
	Alerts      []string        `json:"alerts,omitempty"`
	Panicked    bool            `json:"panicked"`
}

type Monitor struct {
	cfg   MonitorConfig
	gw    Gateway
	flat  Flattener
	note  Notifier
	sink  EventSink
	state *State
	log   *zap.Logger
	now   func() time.Time

	mu          sync.Mutex
	snap        Snapshot
	staleWarned bool
}

func NewMonitor(cfg MonitorConfig, gw Gateway, flat Flattener, note Notifier, sink EventSink, state *State, log *zap.Logger) *Monitor {
	if cfg.ErrorStreakMax <= 0 {
		cfg.ErrorStreakMax = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Monitor{
		cfg:   cfg,
		gw:    gw,
		flat:  flat,
		note:  note,
		sink:  sink,
		state: state,
		log:   log,
		now:   time.Now,
	}
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snap
	s.Checks = make(map[string]bool, len(m.snap.Checks))
	for k, v := range m.snap.Checks {
		s.Checks[k] = v
	}
	s.Alerts = append([]string(nil), m.snap.Alerts...)
	return s
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check опрашивает биржу один раз и обновляет серию ошибок.
func (m *Monitor) Check(ctx context.Context) Snapshot {
	now := m.now().UTC()
	checks := map[string]bool{}
	var errs []string

	tk, err := m.gw.FetchTicker(ctx, m.cfg.Symbol)
	checks["ticker"] = err == nil
	if err != nil {
		errs = append(errs, "ticker: "+err.Error())
	}

	pos, posErr := m.gw.FetchPosition(ctx, m.cfg.Symbol)
	checks["position"] = posErr == nil
	if posErr != nil {
		errs = append(errs, "position: "+posErr.Error())
	}

	orders, ordErr := m.gw.FetchOpenOrders(ctx, m.cfg.Symbol)
	checks["orders"] = ordErr == nil
	if ordErr != nil {
		errs = append(errs, "orders: "+ordErr.Error())
	}

	m.mu.Lock()
	s := m.snap
	s.At, s.Checks, s.Alerts = now, checks, nil
	if len(errs) > 0 {
		s.ErrorStreak++
		s.Alerts = append(s.Alerts, fmt.Sprintf("api errors (streak %d)", s.ErrorStreak))
	} else {
		s.ErrorStreak = 0
		s.LastOK = now
		s.Panicked = false
	}
	if err == nil {
		s.LastPrice = tk.Last
	}
	// при ошибке оставляем последнее известное значение
	if posErr == nil {
		s.PosOpen = !pos.IsFlat()
		if !s.PosOpen {
			s.PosSeen = time.Time{}
			m.staleWarned = false
		} else if s.PosSeen.IsZero() {
			s.PosSeen = now
		}
	}
	if ordErr == nil {
		s.OpenOrders = len(orders)
	}

	crossed := s.ErrorStreak == m.cfg.ErrorStreakMax
	doPanic := m.cfg.AutoPanic && s.ErrorStreak >= m.cfg.ErrorStreakMax && !s.Panicked && (s.PosOpen || s.OpenOrders > 0)
	if doPanic {
		s.Panicked = true
	}
	stale := false
	if s.PosOpen && ordErr == nil && s.OpenOrders == 0 && m.cfg.StalePositionAfter > 0 &&
		now.Sub(s.PosSeen) >= m.cfg.StalePositionAfter {
		s.Alerts = append(s.Alerts, fmt.Sprintf("position open %s without orders", now.Sub(s.PosSeen).Truncate(time.Minute)))
		stale = !m.staleWarned
		m.staleWarned = true
	}
	m.snap = s
	m.mu.Unlock()

	metrics.HealthErrorStreak.Set(float64(s.ErrorStreak))
	if m.state != nil && len(errs) == 0 {
		m.state.SetReady(true)
	}

	if len(errs) > 0 {
		m.log.Warn("health check failed", zap.Int("streak", s.ErrorStreak), zap.Strings("errors", errs))
	} else {
		m.log.Debug("health ok", zap.Bool("pos_open", s.PosOpen), zap.Int("open_orders", s.OpenOrders))
	}
	if crossed {
		m.notify(ctx, fmt.Sprintf("⚠️ %s: %d health errors in a row, check network/API/keys", m.cfg.Symbol, s.ErrorStreak))
	}
	if stale {
		m.notify(ctx, fmt.Sprintf("⏱ %s: %s", m.cfg.Symbol, s.Alerts[len(s.Alerts)-1]))
	}
	if doPanic {
		m.autoPanic(ctx)
	}

	if m.sink != nil {
		m.sink.Emit(ctx, models.Event{Kind: "health", Time: now, Symbol: m.cfg.Symbol, Payload: map[string]any{
			"checks": checks, "error_streak": s.ErrorStreak, "pos_open": s.PosOpen,
			"open_orders": s.OpenOrders, "alerts": s.Alerts,
		}})
	}
	return m.Snapshot()
}

func (m *Monitor) autoPanic(ctx context.Context) {
	if m.flat == nil {
		return
	}
	m.log.Warn("auto panic", zap.String("symbol", m.cfg.Symbol))
	rep, err := m.flat.Flatten(ctx, "health")
	if err != nil {
		m.log.Error("auto panic failed", zap.Error(err))
		m.notify(ctx, fmt.Sprintf("❌ %s auto-panic: %v", m.cfg.Symbol, err))
		return
	}
	m.notify(ctx, fmt.Sprintf("🧯 %s auto-panic: %s", m.cfg.Symbol, rep.Status))
}

func (m *Monitor) notify(ctx context.Context, text string) {
	if m.note != nil {
		m.note.Notify(ctx, text)
	}
}
