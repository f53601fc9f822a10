package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"futures_bot/internal/exchange"
	"futures_bot/internal/journal"
	"futures_bot/internal/metrics"
	"futures_bot/internal/modules/config"
	"futures_bot/internal/modules/health/service"
	"futures_bot/internal/runner"
)

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(cfg *config.Config) Config {
	addr := cfg.Service.HealthAddr
	if addr == "" {
		addr = ":8080"
	}
	return Config{Addr: addr}
}

type MonitorParams struct {
	fx.In

	Cfg      *config.Config
	Gateway  exchange.Gateway
	Runner   *runner.Runner
	Notifier runner.Notifier `optional:"true"`
	Sink     journal.Sink
	State    *service.State
	Log      *zap.Logger
}

func NewMonitor(p MonitorParams) *service.Monitor {
	hc := p.Cfg.Health
	var note service.Notifier
	if p.Notifier != nil {
		note = p.Notifier
	}
	return service.NewMonitor(service.MonitorConfig{
		Symbol:             p.Cfg.Trading.Symbol,
		Interval:           hc.Interval,
		ErrorStreakMax:     hc.ErrorStreakMax,
		AutoPanic:          hc.AutoPanic,
		StalePositionAfter: hc.StalePositionAfter,
	}, p.Gateway, p.Runner, note, p.Sink, p.State, p.Log.Named("health"))
}

func NewMux(state *service.State, mon *service.Monitor, r *runner.Runner) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		// readiness: биржа отвечает
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		last := r.LastReport()
		resp := map[string]any{
			"ready":       state.Ready(),
			"wsConnected": state.WSConnected(),
			"uptimeSec":   int64(state.Uptime().Seconds()),
			"lastTickUnix": func() int64 {
				t := state.LastTick()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),
			"monitor": mon.Snapshot(),
			"lastCycle": map[string]any{
				"at":      last.At,
				"action":  string(last.Action),
				"skip":    last.Skip,
				"candles": last.Candles,
			},
		}
		body, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	mux.Handle("/metrics", metrics.Handler())

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("health http listening", zap.String("addr", cfg.Addr))
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func RunMonitor(lc fx.Lifecycle, mon *service.Monitor) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go mon.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			NewMonitor,
			NewMux,
		),
		fx.Invoke(RunHTTP, RunMonitor),
	)
}
