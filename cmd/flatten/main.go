// flatten: разовое аварийное закрытие символа после рестарта или падения бота.
// Код выхода 2: позицию закрыть не удалось, нужен человек.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"futures_bot/internal/journal"
	"futures_bot/internal/models"
	"futures_bot/internal/modules/bybit_client"
	"futures_bot/internal/modules/config"
	telegram "futures_bot/internal/modules/telegram_bot"
	"futures_bot/internal/runner"
	"futures_bot/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	log, err := logger.New(cfg.Log.Level, cfg.Service.Name+"_flatten")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	symbol := cfg.Trading.Symbol
	log = log.With(zap.String("symbol", symbol))
	client := bybit_client.NewClient(cfg)

	pos, err := client.FetchPosition(ctx, symbol)
	if err != nil {
		log.Error("fetch position", zap.Error(err))
		return 1
	}
	orders, err := client.FetchOpenOrders(ctx, symbol)
	if err != nil {
		log.Error("fetch open orders", zap.Error(err))
		return 1
	}
	if pos.IsFlat() && len(orders) == 0 {
		log.Info("nothing to flatten")
		return 0
	}
	log.Warn("flattening",
		zap.String("side", string(pos.Side)),
		zap.Float64("size", pos.Size),
		zap.Int("open_orders", len(orders)),
	)

	tg, err := telegram.NewTelegram(cfg, log)
	if err != nil {
		log.Warn("telegram unavailable", zap.Error(err))
	}
	notify := func(text string) {
		if tg != nil {
			tg.Notify(ctx, text)
		}
	}

	esc := runner.NewEscalator(cfg, client, journal.NewZapSink(log.Named("journal")), log)
	rep, err := esc.Flatten(ctx, symbol)
	if err != nil {
		notify(fmt.Sprintf("🚨 NOT FLAT %s: %v\nНужно ручное вмешательство.", symbol, err))
		if errors.Is(err, models.ErrNotFlatAfterRetries) {
			return 2
		}
		return 1
	}
	notify(fmt.Sprintf("✅ %s flat: %s", symbol, rep.Status))
	log.Info("flat", zap.String("status", string(rep.Status)), zap.Int("steps", len(rep.Log)))
	return 0
}
