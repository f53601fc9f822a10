// Package exchange описывает то, что ядру нужно от биржи.
package exchange

import (
	"context"

	"futures_bot/internal/models"
)

// Gateway: все вызовы идентифицируются символом и должны быть безопасны к повтору.
type Gateway interface {
	// FetchCandles отдаёт свечи по возрастанию open_time; у лимитов биржи может вернуть меньше lookback.
	FetchCandles(ctx context.Context, symbol, interval string, lookback int) ([]models.Candle, error)
	FetchInstrumentPrecision(ctx context.Context, symbol string) (models.InstrumentPrecision, error)
	FetchPosition(ctx context.Context, symbol string) (models.PositionSnapshot, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]string, error)
	// SubmitOrder: отказ биржи это OrderResult{Accepted:false}, error: только транспорт.
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	// AttachStops ставит SL/TP на позицию. target == 0: без тейка.
	AttachStops(ctx context.Context, symbol string, stop, target float64) error
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	FetchEquity(ctx context.Context) (float64, error)
}
