package service

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"futures_bot/internal/models"
)

const maxKlineLimit = 1000

// FetchCandles отдаёт свечи по возрастанию open_time (bybit присылает новые первыми).
func (c *Client) FetchCandles(ctx context.Context, symbol, interval string, lookback int) ([]models.Candle, error) {
	if lookback <= 0 || lookback > maxKlineLimit {
		lookback = maxKlineLimit
	}
	q := url.Values{}
	q.Set("category", c.cfg.Category)
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(lookback))

	var res listResult[klineRow]
	if err := c.get(ctx, "/v5/market/kline", q, false, &res); err != nil {
		return nil, errors.Wrap(err, "fetch candles")
	}

	out := make([]models.Candle, 0, len(res.List))
	for _, row := range res.List {
		if len(row) < 6 {
			return nil, errors.Errorf("kline row has %d fields", len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse kline start %q", row[0])
		}
		var vals [5]float64
		for i := range vals {
			if vals[i], err = parseNum("kline", row[i+1]); err != nil {
				return nil, err
			}
		}
		out = append(out, models.Candle{
			OpenTime: time.UnixMilli(ms).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

func (c *Client) FetchInstrumentPrecision(ctx context.Context, symbol string) (models.InstrumentPrecision, error) {
	c.mu.RLock()
	p, ok := c.precision[symbol]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	q := url.Values{}
	q.Set("category", c.cfg.Category)
	q.Set("symbol", symbol)
	var res listResult[instrumentInfo]
	if err := c.get(ctx, "/v5/market/instruments-info", q, false, &res); err != nil {
		return models.InstrumentPrecision{}, errors.Wrap(err, "fetch instrument")
	}
	if len(res.List) == 0 {
		return models.InstrumentPrecision{}, errors.Errorf("instrument %s not found", symbol)
	}
	inst := res.List[0]
	if inst.Status != "" && inst.Status != "Trading" {
		return models.InstrumentPrecision{}, errors.Errorf("instrument %s not trading: status=%s", symbol, inst.Status)
	}

	var err error
	if p.TickSize, err = parseNum("tickSize", inst.PriceFilter.TickSize); err != nil {
		return p, err
	}
	if p.QtyStep, err = parseNum("qtyStep", inst.LotSizeFilter.QtyStep); err != nil {
		return p, err
	}
	if p.MinQty, err = parseNum("minOrderQty", inst.LotSizeFilter.MinOrderQty); err != nil {
		return p, err
	}
	if p.MinNotional, err = parseNum("minNotionalValue", inst.LotSizeFilter.MinNotionalValue); err != nil {
		return p, err
	}
	if p.TickSize <= 0 || p.QtyStep <= 0 {
		return models.InstrumentPrecision{}, errors.Errorf("instrument %s: tick=%v step=%v", symbol, p.TickSize, p.QtyStep)
	}

	c.mu.Lock()
	c.precision[symbol] = p
	c.mu.Unlock()
	return p, nil
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	q := url.Values{}
	q.Set("category", c.cfg.Category)
	q.Set("symbol", symbol)
	var res listResult[tickerInfo]
	if err := c.get(ctx, "/v5/market/tickers", q, false, &res); err != nil {
		return models.Ticker{}, errors.Wrap(err, "fetch ticker")
	}
	if len(res.List) == 0 {
		return models.Ticker{}, errors.Errorf("ticker %s not found", symbol)
	}
	t := res.List[0]
	var (
		out models.Ticker
		err error
	)
	if out.Bid, err = parseNum("bid1Price", t.Bid1Price); err != nil {
		return out, err
	}
	if out.Ask, err = parseNum("ask1Price", t.Ask1Price); err != nil {
		return out, err
	}
	if out.Last, err = parseNum("lastPrice", t.LastPrice); err != nil {
		return out, err
	}
	return out, nil
}
