package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"futures_bot/internal/helper"
	"futures_bot/internal/models"
)

// коды отказов, которые стоит лечить сдвигом цены или закрывать не reduce-only
var rejectKinds = map[int]models.RejectKind{
	110003: models.RejectPrecision,  // price out of permissible range
	170134: models.RejectPrecision,  // order price has too many decimals
	110017: models.RejectReduceOnly, // reduce-only rule not satisfied
}

const codeNotModified = 34040

func rejectKind(code int) models.RejectKind {
	if k, ok := rejectKinds[code]; ok {
		return k
	}
	return models.RejectOther
}

func (c *Client) FetchPosition(ctx context.Context, symbol string) (models.PositionSnapshot, error) {
	q := url.Values{}
	q.Set("category", c.cfg.Category)
	q.Set("symbol", symbol)
	var res listResult[positionInfo]
	if err := c.get(ctx, "/v5/position/list", q, true, &res); err != nil {
		return models.PositionSnapshot{}, pkgerrors.Wrap(err, "fetch position")
	}

	snap := models.PositionSnapshot{Symbol: symbol, UpdatedAt: c.now().UTC()}
	for _, p := range res.List {
		size, err := parseNum("size", p.Size)
		if err != nil {
			return snap, err
		}
		if size <= 0 {
			continue
		}
		avg, err := parseNum("avgPrice", p.AvgPrice)
		if err != nil {
			return snap, err
		}
		snap.Size = size
		snap.AvgEntryPrice = avg
		switch p.Side {
		case "Buy":
			snap.Side = models.SideLong
		case "Sell":
			snap.Side = models.SideShort
		}
		if ms, err := strconv.ParseInt(p.UpdatedTime, 10, 64); err == nil && ms > 0 {
			snap.UpdatedAt = time.UnixMilli(ms).UTC()
		}
		break
	}
	return snap, nil
}

func (c *Client) FetchOpenOrders(ctx context.Context, symbol string) ([]string, error) {
	q := url.Values{}
	q.Set("category", c.cfg.Category)
	q.Set("symbol", symbol)
	var res listResult[openOrder]
	if err := c.get(ctx, "/v5/order/realtime", q, true, &res); err != nil {
		return nil, pkgerrors.Wrap(err, "fetch open orders")
	}
	ids := make([]string, 0, len(res.List))
	for _, o := range res.List {
		ids = append(ids, o.OrderID)
	}
	return ids, nil
}

// SubmitOrder: retCode != 0 возвращается как отказ, error: только транспорт и разбор.
func (c *Client) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	prec, err := c.FetchInstrumentPrecision(ctx, req.Symbol)
	if err != nil {
		return models.OrderResult{}, err
	}

	body := createOrderRequest{
		Category:    c.cfg.Category,
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		OrderType:   string(req.Type),
		Qty:         helper.FormatStep(req.Qty, prec.QtyStep),
		TimeInForce: string(req.TimeInForce),
		ReduceOnly:  req.ReduceOnly,
		OrderLinkID: req.ClientID,
	}
	if req.Type == models.OrderTypeLimit {
		body.Price = helper.FormatStep(req.Price, prec.TickSize)
	}

	var res createOrderResult
	err = c.post(ctx, "/v5/order/create", body, &res)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return models.OrderResult{
			Reject: rejectKind(apiErr.Code),
			Reason: fmt.Sprintf("%d %s", apiErr.Code, apiErr.Msg),
		}, nil
	}
	if err != nil {
		return models.OrderResult{}, pkgerrors.Wrap(err, "submit order")
	}
	return models.OrderResult{Accepted: true, OrderID: res.OrderID}, nil
}

func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	body := map[string]string{"category": c.cfg.Category, "symbol": symbol}
	return pkgerrors.Wrap(c.post(ctx, "/v5/order/cancel-all", body, nil), "cancel all")
}

// AttachStops ставит SL/TP на всю позицию. target == 0: без тейка.
func (c *Client) AttachStops(ctx context.Context, symbol string, stop, target float64) error {
	prec, err := c.FetchInstrumentPrecision(ctx, symbol)
	if err != nil {
		return err
	}
	body := tradingStopRequest{
		Category: c.cfg.Category,
		Symbol:   symbol,
		TpslMode: "Full",
	}
	if stop > 0 {
		body.StopLoss = helper.FormatStep(stop, prec.TickSize)
		body.SlTriggerBy = "MarkPrice"
	}
	if target > 0 {
		body.TakeProfit = helper.FormatStep(target, prec.TickSize)
		body.TpTriggerBy = "LastPrice"
	}

	err = c.post(ctx, "/v5/position/trading-stop", body, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeNotModified {
		return nil
	}
	return pkgerrors.Wrap(err, "attach stops")
}

func (c *Client) FetchEquity(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")
	var res listResult[walletInfo]
	if err := c.get(ctx, "/v5/account/wallet-balance", q, true, &res); err != nil {
		return 0, pkgerrors.Wrap(err, "fetch equity")
	}
	if len(res.List) == 0 {
		return 0, pkgerrors.New("empty wallet balance")
	}
	return parseNum("totalEquity", res.List[0].TotalEquity)
}
