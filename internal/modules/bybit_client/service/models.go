package service

type listResult[T any] struct {
	Category string `json:"category"`
	List     []T    `json:"list"`
}

// kline: [startTime, open, high, low, close, volume, turnover], новые первыми.
type klineRow []string

type instrumentInfo struct {
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`
	PriceFilter struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
	LotSizeFilter struct {
		QtyStep          string `json:"qtyStep"`
		MinOrderQty      string `json:"minOrderQty"`
		MinNotionalValue string `json:"minNotionalValue"`
	} `json:"lotSizeFilter"`
}

type positionInfo struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"` // Buy | Sell | ""
	Size        string `json:"size"`
	AvgPrice    string `json:"avgPrice"`
	PositionIdx int    `json:"positionIdx"`
	UpdatedTime string `json:"updatedTime"`
}

type openOrder struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type tickerInfo struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
}

type walletInfo struct {
	AccountType string `json:"accountType"`
	TotalEquity string `json:"totalEquity"`
}

type createOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
	PositionIdx int    `json:"positionIdx"`
}

type createOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type tradingStopRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	StopLoss    string `json:"stopLoss,omitempty"`
	TakeProfit  string `json:"takeProfit,omitempty"`
	TpslMode    string `json:"tpslMode"`
	SlTriggerBy string `json:"slTriggerBy,omitempty"`
	TpTriggerBy string `json:"tpTriggerBy,omitempty"`
	PositionIdx int    `json:"positionIdx"`
}
