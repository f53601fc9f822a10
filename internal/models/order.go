package models

import "time"

type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
)

type OrderRequest struct {
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Qty         float64
	Price       float64 // 0 для рыночного
	ReduceOnly  bool
	TimeInForce TimeInForce
	ClientID    string
}

// RejectKind: классификация отказа биржи.
type RejectKind string

const (
	RejectNone       RejectKind = ""
	RejectPrecision  RejectKind = "precision"
	RejectReduceOnly RejectKind = "reduce_only"
	RejectOther      RejectKind = "other"
)

type OrderResult struct {
	Accepted bool
	OrderID  string
	Reject   RejectKind
	Reason   string
}

// EscalationAttempt: одна запись лога закрытия позиции.
type EscalationAttempt struct {
	Round  int
	Stage  int
	Action string
	Result string
	Err    error
	At     time.Time
}

// Event: структурированное событие для журнала.
type Event struct {
	Kind    string
	Time    time.Time
	Symbol  string
	Payload map[string]any
}
