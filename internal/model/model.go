// Package model holds the data shapes shared by every component of a
// Trader process: account/position/order/trade/tick/bar snapshots plus the
// small enums (TraderState, RiskCounters) the Manager and executor track.
package model

import (
	"strings"
	"time"
)

// Account is the brokerage account snapshot owned exclusively by the
// Trader process for its configured account id.
type Account struct {
	AccountID        string    `json:"account_id"`
	Balance          float64   `json:"balance"`
	Available        float64   `json:"available"`
	Margin           float64   `json:"margin"`
	PreBalance       float64   `json:"pre_balance"`
	HoldProfit       float64   `json:"hold_profit"`
	CloseProfit      float64   `json:"close_profit"`
	RiskRatio        float64   `json:"risk_ratio"`
	Currency         string    `json:"currency"`
	BrokerName       string    `json:"broker_name"`
	GatewayConnected bool      `json:"gateway_connected"`
	TradePaused      bool      `json:"trade_paused"`
	RiskStatus       string    `json:"risk_status"`
	UpdateTime       time.Time `json:"update_time"`
}

// Side is a position side.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is keyed by symbol+exchange+side; long and short are tracked
// independently so net position is derivable as long - short.
type Position struct {
	Symbol     string  `json:"symbol"`
	Exchange   string  `json:"exchange"`
	PosSide    Side    `json:"side"`
	NetPos     float64 `json:"net_pos"`
	YdPos      float64 `json:"yd_pos"`
	TdPos      float64 `json:"td_pos"`
	AvgPrice   float64 `json:"avg_price"`
	HoldProfit float64 `json:"hold_profit"`
	Margin     float64 `json:"margin"`
}

// Direction is an order direction.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Offset classifies whether an order opens or closes a position.
type Offset string

const (
	OffsetOpen          Offset = "open"
	OffsetClose         Offset = "close"
	OffsetCloseToday    Offset = "close_today"
	OffsetCloseYesterday Offset = "close_yesterday"
)

// OrderStatus is the lifecycle state of a child order. Transitions are
// monotonic: Pending -> {Finished, Rejected}; there is no path back.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusFinished OrderStatus = "finished"
)

// PriceType selects how a child order is priced at the gateway.
type PriceType string

const (
	PriceTypeLimit  PriceType = "limit"
	PriceTypeMarket PriceType = "market"
	PriceTypeFOK    PriceType = "fok"
	PriceTypeFAK    PriceType = "fak"
)

// rejectKeywords are the status_msg substrings that classify a pending
// order as rejected by the gateway (case-insensitive).
var rejectKeywords = []string{"rejected", "insufficient", "halt", "margin call", "risk control"}

// Order is one gateway-submitted child order.
type Order struct {
	OrderID         string      `json:"order_id"`
	Symbol          string      `json:"symbol"`
	Exchange        string      `json:"exchange"`
	Direction       Direction   `json:"direction"`
	Offset          Offset      `json:"offset"`
	VolumeOriginal  float64     `json:"volume_original"`
	VolumeTraded    float64     `json:"volume_traded"`
	Price           *float64    `json:"price"`
	PriceType       PriceType   `json:"price_type"`
	Status          OrderStatus `json:"status"`
	StatusMsg       string      `json:"status_msg"`
	GatewayOrderID  string      `json:"gateway_order_id"`
	InsertTime      time.Time   `json:"insert_time"`
	UpdateTime      time.Time   `json:"update_time"`
}

// VolumeLeft returns the unfilled remainder of the order.
func (o Order) VolumeLeft() float64 {
	return o.VolumeOriginal - o.VolumeTraded
}

// IsActive reports whether the order is still live at the gateway.
func (o Order) IsActive() bool {
	return o.Status == OrderStatusPending
}

// ClassifyRejection scans status_msg for known reject keywords and, if
// found while the order is still nominally pending, returns true so the
// caller can transition it to rejected.
func ClassifyRejection(statusMsg string) bool {
	lower := strings.ToLower(statusMsg)
	for _, kw := range rejectKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Trade is an append-only fill against an order.
type Trade struct {
	TradeID    string    `json:"trade_id"`
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Exchange   string    `json:"exchange"`
	Direction  Direction `json:"direction"`
	Offset     Offset    `json:"offset"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	TradeTime  time.Time `json:"trade_time"`
	TradingDay string    `json:"trading_day"`
	Commission float64   `json:"commission"`
}

// Tick is a market snapshot for one symbol.
type Tick struct {
	Symbol       string    `json:"symbol"`
	Exchange     string    `json:"exchange"`
	Timestamp    time.Time `json:"timestamp"`
	LastPrice    float64   `json:"last_price"`
	Bid1         float64   `json:"bid1"`
	Ask1         float64   `json:"ask1"`
	BidVol1      float64   `json:"bid_vol1"`
	AskVol1      float64   `json:"ask_vol1"`
	Volume       float64   `json:"volume"`
	Turnover     float64   `json:"turnover"`
	OpenInterest float64   `json:"open_interest"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	PreClose     float64   `json:"pre_close"`
	LimitUp      float64   `json:"limit_up"`
	LimitDown    float64   `json:"limit_down"`
}

// Interval is a bar resample period.
type Interval string

const (
	IntervalM1  Interval = "M1"
	IntervalM5  Interval = "M5"
	IntervalM15 Interval = "M15"
	IntervalM30 Interval = "M30"
	IntervalH1  Interval = "H1"
	IntervalD1  Interval = "D1"
)

// Bar is a completed resampled candle.
type Bar struct {
	Symbol       string    `json:"symbol"`
	Interval     Interval  `json:"interval"`
	Timestamp    time.Time `json:"timestamp"` // bucket start
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	Turnover     float64   `json:"turnover"`
	OpenInterest float64   `json:"open_interest"`
	UpdateTime   time.Time `json:"update_time"`
}

// TraderState is the supervision state the Manager tracks for one account.
type TraderState string

const (
	TraderStopped    TraderState = "stopped"
	TraderConnecting TraderState = "connecting"
	TraderConnected  TraderState = "connected"
)

// RiskCounters are per-Trader daily counters that auto-reset on date
// rollover.
type RiskCounters struct {
	DailyOrderCount  int
	DailyCancelCount int
	LastResetDate    string // YYYY-MM-DD
}

// ResetIfNewDay zeroes both counters when today differs from the last
// recorded reset date, returning whether a reset happened.
func (c *RiskCounters) ResetIfNewDay(today string) bool {
	if c.LastResetDate == today {
		return false
	}
	c.DailyOrderCount = 0
	c.DailyCancelCount = 0
	c.LastResetDate = today
	return true
}
