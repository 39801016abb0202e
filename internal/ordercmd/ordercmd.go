// Package ordercmd implements the compound "intent" order state machine: a
// parent order_cmd that splits into timed child orders, supervises each
// child's timeout/retry, and aggregates fills into one terminal outcome.
// An OrderCmd is a pure state machine: it issues requests via its Tick and
// On* methods but never performs I/O itself, grounded on
// original_source/src/trader/order_cmd.py's "no external dependencies,
// pure business logic" design, re-expressed with Go's static typing in
// place of the source's duck-typed event dispatch.
package ordercmd

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"qtrader/internal/model"
)

// Status is the OrderCmd lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// SplitStrategyKind selects how target volume is divided into child orders.
type SplitStrategyKind string

const (
	SplitSimple SplitStrategyKind = "simple"
	SplitTWAP   SplitStrategyKind = "twap"
)

// Finish reasons. A rejected cmd's reason is "rejected:<status_msg>".
const (
	FinishAllCompleted = "all_completed"
	FinishTotalTimeout  = "total_timeout"
	FinishCancelled     = "cancelled"
)

// Params configures a new OrderCmd. Zero values of MaxVolumePerOrder,
// TotalTimeout, OrderTimeout, MaxRetries and TWAPDuration fall back to the
// defaults used by the original Python implementation; a zero
// OrderInterval stays zero (no spacing between children).
type Params struct {
	Symbol              string
	Direction           model.Direction
	Offset              model.Offset
	TargetVolume        float64
	LimitPrice          *float64 // nil => market
	SourceTag           string
	SplitStrategy       SplitStrategyKind
	MaxVolumePerOrder   float64
	OrderInterval       time.Duration
	TWAPDuration        time.Duration // twap only
	TotalTimeout        time.Duration
	MaxRetries          int
	OrderTimeout        time.Duration
}

// SplitOrder is one child order scheduled by a splitting policy, with an
// absolute ready time computed once at registration so later children's
// timing does not drift with scheduling jitter.
type SplitOrder struct {
	Volume  float64
	ReadyAt time.Time
}

// pendingChild tracks the single in-flight child order an OrderCmd may
// have outstanding at a time. A nil *pendingChild means no child is
// outstanding; pendingSlot's set/clear are the only ways to mutate it, so "two
// active children" is statically impossible from outside this package.
type pendingChild struct {
	OrderID         string
	Volume          float64
	SubmitTime      time.Time
	CancelRequested bool
}

type pendingSlot struct {
	child *pendingChild
}

func (s *pendingSlot) get() (pendingChild, bool) {
	if s.child == nil {
		return pendingChild{}, false
	}
	return *s.child, true
}

func (s *pendingSlot) set(c pendingChild) { s.child = &c }
func (s *pendingSlot) clear()             { s.child = nil }

// TickAction is the decision Tick returns: at most one of Submit or
// CancelOrderID is set.
type TickAction struct {
	Submit        *OrderRequest
	CancelOrderID string
}

// IsZero reports whether the action carries no work.
func (a TickAction) IsZero() bool {
	return a.Submit == nil && a.CancelOrderID == ""
}

// OrderRequest is a child order to submit via the Gateway.
type OrderRequest struct {
	Symbol    string
	Direction model.Direction
	Offset    model.Offset
	Volume    float64
	Price     *float64
}

// OrderCmd is one compound order intent: one instance per parent order,
// owning its split queue, retry accounting, and VWAP fill aggregation.
//
// The Executor's own loop goroutine is the intended single mutator, but
// order.update/trade.created events arrive on the eventbus's per-topic
// worker goroutines, so every exported method guards the cmd's fields
// with mu rather than relying on single-goroutine access. Other
// components never touch a live *OrderCmd at all: they receive a
// Snapshot, a plain value copied under the same lock.
type OrderCmd struct {
	CmdID  string
	params Params

	mu sync.Mutex

	status       Status
	finishReason string

	filledVolume float64
	filledPrice  float64
	filledAmount float64

	pendingRetryVolume float64
	retryCount         int

	allChildOrderIDs []string
	countedTrades    map[string]bool

	splitQueue []SplitOrder
	nextSplit  *SplitOrder

	pending       pendingSlot
	lastOrderTime time.Time

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// New creates a pending OrderCmd. Call Register to start it.
func New(p Params) *OrderCmd {
	if p.MaxVolumePerOrder <= 0 {
		p.MaxVolumePerOrder = 10
	}
	if p.TotalTimeout <= 0 {
		p.TotalTimeout = 300 * time.Second
	}
	if p.OrderTimeout <= 0 {
		p.OrderTimeout = 15 * time.Second
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.TWAPDuration <= 0 {
		p.TWAPDuration = 300 * time.Second
	}
	return &OrderCmd{
		CmdID:         uuid.NewString(),
		params:        p,
		status:        StatusPending,
		countedTrades: make(map[string]bool),
		createdAt:     time.Now(),
	}
}

// Register transitions pending -> running, computes the full split
// schedule anchored to now, and makes the cmd eligible for Tick.
func (c *OrderCmd) Register(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPending {
		return
	}
	c.status = StatusRunning
	c.startedAt = now
	c.splitQueue = split(c.params, now)
	c.loadNextFromQueue()
}

func (c *OrderCmd) loadNextFromQueue() {
	if len(c.splitQueue) == 0 {
		c.nextSplit = nil
		return
	}
	next := c.splitQueue[0]
	c.splitQueue = c.splitQueue[1:]
	c.nextSplit = &next
}

// Tick is the pure time-driven decision function. It performs no I/O; the
// caller (the Executor) is responsible for acting on the returned action
// and reporting the outcome back via OnOrderSubmitted.
func (c *OrderCmd) Tick(now time.Time) TickAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRunning {
		return TickAction{}
	}

	if !c.startedAt.IsZero() && now.Sub(c.startedAt) >= c.params.TotalTimeout {
		c.finish(FinishTotalTimeout)
		return TickAction{}
	}
	if c.filledVolume >= c.params.TargetVolume {
		c.finish(FinishAllCompleted)
		return TickAction{}
	}

	if po, ok := c.pending.get(); ok {
		if !po.CancelRequested && now.Sub(po.SubmitTime) >= c.params.OrderTimeout && c.retryCount < c.params.MaxRetries {
			po.CancelRequested = true
			c.pending.set(po)
			return TickAction{CancelOrderID: po.OrderID}
		}
		return TickAction{} // at most one active child order at a time
	}

	if c.pendingRetryVolume > 0 {
		if now.Sub(c.lastOrderTime) >= c.params.OrderInterval {
			vol := min(c.pendingRetryVolume, c.params.MaxVolumePerOrder)
			c.pendingRetryVolume -= vol
			return TickAction{Submit: c.buildRequest(vol)}
		}
		return TickAction{}
	}

	if c.nextSplit != nil {
		if !now.Before(c.nextSplit.ReadyAt) && now.Sub(c.lastOrderTime) >= c.params.OrderInterval {
			req := c.buildRequest(c.nextSplit.Volume)
			c.loadNextFromQueue()
			return TickAction{Submit: req}
		}
		return TickAction{}
	}

	return TickAction{}
}

func (c *OrderCmd) buildRequest(volume float64) *OrderRequest {
	return &OrderRequest{
		Symbol:    c.params.Symbol,
		Direction: c.params.Direction,
		Offset:    c.params.Offset,
		Volume:    volume,
		Price:     c.params.LimitPrice,
	}
}

// OnOrderSubmitted records a successfully submitted child order as the
// new pending child and starts its timeout clock.
func (c *OrderCmd) OnOrderSubmitted(orderID string, volume float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRunning {
		return
	}
	c.allChildOrderIDs = append(c.allChildOrderIDs, orderID)
	c.pending.set(pendingChild{OrderID: orderID, Volume: volume, SubmitTime: now})
	c.lastOrderTime = now
}

func (c *OrderCmd) ownsOrder(orderID string) bool {
	for _, id := range c.allChildOrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

// OnOrderUpdate handles an order.update event for one of this cmd's
// children: it tracks the pending-child slot, routes timed-out-and-
// cancelled volume into the retry queue, and classifies rejections.
func (c *OrderCmd) OnOrderUpdate(order model.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRunning || !c.ownsOrder(order.OrderID) {
		return
	}

	if po, ok := c.pending.get(); ok && po.OrderID == order.OrderID {
		if !order.IsActive() {
			if po.CancelRequested && order.VolumeLeft() > 0 {
				c.pendingRetryVolume += order.VolumeLeft()
				c.retryCount++
			}
			c.pending.clear()
		}
	}

	if model.ClassifyRejection(order.StatusMsg) {
		c.finish(fmt.Sprintf("rejected:%s", order.StatusMsg))
		return
	}

	c.checkCompletion()
}

// OnTradeCreated handles a trade.created event: the incremental fill is
// counted exactly once per trade_id, even if the same fill is later
// reflected again via a growing order.update volume_traded.
func (c *OrderCmd) OnTradeCreated(trade model.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRunning || !c.ownsOrder(trade.OrderID) {
		return
	}
	if c.countedTrades[trade.TradeID] {
		return
	}
	c.countedTrades[trade.TradeID] = true

	c.filledVolume += trade.Volume
	c.filledAmount += trade.Price * trade.Volume
	if c.filledVolume > 0 {
		c.filledPrice = c.filledAmount / c.filledVolume
	}
	c.checkCompletion()
}

func (c *OrderCmd) checkCompletion() {
	if c.filledVolume >= c.params.TargetVolume {
		c.finish(FinishAllCompleted)
		return
	}
	if !c.startedAt.IsZero() && time.Since(c.startedAt) >= c.params.TotalTimeout {
		c.finish(FinishTotalTimeout)
	}
}

// Close cancels a running cmd; a no-op once already finished.
func (c *OrderCmd) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRunning {
		return
	}
	c.finish(FinishCancelled)
}

func (c *OrderCmd) finish(reason string) {
	if c.status == StatusFinished {
		return
	}
	c.status = StatusFinished
	c.finishReason = reason
	c.finishedAt = time.Now()
}

// ActiveChildOrderID returns the currently outstanding child order id, if
// any, for the Executor to cancel when closing the cmd.
func (c *OrderCmd) ActiveChildOrderID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	po, ok := c.pending.get()
	if !ok {
		return "", false
	}
	return po.OrderID, true
}

func (c *OrderCmd) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
func (c *OrderCmd) FinishReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishReason
}
func (c *OrderCmd) FilledVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filledVolume
}
func (c *OrderCmd) FilledPrice() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filledPrice
}
func (c *OrderCmd) RemainingVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.TargetVolume - c.filledVolume
}
func (c *OrderCmd) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}
func (c *OrderCmd) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusRunning
}
func (c *OrderCmd) IsFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusFinished
}
func (c *OrderCmd) Symbol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Symbol
}
func (c *OrderCmd) SourceTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.SourceTag
}
func (c *OrderCmd) Offset() model.Offset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Offset
}
func (c *OrderCmd) Direction() model.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Direction
}
func (c *OrderCmd) TargetVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.TargetVolume
}
func (c *OrderCmd) AllChildOrderIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.allChildOrderIDs))
	copy(out, c.allChildOrderIDs)
	return out
}
func (c *OrderCmd) CreatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdAt
}
func (c *OrderCmd) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}
func (c *OrderCmd) FinishedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishedAt
}

// Snapshot is a read-only, point-in-time copy of an OrderCmd's observable
// fields. It is safe to pass across goroutines without synchronization,
// unlike the live *OrderCmd, which only the Executor's own goroutines
// (loop and event handlers) ever mutate. Every other component — the
// strategy harness, the IPC handlers, get_strategy_order_cmds — sees a
// cmd exclusively through its Snapshot.
type Snapshot struct {
	CmdID        string
	Symbol       string
	Direction    model.Direction
	Offset       model.Offset
	SourceTag    string
	TargetVolume float64
	FilledVolume float64
	FilledPrice  float64
	Status       Status
	FinishReason string
	RetryCount   int
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// IsFinished reports whether the snapshot was taken after the cmd reached
// its terminal state.
func (s Snapshot) IsFinished() bool { return s.Status == StatusFinished }

// Snapshot copies c's fields under lock into an independent value.
func (c *OrderCmd) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		CmdID:        c.CmdID,
		Symbol:       c.params.Symbol,
		Direction:    c.params.Direction,
		Offset:       c.params.Offset,
		SourceTag:    c.params.SourceTag,
		TargetVolume: c.params.TargetVolume,
		FilledVolume: c.filledVolume,
		FilledPrice:  c.filledPrice,
		Status:       c.status,
		FinishReason: c.finishReason,
		RetryCount:   c.retryCount,
		CreatedAt:    c.createdAt,
		StartedAt:    c.startedAt,
		FinishedAt:   c.finishedAt,
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
