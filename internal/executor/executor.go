// Package executor drives every live OrderCmd from one cooperative loop:
// it ticks each cmd, submits/cancels child orders through the Gateway,
// and routes order.update/trade.created events back to their owning cmd.
// Grounded on original_source/src/trader/order_cmd_executor.py's
// single-thread design ("100+ OrderCmd in one thread instead of 100+"),
// re-expressed with the ticker-driven background-goroutine idiom from the
// teacher's internal/gateway.Manager.Start (cleanup/health-check loops).
package executor

import (
	"context"
	"log"
	"sync"
	"time"

	"qtrader/internal/eventbus"
	"qtrader/internal/gateway"
	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
)

// TickInterval is the loop's polling period, matching the source's
// 100ms _tick_interval.
const TickInterval = 100 * time.Millisecond

// statsInterval bounds how often aggregate stats are logged.
const statsInterval = time.Minute

// Executor owns every live OrderCmd for one Trader and is the only
// component permitted to call OrderCmd.Tick.
type Executor struct {
	gw  gateway.Gateway
	bus *eventbus.Bus

	mu                sync.Mutex
	live              map[string]*ordercmd.OrderCmd
	archive           map[string]*ordercmd.OrderCmd
	subscribedSymbols map[string]bool

	paused func() bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	lastStatsAt time.Time
}

// New creates an Executor. paused, if non-nil, is polled each loop
// iteration; while it returns true the loop makes no submissions but
// still honors pending-child cancel timeouts already in flight.
func New(gw gateway.Gateway, bus *eventbus.Bus, paused func() bool) *Executor {
	if paused == nil {
		paused = func() bool { return false }
	}
	return &Executor{
		gw:                gw,
		bus:               bus,
		live:              make(map[string]*ordercmd.OrderCmd),
		archive:           make(map[string]*ordercmd.OrderCmd),
		subscribedSymbols: make(map[string]bool),
		paused:            paused,
		stopCh:            make(chan struct{}),
	}
}

// Start subscribes to order/trade events and launches the main loop.
func (e *Executor) Start(ctx context.Context) {
	e.bus.Register(eventbus.TopicOrderUpdate, func(payload any) error {
		order, ok := payload.(model.Order)
		if !ok {
			return nil
		}
		e.onOrderUpdate(order)
		return nil
	})
	e.bus.Register(eventbus.TopicTradeCreated, func(payload any) error {
		trade, ok := payload.(model.Trade)
		if !ok {
			return nil
		}
		e.onTradeCreated(trade)
		return nil
	})

	e.lastStatsAt = time.Now()
	e.wg.Add(1)
	go e.runLoop(ctx)
}

// Stop halts the main loop and waits for it to exit.
func (e *Executor) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// Register starts cmd: it idempotently subscribes the symbol via the
// Gateway, transitions the cmd to running, and makes it live.
func (e *Executor) Register(ctx context.Context, cmd *ordercmd.OrderCmd) {
	e.mu.Lock()
	if !e.subscribedSymbols[cmd.Symbol()] {
		if err := e.gw.Subscribe(ctx, []string{cmd.Symbol()}); err != nil {
			log.Printf("executor: subscribe %s failed: %v", cmd.Symbol(), err)
		} else {
			e.subscribedSymbols[cmd.Symbol()] = true
		}
	}
	cmd.Register(time.Now())
	e.live[cmd.CmdID] = cmd
	e.mu.Unlock()

	e.bus.Publish(eventbus.TopicOrderCmdUpdate, cmd.Snapshot())
}

// Close cancels the active child order (if any) and marks cmd cancelled.
func (e *Executor) Close(ctx context.Context, cmdID string) bool {
	e.mu.Lock()
	cmd, ok := e.live[cmdID]
	e.mu.Unlock()
	if !ok || !cmd.IsActive() {
		return false
	}

	if orderID, has := cmd.ActiveChildOrderID(); has {
		if err := e.gw.CancelOrder(ctx, orderID); err != nil {
			log.Printf("executor: cancel %s failed: %v", orderID, err)
		}
	}
	cmd.Close()
	e.bus.Publish(eventbus.TopicOrderCmdUpdate, cmd.Snapshot())
	return true
}

func (e *Executor) runLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.runOnce(ctx)
		}
	}
}

func (e *Executor) runOnce(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	ids := make([]string, 0, len(e.live))
	for id := range e.live {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.mu.Lock()
		cmd, ok := e.live[id]
		e.mu.Unlock()
		if !ok {
			continue
		}

		if cmd.IsFinished() {
			e.archiveCmd(id, cmd)
			continue
		}
		if !cmd.IsActive() {
			continue
		}
		e.processTick(ctx, cmd, now)
	}

	e.maybeLogStats()
}

func (e *Executor) processTick(ctx context.Context, cmd *ordercmd.OrderCmd, now time.Time) {
	// A Tick that returns a Submit has already taken that volume off the
	// split queue or the retry volume, so while paused a cmd with no
	// outstanding child is not ticked at all. A cmd with an outstanding
	// child is still ticked so that child's timeout cancel goes out.
	if e.paused() {
		if _, has := cmd.ActiveChildOrderID(); !has {
			return
		}
	}
	action := cmd.Tick(now)

	// While paused, new child orders are withheld, but a CancelOrderID
	// action (an already-submitted child's timeout) is never suppressed:
	// existing child orders' cancel timeouts are honored regardless of
	// the pause flag.
	if action.Submit != nil && !e.paused() {
		req := gateway.OrderRequest{
			Symbol:    action.Submit.Symbol,
			Direction: action.Submit.Direction,
			Offset:    action.Submit.Offset,
			Volume:    action.Submit.Volume,
			Price:     action.Submit.Price,
		}
		order, err := e.gw.SendOrder(ctx, req)
		if err != nil {
			log.Printf("executor: send_order failed for cmd %s: %v", cmd.CmdID, err)
		} else {
			cmd.OnOrderSubmitted(order.OrderID, action.Submit.Volume, now)
		}
	}

	if action.CancelOrderID != "" {
		if err := e.gw.CancelOrder(ctx, action.CancelOrderID); err != nil {
			log.Printf("executor: cancel_order failed for cmd %s: %v", cmd.CmdID, err)
		}
	}

	if cmd.IsFinished() {
		e.bus.Publish(eventbus.TopicOrderCmdUpdate, cmd.Snapshot())
	}
}

func (e *Executor) archiveCmd(id string, cmd *ordercmd.OrderCmd) {
	e.mu.Lock()
	delete(e.live, id)
	e.archive[id] = cmd
	e.mu.Unlock()
	e.bus.Publish(eventbus.TopicOrderCmdUpdate, cmd.Snapshot())
}

func (e *Executor) findOwning(orderID string) *ordercmd.OrderCmd {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cmd := range e.live {
		for _, id := range cmd.AllChildOrderIDs() {
			if id == orderID {
				return cmd
			}
		}
	}
	return nil
}

func (e *Executor) onOrderUpdate(order model.Order) {
	cmd := e.findOwning(order.OrderID)
	if cmd == nil {
		return
	}
	prevStatus := cmd.Status()
	cmd.OnOrderUpdate(order)
	if cmd.Status() != prevStatus {
		e.bus.Publish(eventbus.TopicOrderCmdUpdate, cmd.Snapshot())
	}
}

func (e *Executor) onTradeCreated(trade model.Trade) {
	cmd := e.findOwning(trade.OrderID)
	if cmd == nil {
		return
	}
	prevStatus := cmd.Status()
	prevFilled := cmd.FilledVolume()
	cmd.OnTradeCreated(trade)
	if cmd.Status() != prevStatus || cmd.FilledVolume() != prevFilled {
		e.bus.Publish(eventbus.TopicOrderCmdUpdate, cmd.Snapshot())
	}
}

func (e *Executor) maybeLogStats() {
	if time.Since(e.lastStatsAt) < statsInterval {
		return
	}
	e.lastStatsAt = time.Now()

	e.mu.Lock()
	active := 0
	for _, cmd := range e.live {
		if cmd.IsActive() {
			active++
		}
	}
	total := len(e.live) + len(e.archive)
	e.mu.Unlock()

	log.Printf("executor: stats active=%d total=%d", active, total)
}

// ActiveCount returns the number of currently running cmds.
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, cmd := range e.live {
		if cmd.IsActive() {
			n++
		}
	}
	return n
}

// TotalCount returns the number of cmds ever registered (live + archived).
func (e *Executor) TotalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live) + len(e.archive)
}

// Cmd returns one cmd's snapshot by id, searching live then archived.
func (e *Executor) Cmd(cmdID string) (ordercmd.Snapshot, bool) {
	e.mu.Lock()
	cmd, ok := e.live[cmdID]
	if !ok {
		cmd, ok = e.archive[cmdID]
	}
	e.mu.Unlock()
	if !ok {
		return ordercmd.Snapshot{}, false
	}
	return cmd.Snapshot(), true
}

// Cmds returns a snapshot of every cmd this Executor has ever registered,
// live and archived, for admin/diagnostic surfaces. Callers never see the
// live *OrderCmd: only the Executor's own goroutines mutate it.
func (e *Executor) Cmds() []ordercmd.Snapshot {
	e.mu.Lock()
	cmds := make([]*ordercmd.OrderCmd, 0, len(e.live)+len(e.archive))
	for _, cmd := range e.live {
		cmds = append(cmds, cmd)
	}
	for _, cmd := range e.archive {
		cmds = append(cmds, cmd)
	}
	e.mu.Unlock()

	out := make([]ordercmd.Snapshot, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, cmd.Snapshot())
	}
	return out
}

// CmdsBySourceTag filters Cmds to those stamped with the given source_tag,
// e.g. "strategy:<id>", for get_strategy_order_cmds.
func (e *Executor) CmdsBySourceTag(tag string) []ordercmd.Snapshot {
	all := e.Cmds()
	out := make([]ordercmd.Snapshot, 0, len(all))
	for _, cmd := range all {
		if cmd.SourceTag == tag {
			out = append(out, cmd)
		}
	}
	return out
}
