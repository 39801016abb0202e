package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
	"qtrader/internal/strategy"
	"qtrader/pkg/cache"
)

// StrategyStatus is the wire view of one registered strategy, for
// list_strategies/get_strategy.
type StrategyStatus struct {
	StrategyID    string          `json:"strategy_id"`
	Symbol        string          `json:"symbol"`
	Interval      model.Interval  `json:"interval"`
	Enabled       bool            `json:"enabled"`
	Params        strategy.Params `json:"params"`
	PosLong       float64         `json:"pos_long"`
	PosShort      float64         `json:"pos_short"`
	OpeningPaused bool            `json:"opening_paused"`
	ClosingPaused bool            `json:"closing_paused"`
}

func (t *Trader) strategyStatus(s strategy.Strategy) StrategyStatus {
	long, short, _ := t.harness.Positions(s.ID())
	opening, closing, _ := t.harness.PauseStatus(s.ID())
	return StrategyStatus{
		StrategyID:    s.ID(),
		Symbol:        s.Symbol(),
		Interval:      s.Interval(),
		Enabled:       s.Enabled(),
		Params:        s.GetParams(),
		PosLong:       long,
		PosShort:      short,
		OpeningPaused: opening,
		ClosingPaused: closing,
	}
}

// OrderCmdView is the wire view of one OrderCmd, for get_strategy_order_cmds.
type OrderCmdView struct {
	CmdID        string          `json:"cmd_id"`
	Symbol       string          `json:"symbol"`
	Direction    model.Direction `json:"direction"`
	Offset       model.Offset    `json:"offset"`
	TargetVolume float64         `json:"target_volume"`
	FilledVolume float64         `json:"filled_volume"`
	FilledPrice  float64         `json:"filled_price"`
	Status       ordercmd.Status `json:"status"`
	FinishReason string          `json:"finish_reason"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

func cmdView(cmd ordercmd.Snapshot) OrderCmdView {
	return OrderCmdView{
		CmdID:        cmd.CmdID,
		Symbol:       cmd.Symbol,
		Direction:    cmd.Direction,
		Offset:       cmd.Offset,
		TargetVolume: cmd.TargetVolume,
		FilledVolume: cmd.FilledVolume,
		FilledPrice:  cmd.FilledPrice,
		Status:       cmd.Status,
		FinishReason: cmd.FinishReason,
		RetryCount:   cmd.RetryCount,
		CreatedAt:    cmd.CreatedAt,
		FinishedAt:   cmd.FinishedAt,
	}
}

// Job is a diagnostic snapshot of one background task the Trader runs,
// for get_jobs.
type Job struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type okMsg struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func successResult(msg string) (any, error) { return okMsg{Success: true, Message: msg}, nil }

// registerHandlers wires the full §6.3 request catalog onto the IPC
// server's handler registry.
func (t *Trader) registerHandlers() {
	s := t.server

	s.RegisterHandler("ping", func(json.RawMessage) (any, error) {
		return map[string]bool{"pong": true}, nil
	})

	s.RegisterHandler("connect_gateway", func(json.RawMessage) (any, error) {
		return true, t.gw.Connect(context.Background())
	})
	s.RegisterHandler("disconnect_gateway", func(json.RawMessage) (any, error) {
		return true, t.gw.Disconnect(context.Background())
	})
	s.RegisterHandler("pause_trading", func(json.RawMessage) (any, error) {
		t.pauseMu.Lock()
		t.paused = true
		t.pauseMu.Unlock()
		return true, nil
	})
	s.RegisterHandler("resume_trading", func(json.RawMessage) (any, error) {
		t.pauseMu.Lock()
		t.paused = false
		t.pauseMu.Unlock()
		return true, nil
	})

	type symbolsReq struct {
		Symbols []string `json:"symbols"`
	}
	s.RegisterHandler("subscribe", func(data json.RawMessage) (any, error) {
		var req symbolsReq
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return true, t.gw.Subscribe(context.Background(), req.Symbols)
	})
	s.RegisterHandler("unsubscribe", func(data json.RawMessage) (any, error) {
		// Gateway exposes no unsubscribe capability (subscribe is
		// idempotent-forever per spec.md §7.7); accepted for wire
		// compatibility but a no-op against the upstream feed.
		return true, nil
	})

	s.RegisterHandler("get_account", func(json.RawMessage) (any, error) {
		return t.gw.Account(), nil
	})
	s.RegisterHandler("get_order", func(data json.RawMessage) (any, error) {
		var req struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		for _, o := range t.gw.Orders() {
			if o.OrderID == req.OrderID {
				return o, nil
			}
		}
		return nil, nil
	})
	s.RegisterHandler("get_orders", func(json.RawMessage) (any, error) {
		if t.journal != nil {
			if orders, err := t.journal.Orders(context.Background()); err == nil {
				return orders, nil
			}
		}
		return t.gw.Orders(), nil
	})
	s.RegisterHandler("get_active_orders", func(json.RawMessage) (any, error) {
		var active []model.Order
		for _, o := range t.gw.Orders() {
			if o.IsActive() {
				active = append(active, o)
			}
		}
		return active, nil
	})
	s.RegisterHandler("get_trade", func(data json.RawMessage) (any, error) {
		var req struct {
			TradeID string `json:"trade_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		for _, tr := range t.gw.Trades() {
			if tr.TradeID == req.TradeID {
				return tr, nil
			}
		}
		return nil, nil
	})
	s.RegisterHandler("get_trades", func(json.RawMessage) (any, error) {
		if t.journal != nil {
			if trades, err := t.journal.Trades(context.Background()); err == nil {
				return trades, nil
			}
		}
		return t.gw.Trades(), nil
	})
	s.RegisterHandler("get_positions", func(json.RawMessage) (any, error) {
		return t.gw.Positions(), nil
	})
	s.RegisterHandler("get_quotes", func(json.RawMessage) (any, error) {
		return t.gw.Quotes(), nil
	})
	s.RegisterHandler("get_jobs", func(json.RawMessage) (any, error) {
		jobs := []Job{
			{Name: "executor_loop", Status: "running"},
			{Name: "gateway_connect", Status: t.gatewayJobStatus()},
			{Name: "ipc_heartbeat", Status: "running"},
		}
		if statter, ok := t.gw.(interface{ PriceCacheStats() cache.CacheStats }); ok {
			stats := statter.PriceCacheStats()
			jobs = append(jobs, Job{
				Name:   "price_cache",
				Status: fmt.Sprintf("%d symbols cached", stats.TotalItems),
			})
		}
		return jobs, nil
	})

	type orderReq struct {
		Symbol    string          `json:"symbol"`
		Direction model.Direction `json:"direction"`
		Offset    model.Offset    `json:"offset"`
		Volume    float64         `json:"volume"`
		Price     *float64        `json:"price"`
	}
	s.RegisterHandler("order_req", func(data json.RawMessage) (any, error) {
		var req orderReq
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		cmd, err := t.submitOrder(req.Symbol, req.Direction, req.Offset, req.Volume, req.Price)
		if err != nil {
			return nil, err
		}
		return cmd.CmdID, nil
	})
	s.RegisterHandler("cancel_req", func(data json.RawMessage) (any, error) {
		var req struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return t.cancelOrder(req.OrderID)
	})

	s.RegisterHandler("list_strategies", func(json.RawMessage) (any, error) {
		out := make([]StrategyStatus, 0)
		for _, st := range t.harness.List() {
			out = append(out, t.strategyStatus(st))
		}
		return out, nil
	})
	s.RegisterHandler("get_strategy", t.withStrategyID(func(st strategy.Strategy, _ json.RawMessage) (any, error) {
		return t.strategyStatus(st), nil
	}))
	s.RegisterHandler("start_strategy", t.withStrategyID(func(st strategy.Strategy, _ json.RawMessage) (any, error) {
		return t.harness.SetEnabled(st.ID(), true), nil
	}))
	s.RegisterHandler("stop_strategy", t.withStrategyID(func(st strategy.Strategy, _ json.RawMessage) (any, error) {
		return t.harness.SetEnabled(st.ID(), false), nil
	}))
	s.RegisterHandler("enable_strategy", t.withStrategyID(func(st strategy.Strategy, _ json.RawMessage) (any, error) {
		t.harness.SetEnabled(st.ID(), true)
		return successResult("enabled")
	}))
	s.RegisterHandler("disable_strategy", t.withStrategyID(func(st strategy.Strategy, _ json.RawMessage) (any, error) {
		t.harness.SetEnabled(st.ID(), false)
		return successResult("disabled")
	}))
	s.RegisterHandler("start_all_strategies", func(json.RawMessage) (any, error) {
		t.harness.SetAllEnabled(true)
		return true, nil
	})
	s.RegisterHandler("stop_all_strategies", func(json.RawMessage) (any, error) {
		t.harness.SetAllEnabled(false)
		return true, nil
	})
	s.RegisterHandler("init_strategy", t.withStrategyID(func(st strategy.Strategy, _ json.RawMessage) (any, error) {
		st.Init(t.gw.GetTradingDay(time.Now()))
		return successResult("initialized")
	}))
	s.RegisterHandler("reload_strategy_params", t.withStrategyID(func(st strategy.Strategy, _ json.RawMessage) (any, error) {
		st.UpdateParams(st.GetParams())
		return successResult("reloaded")
	}))
	s.RegisterHandler("update_strategy_params", t.withStrategyID(func(st strategy.Strategy, data json.RawMessage) (any, error) {
		var req struct {
			Params strategy.Params `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		t.harness.UpdateParams(st.ID(), req.Params)
		return successResult("params updated")
	}))
	s.RegisterHandler("update_strategy_signal", t.withStrategyID(func(st strategy.Strategy, data json.RawMessage) (any, error) {
		// Signals are an external-feed concept the reference strategies
		// don't consume (they derive signals from bars); accepted for
		// wire compatibility only.
		return successResult("signal accepted")
	}))
	s.RegisterHandler("set_strategy_trading_status", t.withStrategyID(func(st strategy.Strategy, data json.RawMessage) (any, error) {
		var req struct {
			Status struct {
				OpeningPaused *bool `json:"opening_paused"`
				ClosingPaused *bool `json:"closing_paused"`
			} `json:"status"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		opening, closing, _ := t.harness.PauseStatus(st.ID())
		if req.Status.OpeningPaused != nil {
			opening = *req.Status.OpeningPaused
		}
		if req.Status.ClosingPaused != nil {
			closing = *req.Status.ClosingPaused
		}
		if !opening && !closing {
			t.harness.ResumeTrading(st.ID())
		}
		return struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
			Data    any    `json:"data"`
		}{true, "status updated", t.strategyStatus(st)}, nil
	}))
	s.RegisterHandler("get_strategy_order_cmds", t.withStrategyID(func(st strategy.Strategy, data json.RawMessage) (any, error) {
		var req struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(data, &req)
		cmds := t.exec.CmdsBySourceTag(fmt.Sprintf("strategy:%s", st.ID()))
		out := make([]OrderCmdView, 0, len(cmds))
		for _, cmd := range cmds {
			if req.Status != "" && string(cmd.Status) != req.Status {
				continue
			}
			out = append(out, cmdView(cmd))
		}
		return out, nil
	}))

	t.registerSystemParamHandlers()
}

// withStrategyID decodes {strategy_id} from the request, looks it up in
// the harness, and calls fn with the resolved Strategy, or fails the
// request with a clear error if the id is unknown.
func (t *Trader) withStrategyID(fn func(st strategy.Strategy, data json.RawMessage) (any, error)) func(json.RawMessage) (any, error) {
	return func(data json.RawMessage) (any, error) {
		var req struct {
			StrategyID string `json:"strategy_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		st, ok := t.harness.Get(req.StrategyID)
		if !ok {
			return nil, fmt.Errorf("unknown strategy_id %q", req.StrategyID)
		}
		return fn(st, data)
	}
}

func (t *Trader) gatewayJobStatus() string {
	if t.gw.Connected() {
		return "connected"
	}
	return "connecting"
}

func (t *Trader) registerSystemParamHandlers() {
	s := t.server
	s.RegisterHandler("list_system_params", func(json.RawMessage) (any, error) {
		t.paramsMu.Lock()
		defer t.paramsMu.Unlock()
		out := make(map[string]string, len(t.params))
		for k, v := range t.params {
			out[k] = v
		}
		return out, nil
	})
	s.RegisterHandler("get_system_param", func(data json.RawMessage) (any, error) {
		var req struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		t.paramsMu.Lock()
		v, ok := t.params[req.Key]
		t.paramsMu.Unlock()
		if !ok {
			return nil, nil
		}
		return v, nil
	})
	s.RegisterHandler("update_system_param", func(data json.RawMessage) (any, error) {
		var req struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		t.paramsMu.Lock()
		t.params[req.Key] = req.Value
		t.paramsMu.Unlock()
		return true, nil
	})
	s.RegisterHandler("get_system_params_by_group", func(data json.RawMessage) (any, error) {
		var req struct {
			Group string `json:"group"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		prefix := req.Group + "."
		t.paramsMu.Lock()
		defer t.paramsMu.Unlock()
		out := make(map[string]string)
		for k, v := range t.params {
			if len(k) > len(prefix) && k[:len(prefix)] == prefix {
				out[k] = v
			}
		}
		return out, nil
	})
}
