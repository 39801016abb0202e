// Package trader assembles one account's full runtime: event bus, Gateway,
// risk checks, Executor, strategy harness, and IPC server, wired together
// per the startup/shutdown sequence and request catalog the teacher's own
// main.go/internal/api assembly follows (service construction in one
// place, handlers registered by name against a shared registry), re-
// targeted from an HTTP/gin router to the IPC request-type dispatch.
package trader

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"qtrader/internal/bar"
	"qtrader/internal/eventbus"
	"qtrader/internal/executor"
	"qtrader/internal/gateway"
	"qtrader/internal/ipc"
	"qtrader/internal/journal"
	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
	"qtrader/internal/risk"
	"qtrader/internal/strategy"
	"qtrader/pkg/config"
	"qtrader/pkg/i18n"
	"qtrader/pkg/procutil"
)

// barIntervals lists every interval the Trader resamples ticks into.
// Strategies subscribe to whichever of these their Interval() names.
var barIntervals = []model.Interval{model.IntervalM1, model.IntervalM5}

// Trader owns one account's full in-process runtime.
type Trader struct {
	cfg *config.Config

	bus      *eventbus.Bus
	gw       gateway.Gateway
	bars     *bar.Aggregator
	riskChk  *risk.Checker
	limiter  *risk.Limiter
	exec     *executor.Executor
	harness  *strategy.Harness
	server   *ipc.Server
	journal  *journal.Journal
	pidPath  string
	sockPath string

	paramsMu sync.Mutex
	params   map[string]string

	pauseMu sync.Mutex
	paused  bool

	stopped chan struct{}
}

// New assembles a Trader's runtime from cfg without starting anything.
// gw may be nil, in which case a MockGateway seeded with a flat account is
// used (spec.md's Non-goals exclude a real brokerage SDK).
func New(cfg *config.Config, gw gateway.Gateway) *Trader {
	i18n.SetLanguage(i18n.Language(cfg.Language))

	bus := eventbus.New()

	if gw == nil {
		gw = gateway.NewMockGateway(model.Account{
			AccountID: cfg.AccountID,
			Balance:   100000,
			Available: 100000,
			Currency:  "CNY",
		}, map[string]float64{"IF2509": 4000, "IC2509": 5800}, 0)
	}

	t := &Trader{
		cfg:      cfg,
		bus:      bus,
		gw:       gw,
		bars:     bar.New(bar.DefaultAnchor, bus),
		riskChk:  risk.New(risk.Config{MaxDailyOrders: cfg.MaxDailyOrders, MaxDailyCancels: cfg.MaxDailyCancels, MaxOrderVolume: cfg.MaxOrderVolume}),
		limiter:  risk.NewLimiter(cfg.OrderRateLimitPerSecond, cfg.OrderRateLimitBurst),
		pidPath:  procutil.PidFilePath(cfg.SocketDir, cfg.AccountID),
		sockPath: procutil.SocketPath(cfg.SocketDir, cfg.AccountID),
		params:   make(map[string]string),
		stopped:  make(chan struct{}),
	}
	t.exec = executor.New(gw, bus, t.isPaused)
	t.harness = strategy.New(bus, t.exec)

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			log.Printf("trader[%s]: journal disabled: %v", cfg.AccountID, err)
		} else {
			t.journal = j
		}
	}
	return t
}

func (t *Trader) isPaused() bool {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	return t.paused
}

// RegisterStrategy adds s to the harness before Start.
func (t *Trader) RegisterStrategy(s strategy.Strategy) {
	t.harness.Register(s)
}

// Harness exposes the strategy harness so callers can build reference
// strategies against it (strategy.Submitter) before registering them.
func (t *Trader) Harness() *strategy.Harness {
	return t.harness
}

// Run executes the full startup sequence, blocks until a SIGTERM/SIGINT
// or ctx cancellation, then runs the shutdown sequence. It returns the
// signal-driven stop as a nil error; only setup failures are returned.
func (t *Trader) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	defer t.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Printf("trader[%s]: received %s, shutting down", t.cfg.AccountID, sig)
	case <-ctx.Done():
	case <-t.stopped:
	}
	return nil
}

// Start runs the spec's eight-step startup sequence: PID file, stores,
// event bus, Gateway + callbacks, Executor/harness, IPC server, Gateway
// connect in the background, heartbeat task (owned by the IPC server).
func (t *Trader) Start(ctx context.Context) error {
	if err := os.MkdirAll(t.cfg.SocketDir, 0o755); err != nil {
		return fmt.Errorf("trader: create socket dir: %w", err)
	}
	if err := procutil.AcquireOrReap(t.pidPath); err != nil {
		return fmt.Errorf("trader: %w", err)
	}
	if err := procutil.WritePidFile(t.pidPath); err != nil {
		return fmt.Errorf("trader: write pid file: %w", err)
	}

	log.Printf("%s account=%s", i18n.M().Starting, t.cfg.AccountID)

	t.bus.Start()

	t.gw.RegisterCallbacks(gateway.Callbacks{
		OnTick:     t.onTick,
		OnOrder:    t.onOrder,
		OnTrade:    t.onTrade,
		OnPosition: func(p model.Position) { t.bus.Publish(eventbus.TopicPositionUpdate, p) },
		OnAccount:  func(a model.Account) { t.bus.Publish(eventbus.TopicAccountUpdate, a) },
	})

	t.exec.Start(ctx)
	t.harness.Start()
	t.harness.Init(t.gw.GetTradingDay(time.Now()))

	srv, err := ipc.NewServer(t.sockPath, t.bus)
	if err != nil {
		_ = procutil.RemovePidFile(t.pidPath)
		return fmt.Errorf("trader: %w", err)
	}
	t.server = srv
	t.registerHandlers()
	t.server.Serve(ctx)

	go func() {
		if err := t.gw.Connect(ctx); err != nil {
			log.Printf("trader[%s]: gateway connect failed: %v", t.cfg.AccountID, err)
		}
	}()

	return nil
}

func (t *Trader) onTick(tick model.Tick) {
	t.bus.Publish(eventbus.TopicTickUpdate, tick)
	t.bars.OnTick(tick, barIntervals)
}

func (t *Trader) onOrder(o model.Order) {
	t.bus.Publish(eventbus.TopicOrderUpdate, o)
	if t.journal == nil {
		return
	}
	if err := t.journal.RecordOrder(context.Background(), o); err != nil {
		log.Printf("trader[%s]: journal record order: %v", t.cfg.AccountID, err)
	}
}

func (t *Trader) onTrade(tr model.Trade) {
	t.bus.Publish(eventbus.TopicTradeCreated, tr)
	if t.journal == nil {
		return
	}
	if err := t.journal.RecordTrade(context.Background(), tr); err != nil {
		log.Printf("trader[%s]: journal record trade: %v", t.cfg.AccountID, err)
	}
}

// Stop runs the shutdown sequence in spec order: stop accepting IPC
// requests, stop the Executor, stop strategies, disconnect the Gateway,
// stop the bus, remove the PID/socket files.
func (t *Trader) Stop() {
	select {
	case <-t.stopped:
		return
	default:
		close(t.stopped)
	}

	if t.server != nil {
		_ = t.server.Close()
	}
	t.exec.Stop()
	t.harness.SetAllEnabled(false)
	if err := t.gw.Disconnect(context.Background()); err != nil {
		log.Printf("trader[%s]: gateway disconnect: %v", t.cfg.AccountID, err)
	}
	t.bus.Stop()
	if err := t.journal.Close(); err != nil {
		log.Printf("trader[%s]: journal close: %v", t.cfg.AccountID, err)
	}
	_ = procutil.RemovePidFile(t.pidPath)

	log.Printf("%s account=%s", i18n.M().ShuttingDown, t.cfg.AccountID)
}

// submitOrder runs risk checks, rate limiting, and direct (non-strategy)
// submission for the order_req handler: single-shot cmds with no split,
// matching the original's "manual order" path distinct from strategy-
// submitted compound intents.
func (t *Trader) submitOrder(symbol string, direction model.Direction, offset model.Offset, volume float64, price *float64) (*ordercmd.OrderCmd, error) {
	if !t.limiter.AllowOrder() {
		return nil, fmt.Errorf("order_req rate limit exceeded")
	}
	if ok, reason := t.riskChk.CheckOrder(volume); !ok {
		return nil, fmt.Errorf("%s", reason)
	}
	cmd := ordercmd.New(ordercmd.Params{
		Symbol:            symbol,
		Direction:         direction,
		Offset:            offset,
		TargetVolume:      volume,
		LimitPrice:        price,
		SourceTag:         "manual",
		SplitStrategy:     ordercmd.SplitSimple,
		MaxVolumePerOrder: volume,
	})
	t.exec.Register(context.Background(), cmd)
	t.riskChk.OnOrderInserted()
	return cmd, nil
}

func (t *Trader) cancelOrder(orderID string) (bool, error) {
	if !t.limiter.AllowCancel() {
		return false, fmt.Errorf("cancel_req rate limit exceeded")
	}
	if ok, reason := t.riskChk.CheckCancel(); !ok {
		return false, fmt.Errorf("%s", reason)
	}
	if err := t.gw.CancelOrder(context.Background(), orderID); err != nil {
		return false, err
	}
	t.riskChk.OnOrderCancelled()
	return true, nil
}
