package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtrader/internal/eventbus"
	"qtrader/internal/gateway"
	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
)

func newTestHarness(t *testing.T) (*Executor, *gateway.MockGateway, *eventbus.Bus) {
	t.Helper()
	gw := gateway.NewMockGateway(model.Account{AccountID: "acct-1"}, map[string]float64{"IF2509": 100}, 0)
	bus := eventbus.New()
	bus.Start()
	t.Cleanup(bus.Stop)

	gw.RegisterCallbacks(gateway.Callbacks{
		OnOrder: func(o model.Order) { bus.Publish(eventbus.TopicOrderUpdate, o) },
		OnTrade: func(tr model.Trade) { bus.Publish(eventbus.TopicTradeCreated, tr) },
	})

	exec := New(gw, bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	exec.Start(ctx)
	t.Cleanup(exec.Stop)

	require.NoError(t, gw.Connect(ctx))
	require.NoError(t, gw.Subscribe(ctx, []string{"IF2509"}))
	return exec, gw, bus
}

func TestExecutorDrivesCmdToCompletion(t *testing.T) {
	exec, _, _ := newTestHarness(t)
	ctx := context.Background()

	cmd := ordercmd.New(ordercmd.Params{
		Symbol:            "IF2509",
		Direction:         model.DirectionBuy,
		Offset:            model.OffsetOpen,
		TargetVolume:      6,
		SplitStrategy:     ordercmd.SplitSimple,
		MaxVolumePerOrder: 3,
		TotalTimeout:      10 * time.Second,
		OrderTimeout:      5 * time.Second,
	})
	exec.Register(ctx, cmd)

	require.Eventually(t, func() bool {
		return cmd.IsFinished()
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, ordercmd.FinishAllCompleted, cmd.FinishReason())
	require.Equal(t, 6.0, cmd.FilledVolume())
	require.Equal(t, 1, exec.TotalCount())
}

func TestExecutorCloseCancelsActiveChild(t *testing.T) {
	// Deliberately does not wire the Gateway's order/trade callbacks onto
	// the bus, so the child order never reports a fill back to the cmd:
	// it stays pending until Close cancels it, avoiding a race against
	// MockGateway's own auto-fill goroutine.
	gw := gateway.NewMockGateway(model.Account{AccountID: "acct-1"}, map[string]float64{"IF2509": 100}, 0)
	bus := eventbus.New()
	bus.Start()
	t.Cleanup(bus.Stop)

	exec := New(gw, bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	exec.Start(ctx)
	t.Cleanup(exec.Stop)

	require.NoError(t, gw.Connect(ctx))
	require.NoError(t, gw.Subscribe(ctx, []string{"IF2509"}))

	cmd := ordercmd.New(ordercmd.Params{
		Symbol:            "IF2509",
		Direction:         model.DirectionSell,
		Offset:            model.OffsetClose,
		TargetVolume:      100,
		SplitStrategy:     ordercmd.SplitSimple,
		MaxVolumePerOrder: 100,
		TotalTimeout:      time.Minute,
		OrderTimeout:      time.Minute,
	})
	exec.Register(ctx, cmd)

	require.Eventually(t, func() bool {
		_, ok := cmd.ActiveChildOrderID()
		return ok
	}, time.Second, 5*time.Millisecond)

	require.True(t, exec.Close(ctx, cmd.CmdID))
	require.True(t, cmd.IsFinished())
	require.Equal(t, ordercmd.FinishCancelled, cmd.FinishReason())
}

// TestExecutorConcurrentOrderAndTradeEventsDoNotRace drives a cmd against a
// real MockGateway with both callbacks wired, so order.update and
// trade.created arrive on the eventbus's own per-topic goroutines at the
// same time the loop goroutine is ticking the same cmd. Run with -race to
// confirm OrderCmd's internal locking holds.
func TestExecutorConcurrentOrderAndTradeEventsDoNotRace(t *testing.T) {
	exec, _, _ := newTestHarness(t)
	ctx := context.Background()

	cmd := ordercmd.New(ordercmd.Params{
		Symbol:            "IF2509",
		Direction:         model.DirectionBuy,
		Offset:            model.OffsetOpen,
		TargetVolume:      30,
		SplitStrategy:     ordercmd.SplitSimple,
		MaxVolumePerOrder: 2,
		OrderInterval:     20 * time.Millisecond,
		TotalTimeout:      5 * time.Second,
		OrderTimeout:      time.Second,
	})
	exec.Register(ctx, cmd)

	require.Eventually(t, func() bool {
		return cmd.IsFinished()
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 30.0, cmd.FilledVolume())
}
