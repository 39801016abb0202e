package trader

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtrader/internal/ipc"
	"qtrader/internal/model"
	"qtrader/internal/strategy"
	"qtrader/pkg/config"
)

func newTestTrader(t *testing.T, accountID string) (*Trader, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		AccountID:               accountID,
		SocketDir:               t.TempDir(),
		TickInterval:            100 * time.Millisecond,
		MaxDailyOrders:          100,
		MaxDailyCancels:         50,
		MaxOrderVolume:          10,
		OrderRateLimitPerSecond: 50,
		OrderRateLimitBurst:     50,
		HeartbeatInterval:       10 * time.Second,
		Language:                "en",
	}
	tr := New(cfg, nil)
	tr.RegisterStrategy(strategy.NewMACross("ma1", "IF2509", model.IntervalM1, 2, 4, 8, 1, tr.harness))
	return tr, cfg
}

func TestTraderStartStopLifecycle(t *testing.T) {
	tr, _ := newTestTrader(t, "acct-start-stop")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, tr.Start(ctx))
	tr.Stop()
}

func TestTraderPingRoundTripsOverIPC(t *testing.T) {
	tr, _ := newTestTrader(t, "acct-ping")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr.Start(ctx))
	defer tr.Stop()

	client, err := ipc.Dial(tr.sockPath, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	raw, err := client.Request(context.Background(), "ping", struct{}{}, time.Second)
	require.NoError(t, err)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.True(t, resp["pong"])
}

func TestTraderOrderReqSubmitsAndListsStrategies(t *testing.T) {
	tr, _ := newTestTrader(t, "acct-order")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr.Start(ctx))
	defer tr.Stop()

	client, err := ipc.Dial(tr.sockPath, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	raw, err := client.Request(context.Background(), "list_strategies", struct{}{}, time.Second)
	require.NoError(t, err)
	var strategies []StrategyStatus
	require.NoError(t, json.Unmarshal(raw, &strategies))
	require.Len(t, strategies, 1)
	require.Equal(t, "ma1", strategies[0].StrategyID)

	orderReq := struct {
		Symbol    string          `json:"symbol"`
		Direction model.Direction `json:"direction"`
		Offset    model.Offset    `json:"offset"`
		Volume    float64         `json:"volume"`
	}{"IF2509", model.DirectionBuy, model.OffsetOpen, 1}

	raw, err = client.Request(context.Background(), "order_req", orderReq, time.Second)
	require.NoError(t, err)
	var cmdID string
	require.NoError(t, json.Unmarshal(raw, &cmdID))
	require.NotEmpty(t, cmdID)
}

func TestTraderUnknownStrategyIDReturnsError(t *testing.T) {
	tr, _ := newTestTrader(t, "acct-unknown-strategy")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr.Start(ctx))
	defer tr.Stop()

	client, err := ipc.Dial(tr.sockPath, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	req := struct {
		StrategyID string `json:"strategy_id"`
	}{"bogus"}
	_, err = client.Request(context.Background(), "get_strategy", req, time.Second)
	require.Error(t, err)
}

func TestTraderSecondStartRefusesLivePID(t *testing.T) {
	tr1, cfg := newTestTrader(t, "acct-pid")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr1.Start(ctx))
	defer tr1.Stop()

	tr2 := New(cfg, nil)
	err := tr2.Start(ctx)
	require.Error(t, err)
}
