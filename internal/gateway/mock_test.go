package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtrader/internal/model"
)

func TestMockGatewayConnectIsIdempotent(t *testing.T) {
	g := NewMockGateway(model.Account{AccountID: "acct-1"}, map[string]float64{"IF2509": 100}, 0)
	ctx := context.Background()

	require.NoError(t, g.Connect(ctx))
	require.NoError(t, g.Connect(ctx))
	require.True(t, g.Connected())

	require.NoError(t, g.Disconnect(ctx))
	require.False(t, g.Connected())
}

func TestMockGatewaySendOrderFillsAndPublishesTrade(t *testing.T) {
	g := NewMockGateway(model.Account{AccountID: "acct-1"}, map[string]float64{"IF2509": 100}, 0)
	var gotTrade model.Trade
	done := make(chan struct{})
	g.RegisterCallbacks(Callbacks{
		OnTrade: func(tr model.Trade) {
			gotTrade = tr
			close(done)
		},
	})

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))
	require.NoError(t, g.Subscribe(ctx, []string{"IF2509"}))

	order, err := g.SendOrder(ctx, OrderRequest{Symbol: "IF2509", Direction: model.DirectionBuy, Offset: model.OffsetOpen, Volume: 2})
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, order.Status)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected trade callback")
	}
	require.Equal(t, order.OrderID, gotTrade.OrderID)
	require.Equal(t, 2.0, gotTrade.Volume)

	orders := g.Orders()
	require.Len(t, orders, 1)
	require.Equal(t, model.OrderStatusFinished, orders[0].Status)
}

func TestMockGatewaySubscribeIsIdempotent(t *testing.T) {
	g := NewMockGateway(model.Account{AccountID: "acct-1"}, map[string]float64{"IF2509": 100}, 0)
	ctx := context.Background()
	require.NoError(t, g.Subscribe(ctx, []string{"IF2509"}))
	require.NoError(t, g.Subscribe(ctx, []string{"IF2509"}))
	require.Len(t, g.Quotes(), 1)
}

func TestMockGatewayCancelUnknownOrderErrors(t *testing.T) {
	g := NewMockGateway(model.Account{AccountID: "acct-1"}, nil, 0)
	err := g.CancelOrder(context.Background(), "missing")
	require.Error(t, err)
}
