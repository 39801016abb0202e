package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"qtrader/internal/model"
)

func TestWSFeedGatewaySubscribeBeforeConnectIsBookkeptOnly(t *testing.T) {
	g := NewWSFeedGateway(model.Account{AccountID: "acct-1"}, true)

	require.NoError(t, g.Subscribe(context.Background(), []string{"btcusdt"}))
	require.False(t, g.Connected())

	quotes := g.Quotes()
	require.Len(t, quotes, 1)
	require.Equal(t, "btcusdt", quotes[0].Symbol)
}

func TestWSFeedGatewayDisconnectWithoutConnectIsNoop(t *testing.T) {
	g := NewWSFeedGateway(model.Account{AccountID: "acct-1"}, true)
	require.NoError(t, g.Disconnect(context.Background()))
	require.False(t, g.Connected())
}
