package risk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckOrderSucceedsWithinLimits(t *testing.T) {
	c := New(DefaultConfig())
	ok, reason := c.CheckOrder(5)
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestCheckOrderRejectsVolumeOverCap(t *testing.T) {
	c := New(DefaultConfig())
	ok, reason := c.CheckOrder(11)
	require.False(t, ok)
	require.NotEmpty(t, reason)
}

func TestCheckOrderAllowsExactCap(t *testing.T) {
	c := New(DefaultConfig())
	ok, _ := c.CheckOrder(10)
	require.True(t, ok)
}

func TestCheckOrderRejectsAtDailyCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDailyOrders = 3
	c := New(cfg)
	for i := 0; i < 3; i++ {
		ok, _ := c.CheckOrder(1)
		require.True(t, ok)
		c.OnOrderInserted()
	}
	ok, reason := c.CheckOrder(1)
	require.False(t, ok)
	require.NotEmpty(t, reason)
}

func TestCheckCancelRejectsAtDailyCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDailyCancels = 2
	c := New(cfg)
	for i := 0; i < 2; i++ {
		ok, _ := c.CheckCancel()
		require.True(t, ok)
		c.OnOrderCancelled()
	}
	ok, _ := c.CheckCancel()
	require.False(t, ok)
}

func TestGetStatusReportsRemaining(t *testing.T) {
	c := New(DefaultConfig())
	c.OnOrderInserted()
	c.OnOrderInserted()
	c.OnOrderCancelled()

	status := c.GetStatus()
	require.Equal(t, 2, status.DailyOrderCount)
	require.Equal(t, 1, status.DailyCancelCount)
	require.Equal(t, 98, status.RemainingOrders)
	require.Equal(t, 49, status.RemainingCancels)
}
