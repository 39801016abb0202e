package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtrader/internal/model"
)

func TestJournalRecordAndReadOrdersAndTrades(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	now := time.Now()

	order := model.Order{
		OrderID:        "o1",
		Symbol:         "IF2509",
		Direction:      model.DirectionBuy,
		Offset:         model.OffsetOpen,
		VolumeOriginal: 2,
		VolumeTraded:   0,
		Status:         model.OrderStatusPending,
		InsertTime:     now,
		UpdateTime:     now,
	}
	require.NoError(t, j.RecordOrder(ctx, order))

	order.VolumeTraded = 2
	order.Status = model.OrderStatusFinished
	order.UpdateTime = now.Add(time.Second)
	require.NoError(t, j.RecordOrder(ctx, order))

	trade := model.Trade{
		TradeID:   "t1",
		OrderID:   "o1",
		Symbol:    "IF2509",
		Direction: model.DirectionBuy,
		Offset:    model.OffsetOpen,
		Price:     4000,
		Volume:    2,
		TradeTime: now,
	}
	require.NoError(t, j.RecordTrade(ctx, trade))
	require.NoError(t, j.RecordTrade(ctx, trade)) // duplicate trade_id is a no-op

	orders, err := j.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, model.OrderStatusFinished, orders[0].Status)
	require.Equal(t, 2.0, orders[0].VolumeTraded)

	trades, err := j.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, 4000.0, trades[0].Price)
}

func TestJournalOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}
