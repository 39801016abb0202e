package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
)

func TestRSIReversionOpensOnOversoldThenClosesOnRecovery(t *testing.T) {
	sub := &fakeSubmitter{ret: ordercmd.New(ordercmd.Params{Symbol: "IF2509", TargetVolume: 3})}
	s := NewRSIReversion("rsi1", "IF2509", model.IntervalM1, 3, 30, 55, 3, sub)
	s.Enable(true)

	// A decline with a brief uptick keeps RSI low but nonzero (a pure
	// monotonic decline yields a zero-loss-free RSI of exactly 0, which
	// this strategy treats as "not yet computed" rather than "maximally
	// oversold").
	for _, c := range []float64{102, 101, 100, 99, 99.5, 99} {
		s.OnBar(bar(c))
	}
	require.Len(t, sub.calls, 1)
	require.Equal(t, model.DirectionBuy, sub.calls[0].Direction)
	require.Equal(t, model.OffsetOpen, sub.calls[0].Offset)
	require.Equal(t, ordercmd.SplitTWAP, sub.calls[0].SplitStrategy)

	// A sustained rally drives RSI back up past the neutral threshold,
	// closing the position.
	for _, c := range []float64{100, 102, 104, 106, 108, 110} {
		s.OnBar(bar(c))
	}
	require.Len(t, sub.calls, 2)
	require.Equal(t, model.DirectionSell, sub.calls[1].Direction)
	require.Equal(t, model.OffsetClose, sub.calls[1].Offset)
}

func TestRSIReversionNilSubmitResultLeavesHoldingFalse(t *testing.T) {
	sub := &fakeSubmitter{ret: nil}
	s := NewRSIReversion("rsi1", "IF2509", model.IntervalM1, 3, 30, 55, 3, sub)
	s.Enable(true)

	for _, c := range []float64{102, 101, 100, 99, 99.5, 99} {
		s.OnBar(bar(c))
	}
	require.NotEmpty(t, sub.calls)
	require.False(t, s.holding)
}

func TestRSIReversionUpdateParamsChangesThresholds(t *testing.T) {
	s := NewRSIReversion("rsi1", "IF2509", model.IntervalM1, 3, 30, 55, 3, nil)
	s.UpdateParams(Params{"oversold": 25, "neutral": 60})
	p := s.GetParams()
	require.Equal(t, 25.0, p["oversold"])
	require.Equal(t, 60.0, p["neutral"])
}
