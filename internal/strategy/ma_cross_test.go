package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
)

type fakeSubmitter struct {
	calls []ordercmd.Params
	ret   *ordercmd.OrderCmd
}

func (f *fakeSubmitter) Submit(strategyID string, p ordercmd.Params) *ordercmd.OrderCmd {
	f.calls = append(f.calls, p)
	return f.ret
}

func bar(close float64) model.Bar {
	return model.Bar{Symbol: "IF2509", Interval: model.IntervalM1, Close: close}
}

func TestMACrossOpensLongOnBullishCross(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewMACross("ma1", "IF2509", model.IntervalM1, 2, 4, 14, 5, sub)
	s.Enable(true)

	// A declining run keeps short MA below long MA, then a sharp rise
	// flips sma_short above sma_long.
	closes := []float64{100, 99, 98, 97, 96, 110, 120}
	for _, c := range closes {
		s.OnBar(bar(c))
	}

	require.NotEmpty(t, sub.calls)
	last := sub.calls[len(sub.calls)-1]
	require.Equal(t, model.DirectionBuy, last.Direction)
	require.Equal(t, model.OffsetOpen, last.Offset)
}

func TestMACrossDisabledStrategyIgnoresBars(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewMACross("ma1", "IF2509", model.IntervalM1, 2, 4, 14, 5, sub)

	for _, c := range []float64{100, 99, 98, 97, 96, 110, 120} {
		s.OnBar(bar(c))
	}

	require.Empty(t, sub.calls)
}

func TestMACrossUpdateParamsChangesVolume(t *testing.T) {
	s := NewMACross("ma1", "IF2509", model.IntervalM1, 2, 4, 14, 5, nil)
	s.UpdateParams(Params{"volume": 8})
	require.Equal(t, 8.0, s.GetParams()["volume"])
}
