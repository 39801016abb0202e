package strategy

import (
	"sync"
	"time"

	"qtrader/internal/indicators"
	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
)

// MACross is a reference strategy exercising the harness: it opens long
// on a short-MA/long-MA bullish cross and closes on a bearish cross.
// Grounded on the teacher's internal/indicators.Engine (SMA/RSI/window),
// reworked from a standalone demo into a Strategy the Harness can drive.
type MACross struct {
	id       string
	symbol   string
	interval model.Interval
	sub      Submitter

	mu       sync.Mutex
	enabled  bool
	engine   *indicators.Engine
	lastDiff float64 // sma_short - sma_long from the previous bar, 0 until warmed up
	volume   float64
}

// NewMACross builds an MACross strategy trading symbol on interval bars
// with the given short/long/rsi windows and a fixed per-signal volume.
func NewMACross(id, symbol string, interval model.Interval, shortMA, longMA, rsiPeriod int, volume float64, sub Submitter) *MACross {
	return &MACross{
		id:       id,
		symbol:   symbol,
		interval: interval,
		sub:      sub,
		engine:   indicators.NewEngine(shortMA, longMA, rsiPeriod, longMA*2),
		volume:   volume,
	}
}

func (s *MACross) ID() string              { return s.id }
func (s *MACross) Symbol() string          { return s.symbol }
func (s *MACross) Interval() model.Interval { return s.interval }

func (s *MACross) Init(tradingDay string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDiff = 0
}

func (s *MACross) OnTick(tick model.Tick) {}

// OnBar updates the indicator engine and submits an open/close intent on
// a sign change of (sma_short - sma_long).
func (s *MACross) OnBar(bar model.Bar) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	values := s.engine.Update(s.symbol, bar.Close)
	diff := values["sma_short"] - values["sma_long"]
	prev := s.lastDiff
	if values["sma_short"] != 0 && values["sma_long"] != 0 {
		s.lastDiff = diff
	}
	s.mu.Unlock()

	if prev == 0 || values["sma_short"] == 0 || values["sma_long"] == 0 {
		return
	}

	switch {
	case prev <= 0 && diff > 0:
		s.submit(model.DirectionBuy, model.OffsetOpen)
	case prev >= 0 && diff < 0:
		s.submit(model.DirectionSell, model.OffsetClose)
	}
}

func (s *MACross) submit(direction model.Direction, offset model.Offset) {
	if s.sub == nil {
		return
	}
	s.sub.Submit(s.id, ordercmd.Params{
		Symbol:            s.symbol,
		Direction:         direction,
		Offset:            offset,
		TargetVolume:      s.volume,
		SplitStrategy:     ordercmd.SplitSimple,
		MaxVolumePerOrder: s.volume,
		TotalTimeout:      time.Minute,
		OrderTimeout:      15 * time.Second,
	})
}

func (s *MACross) OnOrder(order model.Order) {}
func (s *MACross) OnTrade(trade model.Trade) {}

func (s *MACross) Enable(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *MACross) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *MACross) GetParams() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Params{"volume": s.volume}
}

func (s *MACross) UpdateParams(p Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := p["volume"]; ok {
		s.volume = v
	}
}

var _ Strategy = (*MACross)(nil)
