package strategy

import (
	"sync"
	"time"

	"qtrader/internal/indicators"
	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
)

// RSIReversion is a second reference strategy exercising the harness:
// it opens long when RSI drops below an oversold threshold and closes
// when RSI recovers above a neutral threshold, using a TWAP split so the
// harness also exercises ordercmd's TWAP scheduling path. Grounded on
// internal/indicators.RSI (teacher's demo RSI).
type RSIReversion struct {
	id       string
	symbol   string
	interval model.Interval
	sub      Submitter

	oversold int
	neutral  int

	mu      sync.Mutex
	enabled bool
	engine  *indicators.Engine
	holding bool
	volume  float64
}

// NewRSIReversion builds an RSIReversion strategy on symbol/interval
// bars with the given RSI period, oversold/neutral thresholds (0-100),
// and a fixed per-signal volume split over a TWAP window.
func NewRSIReversion(id, symbol string, interval model.Interval, rsiPeriod, oversold, neutral int, volume float64, sub Submitter) *RSIReversion {
	return &RSIReversion{
		id:       id,
		symbol:   symbol,
		interval: interval,
		sub:      sub,
		oversold: oversold,
		neutral:  neutral,
		engine:   indicators.NewEngine(rsiPeriod, rsiPeriod, rsiPeriod, rsiPeriod*2),
		volume:   volume,
	}
}

func (s *RSIReversion) ID() string               { return s.id }
func (s *RSIReversion) Symbol() string           { return s.symbol }
func (s *RSIReversion) Interval() model.Interval { return s.interval }

func (s *RSIReversion) Init(tradingDay string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holding = false
}

func (s *RSIReversion) OnTick(tick model.Tick) {}

func (s *RSIReversion) OnBar(bar model.Bar) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	values := s.engine.Update(s.symbol, bar.Close)
	rsi := values["rsi"]
	holding := s.holding
	s.mu.Unlock()

	if rsi == 0 {
		return
	}

	if !holding && rsi < float64(s.oversold) {
		s.submit(model.DirectionBuy, model.OffsetOpen, true)
	} else if holding && rsi > float64(s.neutral) {
		s.submit(model.DirectionSell, model.OffsetClose, false)
	}
}

func (s *RSIReversion) submit(direction model.Direction, offset model.Offset, nowHolding bool) {
	if s.sub == nil {
		return
	}
	cmd := s.sub.Submit(s.id, ordercmd.Params{
		Symbol:            s.symbol,
		Direction:         direction,
		Offset:            offset,
		TargetVolume:      s.volume,
		SplitStrategy:     ordercmd.SplitTWAP,
		MaxVolumePerOrder: s.volume / 3,
		TWAPDuration:      30 * time.Second,
		TotalTimeout:      time.Minute,
		OrderTimeout:      15 * time.Second,
	})
	if cmd != nil {
		s.mu.Lock()
		s.holding = nowHolding
		s.mu.Unlock()
	}
}

func (s *RSIReversion) OnOrder(order model.Order) {}
func (s *RSIReversion) OnTrade(trade model.Trade) {}

func (s *RSIReversion) Enable(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *RSIReversion) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *RSIReversion) GetParams() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Params{
		"volume":   s.volume,
		"oversold": float64(s.oversold),
		"neutral":  float64(s.neutral),
	}
}

func (s *RSIReversion) UpdateParams(p Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := p["volume"]; ok {
		s.volume = v
	}
	if v, ok := p["oversold"]; ok {
		s.oversold = int(v)
	}
	if v, ok := p["neutral"]; ok {
		s.neutral = int(v)
	}
}

var _ Strategy = (*RSIReversion)(nil)
