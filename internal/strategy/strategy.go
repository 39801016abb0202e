// Package strategy defines the capability contract user strategies
// implement and the harness that dispatches market/order/trade events to
// them, grounded on the §6.2 Strategy capability and the teacher's
// indicator engine (internal/indicators) for the two reference
// strategies exercising the harness.
package strategy

import (
	"qtrader/internal/model"
	"qtrader/internal/ordercmd"
)

// Params is a strategy's runtime-tunable parameter bag. Concrete
// strategies expose their own typed record through GetParams/UpdateParams
// rather than reflective field access, per the systems-language
// re-architecture of the source's attribute-bag configs.
type Params map[string]float64

// Strategy is the capability a harness drives. init/on_tick/on_bar are
// the only methods permitted to submit OrderCmds (via the Submitter each
// strategy is constructed with); on_order/on_trade are observation-only.
type Strategy interface {
	ID() string
	Symbol() string
	Interval() model.Interval

	Init(tradingDay string)
	OnTick(tick model.Tick)
	OnBar(bar model.Bar)
	OnOrder(order model.Order)
	OnTrade(trade model.Trade)

	Enable(enabled bool)
	Enabled() bool

	GetParams() Params
	UpdateParams(p Params)
}

// Submitter is how a strategy hands a compound order intent to the
// harness, which stamps it with source_tag and enforces pause flags
// before registering it with the Executor.
type Submitter interface {
	Submit(strategyID string, params ordercmd.Params) *ordercmd.OrderCmd
}
