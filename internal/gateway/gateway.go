// Package gateway defines the capability contract a Trader process consumes
// from its upstream brokerage connection, plus a mock implementation for
// tests and local runs. The upstream protocol client itself is out of
// scope; this package only fixes the shape the rest of the Trader codes
// against, grounded on the consumed-capability Gateway interface in
// pkg/exchanges/common/gateway.go, generalized from the two-method
// order-only contract to the full connect/subscribe/snapshot surface a
// Trader needs.
package gateway

import (
	"context"
	"time"

	"qtrader/internal/model"
)

// OrderRequest is a send_order intent. A nil Price means market: the
// gateway substitutes the opposing best quote.
type OrderRequest struct {
	Symbol    string
	Direction model.Direction
	Offset    model.Offset
	Volume    float64
	Price     *float64
}

// Callbacks are registered once by the Trader; the Gateway invokes the
// non-nil ones on every change and deduplicates no-op updates itself.
type Callbacks struct {
	OnTick     func(model.Tick)
	OnOrder    func(model.Order)
	OnTrade    func(model.Trade)
	OnPosition func(model.Position)
	OnAccount  func(model.Account)
	OnContract func(symbol string)
}

// Gateway is the upstream brokerage capability a Trader drives. Every
// operation is safe to call from the cooperative loop goroutine; the
// concrete implementation owns whatever background I/O thread talks to
// the real venue.
type Gateway interface {
	// Connect and Disconnect are idempotent and asynchronous: the call
	// returns once the attempt has been scheduled, not once it settles.
	// Settlement is reported via account.status on the event bus.
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool

	// Subscribe is idempotent per symbol: a repeated call for an
	// already-subscribed symbol emits no extra gateway traffic.
	Subscribe(ctx context.Context, symbols []string) error
	SubscribeBars(ctx context.Context, symbol string, interval model.Interval) error

	SendOrder(ctx context.Context, req OrderRequest) (model.Order, error)
	CancelOrder(ctx context.Context, orderID string) error

	Account() model.Account
	Positions() []model.Position
	Orders() []model.Order
	Trades() []model.Trade
	Quotes() []model.Tick
	Contracts() []string

	// GetTradingDay returns "YYYYMMDD" for the current trading session.
	// After 20:00 local, the next non-weekend calendar day is returned.
	GetTradingDay(now time.Time) string

	RegisterCallbacks(cb Callbacks)
}
