package risk

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles one account's order_req/cancel_req RPC rate with a
// token-bucket, completing the x/time dependency wiring the teacher's
// go.mod already declares but never exercises (its own rate-limiting is
// a hand-rolled counter; other pack repos use x/time/rate directly for
// this exact concern).
type Limiter struct {
	orders  *rate.Limiter
	cancels *rate.Limiter
}

// NewLimiter builds a Limiter allowing ordersPerSecond (burst
// ordersBurst) for order submission, and the same rate for cancellation.
func NewLimiter(ordersPerSecond int, ordersBurst int) *Limiter {
	return &Limiter{
		orders:  rate.NewLimiter(rate.Limit(ordersPerSecond), ordersBurst),
		cancels: rate.NewLimiter(rate.Limit(ordersPerSecond), ordersBurst),
	}
}

// AllowOrder reports whether an order_req may proceed right now without
// blocking, consuming a token if so.
func (l *Limiter) AllowOrder() bool {
	return l.orders.Allow()
}

// AllowCancel reports whether a cancel_req may proceed right now without
// blocking, consuming a token if so.
func (l *Limiter) AllowCancel() bool {
	return l.cancels.Allow()
}

// WaitOrder blocks until an order_req token is available or ctx is done.
func (l *Limiter) WaitOrder(ctx context.Context) error {
	return l.orders.Wait(ctx)
}
