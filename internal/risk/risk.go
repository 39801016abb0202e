// Package risk implements the per-account pre-trade checks a Trader runs
// before handing an order to the Gateway: a daily order/cancel cap and a
// per-order volume cap, both auto-resetting at local date rollover.
// Grounded on original_source/tests/unit/test_risk_control.py's
// RiskControl contract (max_daily_orders, max_daily_cancels,
// max_order_volume, check_order/check_cancel/on_order_inserted/
// on_order_cancelled/get_status), re-expressed with the
// RWMutex-guarded-config idiom the teacher uses in its own risk manager.
package risk

import (
	"fmt"
	"sync"
	"time"

	"qtrader/internal/model"
)

// Config bounds one account's daily trading activity.
type Config struct {
	MaxDailyOrders  int
	MaxDailyCancels int
	MaxOrderVolume  float64
}

// DefaultConfig mirrors the source's test fixture defaults.
func DefaultConfig() Config {
	return Config{
		MaxDailyOrders:  100,
		MaxDailyCancels: 50,
		MaxOrderVolume:  10,
	}
}

// Checker enforces Config against a running RiskCounters, resetting the
// counters whenever the local date advances.
type Checker struct {
	mu       sync.Mutex
	cfg      Config
	counters model.RiskCounters
}

// New creates a Checker with the given config and zeroed counters.
func New(cfg Config) *Checker {
	return &Checker{cfg: cfg}
}

func today() string {
	return time.Now().Format("2006-01-02")
}

// CheckOrder rejects volume in excess of the per-order cap or once the
// daily order cap is reached, returning a human-readable reason on
// rejection, which the Trader returns as the order_req error.
func (c *Checker) CheckOrder(volume float64) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.ResetIfNewDay(today())

	if volume > c.cfg.MaxOrderVolume {
		return false, fmt.Sprintf("order volume %.0f exceeds max_order_volume %.0f", volume, c.cfg.MaxOrderVolume)
	}
	if c.counters.DailyOrderCount >= c.cfg.MaxDailyOrders {
		return false, fmt.Sprintf("daily order count %d reached max_daily_orders %d", c.counters.DailyOrderCount, c.cfg.MaxDailyOrders)
	}
	return true, ""
}

// CheckCancel rejects once the daily cancel cap is reached.
func (c *Checker) CheckCancel() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.ResetIfNewDay(today())

	if c.counters.DailyCancelCount >= c.cfg.MaxDailyCancels {
		return false, fmt.Sprintf("daily cancel count %d reached max_daily_cancels %d", c.counters.DailyCancelCount, c.cfg.MaxDailyCancels)
	}
	return true, ""
}

// OnOrderInserted records one more order toward the daily cap.
func (c *Checker) OnOrderInserted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.ResetIfNewDay(today())
	c.counters.DailyOrderCount++
}

// OnOrderCancelled records one more cancel toward the daily cap.
func (c *Checker) OnOrderCancelled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.ResetIfNewDay(today())
	c.counters.DailyCancelCount++
}

// Status is a point-in-time snapshot for admin/diagnostic surfaces.
type Status struct {
	DailyOrderCount   int
	DailyCancelCount  int
	MaxDailyOrders    int
	MaxDailyCancels   int
	MaxOrderVolume    float64
	RemainingOrders   int
	RemainingCancels  int
}

// GetStatus returns a snapshot of the current counters against config.
func (c *Checker) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.ResetIfNewDay(today())

	return Status{
		DailyOrderCount:  c.counters.DailyOrderCount,
		DailyCancelCount: c.counters.DailyCancelCount,
		MaxDailyOrders:   c.cfg.MaxDailyOrders,
		MaxDailyCancels:  c.cfg.MaxDailyCancels,
		MaxOrderVolume:   c.cfg.MaxOrderVolume,
		RemainingOrders:  c.cfg.MaxDailyOrders - c.counters.DailyOrderCount,
		RemainingCancels: c.cfg.MaxDailyCancels - c.counters.DailyCancelCount,
	}
}
