package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"qtrader/internal/model"
)

// MockGateway is a random-walk tick generator standing in for a real
// brokerage connection, grounded on the teacher's ticker-driven background
// loop idiom (pkg/market/binance/websocket.go's SubscribeKlines goroutine)
// generalized from one websocket read loop to a per-symbol quote
// simulator plus an in-memory order book.
type MockGateway struct {
	mu        sync.RWMutex
	connected int32

	account    model.Account
	positions  map[string]model.Position
	orders     map[string]model.Order
	trades     []model.Trade
	quotes     map[string]model.Tick
	contracts  map[string]bool
	subscribed map[string]bool
	barSubs    map[string]bool

	cb Callbacks

	tickInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	seq int64
}

// NewMockGateway creates a MockGateway seeded with the given account and a
// per-symbol starting price. tickInterval controls how often quotes are
// regenerated once connected; pass 0 for the default of 200ms.
func NewMockGateway(account model.Account, startPrices map[string]float64, tickInterval time.Duration) *MockGateway {
	if tickInterval <= 0 {
		tickInterval = 200 * time.Millisecond
	}
	g := &MockGateway{
		account:      account,
		positions:    make(map[string]model.Position),
		orders:       make(map[string]model.Order),
		quotes:       make(map[string]model.Tick),
		contracts:    make(map[string]bool),
		subscribed:   make(map[string]bool),
		barSubs:      make(map[string]bool),
		tickInterval: tickInterval,
		stopCh:       make(chan struct{}),
	}
	for symbol, price := range startPrices {
		g.contracts[symbol] = true
		g.quotes[symbol] = model.Tick{Symbol: symbol, LastPrice: price, Timestamp: time.Now()}
	}
	return g
}

func (g *MockGateway) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&g.connected, 0, 1) {
		return nil // idempotent
	}
	g.account.GatewayConnected = true
	g.account.UpdateTime = time.Now()
	if g.cb.OnAccount != nil {
		g.cb.OnAccount(g.Account())
	}

	g.wg.Add(1)
	go g.runQuoteLoop()
	return nil
}

func (g *MockGateway) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&g.connected, 1, 0) {
		return nil
	}
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.wg.Wait()

	g.mu.Lock()
	g.account.GatewayConnected = false
	g.account.UpdateTime = time.Now()
	g.mu.Unlock()
	if g.cb.OnAccount != nil {
		g.cb.OnAccount(g.Account())
	}
	return nil
}

func (g *MockGateway) Connected() bool {
	return atomic.LoadInt32(&g.connected) == 1
}

func (g *MockGateway) runQuoteLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.tickInterval)
	defer ticker.Stop()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.mu.Lock()
			for symbol, tick := range g.quotes {
				if !g.subscribed[symbol] {
					continue
				}
				tick = randomWalk(tick, rng)
				g.quotes[symbol] = tick
				cb := g.cb.OnTick
				g.mu.Unlock()
				if cb != nil {
					cb(tick)
				}
				g.mu.Lock()
			}
			g.mu.Unlock()
		}
	}
}

func randomWalk(prev model.Tick, rng *rand.Rand) model.Tick {
	move := (rng.Float64() - 0.5) * prev.LastPrice * 0.001
	next := prev
	next.LastPrice += move
	if next.LastPrice <= 0 {
		next.LastPrice = prev.LastPrice
	}
	next.Bid1 = next.LastPrice - 0.2
	next.Ask1 = next.LastPrice + 0.2
	next.Volume += rng.Float64() * 10
	next.Turnover += next.Volume * next.LastPrice
	next.Timestamp = time.Now()
	return next
}

func (g *MockGateway) Subscribe(ctx context.Context, symbols []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range symbols {
		g.subscribed[s] = true
		if _, ok := g.quotes[s]; !ok {
			g.quotes[s] = model.Tick{Symbol: s, LastPrice: 100, Timestamp: time.Now()}
			g.contracts[s] = true
		}
	}
	return nil
}

func (g *MockGateway) SubscribeBars(ctx context.Context, symbol string, interval model.Interval) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.barSubs[fmt.Sprintf("%s:%s", symbol, interval)] = true
	return nil
}

func (g *MockGateway) SendOrder(ctx context.Context, req OrderRequest) (model.Order, error) {
	g.mu.Lock()
	id := fmt.Sprintf("mock-%d", atomic.AddInt64(&g.seq, 1))
	price := req.Price
	last := g.quotes[req.Symbol].LastPrice
	fillPrice := last
	if price != nil {
		fillPrice = *price
	}
	now := time.Now()
	order := model.Order{
		OrderID:        id,
		Symbol:         req.Symbol,
		Direction:      req.Direction,
		Offset:         req.Offset,
		VolumeOriginal: req.Volume,
		Price:          price,
		PriceType:      model.PriceTypeMarket,
		Status:         model.OrderStatusPending,
		InsertTime:     now,
		UpdateTime:     now,
	}
	if price != nil {
		order.PriceType = model.PriceTypeLimit
	}
	g.orders[id] = order
	g.mu.Unlock()

	if g.cb.OnOrder != nil {
		g.cb.OnOrder(order)
	}

	go g.fill(id, fillPrice)
	return order, nil
}

// fill simulates an immediate full fill after a short delay, as real
// venues rarely ack and fill in the same tick.
func (g *MockGateway) fill(orderID string, price float64) {
	time.Sleep(10 * time.Millisecond)

	g.mu.Lock()
	order, ok := g.orders[orderID]
	if !ok || !order.IsActive() {
		g.mu.Unlock()
		return
	}
	order.VolumeTraded = order.VolumeOriginal
	order.Status = model.OrderStatusFinished
	order.UpdateTime = time.Now()
	g.orders[orderID] = order

	trade := model.Trade{
		TradeID:    fmt.Sprintf("%s-t1", orderID),
		OrderID:    orderID,
		Symbol:     order.Symbol,
		Direction:  order.Direction,
		Offset:     order.Offset,
		Price:      price,
		Volume:     order.VolumeOriginal,
		TradeTime:  time.Now(),
		TradingDay: TradingDay(time.Now()),
	}
	g.trades = append(g.trades, trade)
	g.mu.Unlock()

	if g.cb.OnOrder != nil {
		g.cb.OnOrder(order)
	}
	if g.cb.OnTrade != nil {
		g.cb.OnTrade(trade)
	}
}

func (g *MockGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.mu.Lock()
	order, ok := g.orders[orderID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("gateway: unknown order %q", orderID)
	}
	if !order.IsActive() {
		g.mu.Unlock()
		return nil
	}
	order.Status = model.OrderStatusFinished
	order.StatusMsg = "canceled"
	order.UpdateTime = time.Now()
	g.orders[orderID] = order
	g.mu.Unlock()

	if g.cb.OnOrder != nil {
		g.cb.OnOrder(order)
	}
	return nil
}

func (g *MockGateway) Account() model.Account {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.account
}

func (g *MockGateway) Positions() []model.Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Position, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, p)
	}
	return out
}

func (g *MockGateway) Orders() []model.Order {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Order, 0, len(g.orders))
	for _, o := range g.orders {
		out = append(out, o)
	}
	return out
}

func (g *MockGateway) Trades() []model.Trade {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Trade, len(g.trades))
	copy(out, g.trades)
	return out
}

func (g *MockGateway) Quotes() []model.Tick {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Tick, 0, len(g.quotes))
	for _, t := range g.quotes {
		out = append(out, t)
	}
	return out
}

func (g *MockGateway) Contracts() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.contracts))
	for s := range g.contracts {
		out = append(out, s)
	}
	return out
}

func (g *MockGateway) GetTradingDay(now time.Time) string {
	return TradingDay(now)
}

func (g *MockGateway) RegisterCallbacks(cb Callbacks) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cb = cb
}

var _ Gateway = (*MockGateway)(nil)
