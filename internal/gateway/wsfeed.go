package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"qtrader/internal/model"
	"qtrader/pkg/cache"
)

// ReconnectConfig controls the exponential backoff a WSFeedGateway applies
// when its upstream market-data socket drops.
type ReconnectConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultWSReconnectConfig mirrors the teacher's DefaultReconnectConfig.
func DefaultWSReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:   10,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// WSFeedGateway pairs the teacher's websocket streaming idiom
// (pkg/market/binance/websocket.go's SubscribeKlines: dial, read loop,
// exponential-backoff reconnect) with the embedded MockGateway's in-memory
// order/account/position bookkeeping (a real brokerage order-routing SDK
// stays out of scope). Each subscribed symbol gets its own 24h-ticker
// stream goroutine that republishes into the shared quote table and fires
// OnTick, replacing MockGateway's random-walk generator as the tick source.
type WSFeedGateway struct {
	*MockGateway

	dialer    *websocket.Dialer
	streamURL string
	reconnect ReconnectConfig

	streamMu sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  map[string]bool

	// prices mirrors every tick's last price in a lock-sharded cache,
	// independent of the embedded MockGateway's single RWMutex-guarded
	// quote map, so a busy symbol's writes never contend with a read of
	// an unrelated symbol's price.
	prices *cache.ShardedPriceCache
}

// NewWSFeedGateway builds a gateway whose quotes come from Binance's public
// 24h ticker stream. testnet toggles the stream host.
func NewWSFeedGateway(account model.Account, testnet bool) *WSFeedGateway {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &WSFeedGateway{
		MockGateway: NewMockGateway(account, nil, 0),
		dialer:      websocket.DefaultDialer,
		streamURL:   (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		reconnect:   DefaultWSReconnectConfig(),
		running:     make(map[string]bool),
		prices:      cache.NewShardedPriceCache(),
	}
}

// PriceCacheStats reports the sharded price cache's occupancy and staleness,
// for the get_jobs diagnostic surface.
func (g *WSFeedGateway) PriceCacheStats() cache.CacheStats {
	return g.prices.Stats()
}

func (g *WSFeedGateway) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&g.connected, 0, 1) {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	g.account.GatewayConnected = true
	g.account.UpdateTime = time.Now()
	symbols := make([]string, 0, len(g.subscribed))
	for s, on := range g.subscribed {
		if on {
			symbols = append(symbols, s)
		}
	}
	g.mu.Unlock()

	g.streamMu.Lock()
	g.ctx = runCtx
	g.cancel = cancel
	g.streamMu.Unlock()

	if g.cb.OnAccount != nil {
		g.cb.OnAccount(g.Account())
	}
	for _, s := range symbols {
		g.startStream(runCtx, s)
	}
	return nil
}

func (g *WSFeedGateway) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&g.connected, 1, 0) {
		return nil
	}
	g.streamMu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.ctx = nil
	g.streamMu.Unlock()
	if cancel != nil {
		cancel()
	}
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

// Subscribe records the symbol in the embedded quote table (so get_quotes
// and order fills keep working) and, once connected, opens its stream.
func (g *WSFeedGateway) Subscribe(ctx context.Context, symbols []string) error {
	if err := g.MockGateway.Subscribe(ctx, symbols); err != nil {
		return err
	}
	g.streamMu.Lock()
	runCtx := g.ctx
	g.streamMu.Unlock()
	if runCtx == nil {
		return nil
	}
	for _, s := range symbols {
		g.startStream(runCtx, s)
	}
	return nil
}

func (g *WSFeedGateway) startStream(ctx context.Context, symbol string) {
	g.streamMu.Lock()
	if g.running[symbol] {
		g.streamMu.Unlock()
		return
	}
	g.running[symbol] = true
	g.streamMu.Unlock()

	g.wg.Add(1)
	go g.streamLoop(ctx, symbol)
}

func (g *WSFeedGateway) streamLoop(ctx context.Context, symbol string) {
	defer g.wg.Done()
	defer func() {
		g.streamMu.Lock()
		delete(g.running, symbol)
		g.streamMu.Unlock()
	}()

	stream := fmt.Sprintf("%s/%s@ticker", g.streamURL, strings.ToLower(symbol))
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := g.dialer.DialContext(ctx, stream, nil)
		if err != nil {
			if !g.sleepBackoff(ctx, &attempt, symbol) {
				return
			}
			continue
		}
		attempt = 0
		g.readLoop(ctx, symbol, conn)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
		if !g.sleepBackoff(ctx, &attempt, symbol) {
			return
		}
	}
}

func (g *WSFeedGateway) sleepBackoff(ctx context.Context, attempt *int, symbol string) bool {
	maxRetries := g.reconnect.MaxRetries
	if maxRetries == 0 {
		maxRetries = 100
	}
	if *attempt >= maxRetries {
		log.Printf("gateway: ws feed[%s] giving up after %d attempts", symbol, *attempt)
		return false
	}
	delay := float64(g.reconnect.InitialDelay)
	for i := 0; i < *attempt; i++ {
		delay *= g.reconnect.Multiplier
	}
	d := time.Duration(delay)
	if d > g.reconnect.MaxDelay {
		d = g.reconnect.MaxDelay
	}
	*attempt++
	log.Printf("gateway: ws feed[%s] reconnecting in %v (attempt %d/%d)", symbol, d, *attempt, maxRetries)
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *WSFeedGateway) readLoop(ctx context.Context, symbol string, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			log.Printf("gateway: ws feed[%s] read error: %v", symbol, err)
			return
		}
		tick, err := parseTickerTick(symbol, msg)
		if err != nil {
			continue
		}
		g.mu.Lock()
		g.quotes[symbol] = tick
		cb := g.cb.OnTick
		g.mu.Unlock()
		g.prices.Set(symbol, tick.LastPrice)
		if cb != nil {
			cb(tick)
		}
	}
}

// parseTickerTick decodes a Binance 24hrTicker payload into a model.Tick,
// mirroring the teacher's parseTickerMessage field selection.
func parseTickerTick(symbol string, msg []byte) (model.Tick, error) {
	var raw struct {
		Last   string `json:"c"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
		Volume string `json:"v"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return model.Tick{}, err
	}
	last, _ := strconv.ParseFloat(raw.Last, 64)
	bid, _ := strconv.ParseFloat(raw.Bid, 64)
	ask, _ := strconv.ParseFloat(raw.Ask, 64)
	vol, _ := strconv.ParseFloat(raw.Volume, 64)
	return model.Tick{
		Symbol:    symbol,
		LastPrice: last,
		Bid1:      bid,
		Ask1:      ask,
		Volume:    vol,
		Timestamp: time.Now(),
	}, nil
}

var _ Gateway = (*WSFeedGateway)(nil)
