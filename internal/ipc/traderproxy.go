package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"qtrader/internal/eventbus"
	"qtrader/internal/model"
	"qtrader/pkg/procutil"
)

// backoffBase/backoffMax/maxConnectRetries implement the true exponential
// backoff the spec's Open Questions flag as "a candidate for refinement"
// over the original's fixed 5s poll: attempt n waits
// min(backoffBase*2^n, backoffMax). maxConnectRetries is only the attempt
// count from which each failed dial is logged; connectLoop never gives up
// and keeps retrying at backoffMax once the delay reaches it.
const (
	backoffBase       = 500 * time.Millisecond
	backoffMax        = 30 * time.Second
	maxConnectRetries = 10
	heartbeatTimeout  = 30 * time.Second
	pollInterval      = 5 * time.Second
)

// SpawnFunc launches the Trader subprocess for accountID, returning its
// PID. The default implementation execs the qtrader binary; tests inject
// a fake.
type SpawnFunc func(accountID, socketDir string, debug bool) (pid int, err error)

// DefaultSpawn execs `qtrader --account-id <id> --socket-dir <dir> [--debug]` detached,
// matching the original's `python -m src.run_trader` subprocess model.
func DefaultSpawn(accountID, socketDir string, debug bool) (int, error) {
	args := []string{"--account-id", accountID, "--socket-dir", socketDir}
	if debug {
		args = append(args, "--debug")
	}
	cmd := exec.Command("qtrader", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("ipc: spawn trader for %s: %w", accountID, err)
	}
	return cmd.Process.Pid, nil
}

// TraderProxy supervises one account's Trader subprocess: it runs a
// background connect loop, owns the IPC Client once connected, and
// exposes typed request wrappers. Grounded on
// original_source/src/manager/core/trader_proxy.py.
type TraderProxy struct {
	accountID string
	socketDir string
	autoSpawn bool
	debug     bool
	spawn     SpawnFunc
	bus       *eventbus.Bus

	mu            sync.Mutex
	state         model.TraderState
	client        *Client
	lastHeartbeat time.Time
	attempt       int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTraderProxy creates a proxy for accountID. If spawn is nil,
// DefaultSpawn is used.
func NewTraderProxy(accountID, socketDir string, autoSpawn, debug bool, bus *eventbus.Bus, spawn SpawnFunc) *TraderProxy {
	if spawn == nil {
		spawn = DefaultSpawn
	}
	return &TraderProxy{
		accountID: accountID,
		socketDir: socketDir,
		autoSpawn: autoSpawn,
		debug:     debug,
		spawn:     spawn,
		bus:       bus,
		state:     model.TraderStopped,
		stopCh:    make(chan struct{}),
	}
}

// State returns the proxy's current supervision state.
func (p *TraderProxy) State() model.TraderState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *TraderProxy) setState(s model.TraderState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Start is idempotent: if a live Trader process already exists for this
// account (PID file + socket file + liveness probe), it is reused;
// otherwise, if auto_spawn is configured, a new subprocess is launched.
// Either way the background connect loop is (re)started.
func (p *TraderProxy) Start(ctx context.Context) error {
	pidPath := procutil.PidFilePath(p.socketDir, p.accountID)
	pid, _ := procutil.ReadPidFile(pidPath)

	if pid == 0 || !procutil.IsProcessAlive(pid) {
		if !p.autoSpawn {
			return fmt.Errorf("ipc: trader_proxy[%s]: no running process and auto_spawn disabled", p.accountID)
		}
		newPID, err := p.spawn(p.accountID, p.socketDir, p.debug)
		if err != nil {
			return err
		}
		log.Printf("trader_proxy[%s]: spawned subprocess pid=%d", p.accountID, newPID)
	}

	p.wg.Add(1)
	go p.connectLoop(ctx)
	return nil
}

// Stop halts the connect loop and closes the client, if connected. It
// does not kill the subprocess — operators use procutil.StopProcess
// against the PID file directly for that.
func (p *TraderProxy) Stop() {
	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
	p.state = model.TraderStopped
}

func (p *TraderProxy) socketPath() string {
	return procutil.SocketPath(p.socketDir, p.accountID)
}

func (p *TraderProxy) connectLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !p.processExists() {
			p.setState(model.TraderStopped)
			if p.sleepOrStop(pollInterval) {
				return
			}
			continue
		}

		p.mu.Lock()
		connected := p.client != nil
		p.mu.Unlock()

		if !connected {
			if p.tryConnect() {
				if p.sleepOrStop(pollInterval) {
					return
				}
				continue
			}
			if p.sleepOrStop(p.nextBackoff()) {
				return
			}
			continue
		}

		if p.heartbeatStale() {
			log.Printf("trader_proxy[%s]: heartbeat stale, forcing reconnect", p.accountID)
			p.mu.Lock()
			if p.client != nil {
				_ = p.client.Close()
				p.client = nil
			}
			p.mu.Unlock()
			continue
		}

		if p.sleepOrStop(pollInterval) {
			return
		}
	}
}

func (p *TraderProxy) processExists() bool {
	pidPath := procutil.PidFilePath(p.socketDir, p.accountID)
	pid, _ := procutil.ReadPidFile(pidPath)
	if pid == 0 {
		return false
	}
	if !procutil.IsProcessAlive(pid) {
		return false
	}
	if _, err := os.Stat(p.socketPath()); err != nil {
		return false
	}
	return true
}

func (p *TraderProxy) tryConnect() bool {
	p.setState(model.TraderConnecting)
	client, err := Dial(p.socketPath(), p.onPush, p.onHeartbeat)
	if err != nil {
		p.mu.Lock()
		p.attempt++
		tooMany := p.attempt >= maxConnectRetries
		p.mu.Unlock()
		if tooMany {
			log.Printf("trader_proxy[%s]: still unreachable after %d or more connect attempts, retrying", p.accountID, maxConnectRetries)
		}
		return false
	}

	p.mu.Lock()
	p.client = client
	p.state = model.TraderConnected
	p.attempt = 0
	p.lastHeartbeat = time.Now()
	p.mu.Unlock()
	return true
}

func (p *TraderProxy) nextBackoff() time.Duration {
	p.mu.Lock()
	n := p.attempt
	p.mu.Unlock()
	d := backoffBase << n
	if d > backoffMax || d <= 0 {
		d = backoffMax
	}
	return d
}

func (p *TraderProxy) heartbeatStale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastHeartbeat) > heartbeatTimeout
}

func (p *TraderProxy) onHeartbeat() {
	p.mu.Lock()
	p.lastHeartbeat = time.Now()
	p.mu.Unlock()
}

// onPush republishes a Trader-forwarded push frame onto the Manager's
// own event bus under the same topic name, so Manager-level consumers
// observe account updates as they happen.
func (p *TraderProxy) onPush(msgType string, data json.RawMessage) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Topic(msgType), data)
}

func (p *TraderProxy) sleepOrStop(d time.Duration) bool {
	select {
	case <-p.stopCh:
		return true
	case <-time.After(d):
		return false
	}
}

// call is the shared request path for every typed wrapper below: it
// fails fast with a clear error when not connected.
func (p *TraderProxy) call(ctx context.Context, requestType string, data any, timeout time.Duration) (json.RawMessage, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("ipc: trader_proxy[%s]: not connected", p.accountID)
	}
	return client.Request(ctx, requestType, data, timeout)
}

// Call is the generic request path for callers (e.g. the Manager's
// strategy/admin forwarding) that don't need a typed wrapper of their own.
func (p *TraderProxy) Call(ctx context.Context, requestType string, data any, timeout time.Duration) (json.RawMessage, error) {
	return p.call(ctx, requestType, data, timeout)
}

// Ping round-trips a liveness check.
func (p *TraderProxy) Ping(ctx context.Context) error {
	_, err := p.call(ctx, "ping", struct{}{}, TrivialTimeout)
	return err
}

// GetAccount fetches the account snapshot.
func (p *TraderProxy) GetAccount(ctx context.Context) (model.Account, error) {
	raw, err := p.call(ctx, "get_account", struct{}{}, TrivialTimeout)
	if err != nil {
		return model.Account{}, err
	}
	var acct model.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return model.Account{}, fmt.Errorf("ipc: decode get_account response: %w", err)
	}
	return acct, nil
}

// GetOrders fetches every order known to the Trader.
func (p *TraderProxy) GetOrders(ctx context.Context) ([]model.Order, error) {
	raw, err := p.call(ctx, "get_orders", struct{}{}, TrivialTimeout)
	if err != nil {
		return nil, err
	}
	var orders []model.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("ipc: decode get_orders response: %w", err)
	}
	return orders, nil
}

// GetTrades fetches every trade known to the Trader.
func (p *TraderProxy) GetTrades(ctx context.Context) ([]model.Trade, error) {
	raw, err := p.call(ctx, "get_trades", struct{}{}, TrivialTimeout)
	if err != nil {
		return nil, err
	}
	var trades []model.Trade
	if err := json.Unmarshal(raw, &trades); err != nil {
		return nil, fmt.Errorf("ipc: decode get_trades response: %w", err)
	}
	return trades, nil
}

// GetPositions fetches every position known to the Trader.
func (p *TraderProxy) GetPositions(ctx context.Context) ([]model.Position, error) {
	raw, err := p.call(ctx, "get_positions", struct{}{}, TrivialTimeout)
	if err != nil {
		return nil, err
	}
	var positions []model.Position
	if err := json.Unmarshal(raw, &positions); err != nil {
		return nil, fmt.Errorf("ipc: decode get_positions response: %w", err)
	}
	return positions, nil
}

// OrderRequest is the input to order_req.
type OrderRequest struct {
	Symbol    string          `json:"symbol"`
	Direction model.Direction `json:"direction"`
	Offset    model.Offset    `json:"offset"`
	Volume    float64         `json:"volume"`
	Price     *float64        `json:"price"`
}

// SendOrderRequest submits an order_req, returning the new order_id.
func (p *TraderProxy) SendOrderRequest(ctx context.Context, req OrderRequest) (string, error) {
	raw, err := p.call(ctx, "order_req", req, DefaultTimeout)
	if err != nil {
		return "", err
	}
	var orderID string
	if err := json.Unmarshal(raw, &orderID); err != nil {
		return "", fmt.Errorf("ipc: decode order_req response: %w", err)
	}
	return orderID, nil
}

// SendCancelRequest submits a cancel_req for orderID.
func (p *TraderProxy) SendCancelRequest(ctx context.Context, orderID string) (bool, error) {
	raw, err := p.call(ctx, "cancel_req", map[string]string{"order_id": orderID}, DefaultTimeout)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("ipc: decode cancel_req response: %w", err)
	}
	return ok, nil
}

// PauseTrading / ResumeTrading toggle the Trader's global pause flag.
func (p *TraderProxy) PauseTrading(ctx context.Context) error {
	_, err := p.call(ctx, "pause_trading", struct{}{}, DefaultTimeout)
	return err
}

func (p *TraderProxy) ResumeTrading(ctx context.Context) error {
	_, err := p.call(ctx, "resume_trading", struct{}{}, DefaultTimeout)
	return err
}
