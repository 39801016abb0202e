// Package manager implements the parent process that supervises every
// configured account's Trader subprocess: it owns one TraderProxy per
// account, starts/stops them per the catalog, and fans queries out across
// the whole book. Grounded on original_source/src/manager/core/manager.py's
// account_id -> TraderProxy registry, re-expressed with the teacher's
// RWMutex-guarded-registry idiom (internal/gateway.Manager's own
// connection-pool pattern, generalized from one gateway connection to one
// subprocess proxy per account).
package manager

import (
	"context"
	"fmt"
	"sync"

	"qtrader/internal/eventbus"
	"qtrader/internal/ipc"
	"qtrader/internal/model"
	"qtrader/pkg/config"
)

// Manager holds every configured account's TraderProxy and fans queries
// and commands out across them.
type Manager struct {
	bus *eventbus.Bus

	mu      sync.RWMutex
	proxies map[string]*ipc.TraderProxy
}

// New creates an empty Manager. bus, if non-nil, is where every proxy
// republishes Trader-forwarded push frames (account/order/trade/
// position/account.status/order_cmd).
func New(bus *eventbus.Bus) *Manager {
	return &Manager{
		bus:     bus,
		proxies: make(map[string]*ipc.TraderProxy),
	}
}

// LoadCatalog builds one TraderProxy per catalog entry (not yet started).
func (m *Manager) LoadCatalog(cat *config.Catalog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range cat.Accounts {
		m.proxies[entry.AccountID] = ipc.NewTraderProxy(entry.AccountID, entry.SocketDir, entry.AutoSpawn, false, m.bus, nil)
	}
}

// Start starts every registered proxy's background connect loop. Per
// spec.md §4.11, starting is unconditional once a proxy is registered;
// an account's auto_spawn flag (consulted by the proxy itself) is what
// decides whether a missing process is launched or treated as an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for accountID, proxy := range m.proxies {
		if err := proxy.Start(ctx); err != nil {
			return fmt.Errorf("manager: start account %s: %w", accountID, err)
		}
	}
	return nil
}

// Stop stops every registered proxy.
func (m *Manager) Stop() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, proxy := range m.proxies {
		proxy.Stop()
	}
}

func (m *Manager) proxy(accountID string) (*ipc.TraderProxy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proxies[accountID]
	if !ok {
		return nil, fmt.Errorf("manager: unknown account_id %q", accountID)
	}
	return p, nil
}

// allProxies returns a stable-ish snapshot of every registered proxy,
// for fan-out queries.
func (m *Manager) allProxies() map[string]*ipc.TraderProxy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*ipc.TraderProxy, len(m.proxies))
	for id, p := range m.proxies {
		out[id] = p
	}
	return out
}

// GetAccount forwards get_account to one named account.
func (m *Manager) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	p, err := m.proxy(accountID)
	if err != nil {
		return model.Account{}, err
	}
	return p.GetAccount(ctx)
}

// GetAllAccounts fans get_account out across every account, flat-
// concatenating the results (accounts with a transient error are
// skipped, not fatal to the whole fan-out).
func (m *Manager) GetAllAccounts(ctx context.Context) []model.Account {
	out := make([]model.Account, 0)
	for _, p := range m.allProxies() {
		acct, err := p.GetAccount(ctx)
		if err != nil {
			continue
		}
		out = append(out, acct)
	}
	return out
}

// GetOrders forwards get_orders to one named account.
func (m *Manager) GetOrders(ctx context.Context, accountID string) ([]model.Order, error) {
	p, err := m.proxy(accountID)
	if err != nil {
		return nil, err
	}
	return p.GetOrders(ctx)
}

// GetAllOrders flat-concatenates get_orders across every account.
func (m *Manager) GetAllOrders(ctx context.Context) []model.Order {
	out := make([]model.Order, 0)
	for _, p := range m.allProxies() {
		orders, err := p.GetOrders(ctx)
		if err != nil {
			continue
		}
		out = append(out, orders...)
	}
	return out
}

// GetTrades forwards get_trades to one named account.
func (m *Manager) GetTrades(ctx context.Context, accountID string) ([]model.Trade, error) {
	p, err := m.proxy(accountID)
	if err != nil {
		return nil, err
	}
	return p.GetTrades(ctx)
}

// GetAllTrades flat-concatenates get_trades across every account. This
// corrects the original's fan-out, which returns an empty list instead
// of the concatenated result (a bug, not a documented behavior).
func (m *Manager) GetAllTrades(ctx context.Context) []model.Trade {
	out := make([]model.Trade, 0)
	for _, p := range m.allProxies() {
		trades, err := p.GetTrades(ctx)
		if err != nil {
			continue
		}
		out = append(out, trades...)
	}
	return out
}

// GetPositions forwards get_positions to one named account.
func (m *Manager) GetPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	p, err := m.proxy(accountID)
	if err != nil {
		return nil, err
	}
	return p.GetPositions(ctx)
}

// AccountPositions groups one account's positions for the cross-account
// view, preserving per-account grouping per spec.md §4.11.
type AccountPositions struct {
	AccountID string           `json:"account_id"`
	Positions []model.Position `json:"positions"`
}

// GetAllPositions fans get_positions out across every account, grouped
// per account rather than flat-concatenated.
func (m *Manager) GetAllPositions(ctx context.Context) []AccountPositions {
	out := make([]AccountPositions, 0)
	for accountID, p := range m.allProxies() {
		positions, err := p.GetPositions(ctx)
		if err != nil {
			continue
		}
		out = append(out, AccountPositions{AccountID: accountID, Positions: positions})
	}
	return out
}

// SendOrderRequest forwards order_req to accountID.
func (m *Manager) SendOrderRequest(ctx context.Context, accountID string, req ipc.OrderRequest) (string, error) {
	p, err := m.proxy(accountID)
	if err != nil {
		return "", err
	}
	return p.SendOrderRequest(ctx, req)
}

// SendCancelRequest forwards cancel_req to accountID.
func (m *Manager) SendCancelRequest(ctx context.Context, accountID, orderID string) (bool, error) {
	p, err := m.proxy(accountID)
	if err != nil {
		return false, err
	}
	return p.SendCancelRequest(ctx, orderID)
}

// PauseTrading / ResumeTrading forward the corresponding request to accountID.
func (m *Manager) PauseTrading(ctx context.Context, accountID string) error {
	p, err := m.proxy(accountID)
	if err != nil {
		return err
	}
	return p.PauseTrading(ctx)
}

func (m *Manager) ResumeTrading(ctx context.Context, accountID string) error {
	p, err := m.proxy(accountID)
	if err != nil {
		return err
	}
	return p.ResumeTrading(ctx)
}

// CallStrategyAdmin forwards any strategy/admin request_type (e.g.
// list_strategies, update_strategy_params) one-to-one to accountID's
// Trader, per spec.md §4.11's "strategy/admin APIs forward one-to-one
// with a typed wrapper" — the wrapper here is generic because the
// Manager itself is agnostic to each request's payload shape; accountID
// resolution and unknown-account handling are what the Manager actually
// owns.
func (m *Manager) CallStrategyAdmin(ctx context.Context, accountID, requestType string, data any) ([]byte, error) {
	p, err := m.proxy(accountID)
	if err != nil {
		return nil, err
	}
	raw, err := p.Call(ctx, requestType, data, ipc.DefaultTimeout)
	return []byte(raw), err
}

// AccountState reports one account's supervision state, for admin/status
// surfaces.
func (m *Manager) AccountState(accountID string) (model.TraderState, error) {
	p, err := m.proxy(accountID)
	if err != nil {
		return "", err
	}
	return p.State(), nil
}

// AccountIDs returns every configured account id, in no particular order.
func (m *Manager) AccountIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.proxies))
	for id := range m.proxies {
		out = append(out, id)
	}
	return out
}
