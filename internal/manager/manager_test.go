package manager

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtrader/internal/eventbus"
	"qtrader/internal/ipc"
	"qtrader/internal/model"
	"qtrader/pkg/config"
	"qtrader/pkg/procutil"
)

// startFakeTrader mirrors internal/ipc's test helper of the same name: an
// in-process Server simulating a Trader subprocess.
func startFakeTrader(t *testing.T, socketDir, accountID string, balance float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(socketDir, 0o755))

	bus := eventbus.New()
	bus.Start()
	t.Cleanup(bus.Stop)

	srv, err := ipc.NewServer(procutil.SocketPath(socketDir, accountID), bus)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	srv.RegisterHandler("get_account", func(json.RawMessage) (any, error) {
		return model.Account{AccountID: accountID, Balance: balance}, nil
	})
	srv.RegisterHandler("get_orders", func(json.RawMessage) (any, error) {
		return []model.Order{{OrderID: accountID + "-o1"}}, nil
	})
	srv.RegisterHandler("get_trades", func(json.RawMessage) (any, error) {
		return []model.Trade{{TradeID: accountID + "-t1"}}, nil
	})
	srv.RegisterHandler("get_positions", func(json.RawMessage) (any, error) {
		return []model.Position{{Symbol: "IF2509"}}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Serve(ctx)

	require.NoError(t, procutil.WritePidFile(procutil.PidFilePath(socketDir, accountID)))
	t.Cleanup(func() { _ = procutil.RemovePidFile(procutil.PidFilePath(socketDir, accountID)) })
}

func newTestManager(t *testing.T, accounts ...string) *Manager {
	t.Helper()
	cat := &config.Catalog{}
	for i, id := range accounts {
		dir := t.TempDir()
		startFakeTrader(t, dir, id, float64(1000*(i+1)))
		cat.Accounts = append(cat.Accounts, config.AccountEntry{AccountID: id, SocketDir: dir})
	}
	mgr := New(nil)
	mgr.LoadCatalog(cat)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, mgr.Start(ctx))
	t.Cleanup(mgr.Stop)

	require.Eventually(t, func() bool {
		for _, id := range accounts {
			state, err := mgr.AccountState(id)
			if err != nil || state != model.TraderConnected {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)

	return mgr
}

func TestManagerGetAccountForwardsToNamedProxy(t *testing.T) {
	mgr := newTestManager(t, "acct-a", "acct-b")

	acct, err := mgr.GetAccount(context.Background(), "acct-b")
	require.NoError(t, err)
	require.Equal(t, "acct-b", acct.AccountID)
	require.Equal(t, 2000.0, acct.Balance)
}

func TestManagerUnknownAccountIDErrors(t *testing.T) {
	mgr := newTestManager(t, "acct-a")
	_, err := mgr.GetAccount(context.Background(), "bogus")
	require.Error(t, err)
}

func TestManagerGetAllOrdersFlatConcatenates(t *testing.T) {
	mgr := newTestManager(t, "acct-a", "acct-b")
	orders := mgr.GetAllOrders(context.Background())
	require.Len(t, orders, 2)
}

func TestManagerGetAllTradesFlatConcatenates(t *testing.T) {
	mgr := newTestManager(t, "acct-a", "acct-b")
	trades := mgr.GetAllTrades(context.Background())
	require.Len(t, trades, 2)
}

func TestManagerGetAllPositionsGroupsPerAccount(t *testing.T) {
	mgr := newTestManager(t, "acct-a", "acct-b")
	grouped := mgr.GetAllPositions(context.Background())
	require.Len(t, grouped, 2)
	for _, g := range grouped {
		require.Len(t, g.Positions, 1)
	}
}
