package ipc

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtrader/internal/eventbus"
	"qtrader/internal/model"
	"qtrader/pkg/procutil"
)

// startFakeTrader launches an in-process Server standing in for a real
// Trader subprocess, writes its PID file to simulate a spawned process,
// and returns the running Server.
func startFakeTrader(t *testing.T, socketDir, accountID string) *Server {
	t.Helper()
	require.NoError(t, os.MkdirAll(socketDir, 0o755))

	bus := eventbus.New()
	bus.Start()
	t.Cleanup(bus.Stop)

	srv, err := NewServer(procutil.SocketPath(socketDir, accountID), bus)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	srv.RegisterHandler("ping", func(data json.RawMessage) (any, error) {
		return map[string]bool{"pong": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Serve(ctx)

	require.NoError(t, procutil.WritePidFile(procutil.PidFilePath(socketDir, accountID)))
	t.Cleanup(func() { _ = procutil.RemovePidFile(procutil.PidFilePath(socketDir, accountID)) })

	return srv
}

func TestTraderProxyConnectsToExistingProcess(t *testing.T) {
	socketDir := t.TempDir()
	startFakeTrader(t, socketDir, "acct-1")

	proxy := NewTraderProxy("acct-1", socketDir, false, false, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, proxy.Start(ctx))
	t.Cleanup(proxy.Stop)

	require.Eventually(t, func() bool {
		return proxy.State() == model.TraderConnected
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, proxy.Ping(ctx))
}

func TestTraderProxyAutoSpawnsWhenNoProcessExists(t *testing.T) {
	socketDir := t.TempDir()

	spawned := make(chan struct{}, 1)
	spawn := func(accountID, dir string, debug bool) (int, error) {
		startFakeTrader(t, dir, accountID)
		spawned <- struct{}{}
		return os.Getpid(), nil
	}

	proxy := NewTraderProxy("acct-2", socketDir, true, false, nil, spawn)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, proxy.Start(ctx))
	t.Cleanup(proxy.Stop)

	select {
	case <-spawned:
	case <-time.After(time.Second):
		t.Fatal("spawn was not invoked")
	}

	require.Eventually(t, func() bool {
		return proxy.State() == model.TraderConnected
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTraderProxyWithoutAutoSpawnAndNoProcessErrors(t *testing.T) {
	socketDir := t.TempDir()
	proxy := NewTraderProxy("acct-3", socketDir, false, false, nil, nil)
	err := proxy.Start(context.Background())
	require.Error(t, err)
}

func TestTraderProxyGetAccountRoundTrips(t *testing.T) {
	socketDir := t.TempDir()
	srv := startFakeTrader(t, socketDir, "acct-4")
	srv.RegisterHandler("get_account", func(data json.RawMessage) (any, error) {
		return model.Account{AccountID: "acct-4", Balance: 5000}, nil
	})

	proxy := NewTraderProxy("acct-4", socketDir, false, false, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, proxy.Start(ctx))
	t.Cleanup(proxy.Stop)

	require.Eventually(t, func() bool {
		return proxy.State() == model.TraderConnected
	}, 2*time.Second, 20*time.Millisecond)

	acct, err := proxy.GetAccount(ctx)
	require.NoError(t, err)
	require.Equal(t, "acct-4", acct.AccountID)
	require.Equal(t, 5000.0, acct.Balance)
}
