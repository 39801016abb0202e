package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAccountID(t *testing.T) {
	os.Unsetenv("ACCOUNT_ID")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadUsesAccountIDArgOverEnv(t *testing.T) {
	t.Setenv("ACCOUNT_ID", "env-acct")
	cfg, err := Load("arg-acct")
	require.NoError(t, err)
	require.Equal(t, "arg-acct", cfg.AccountID)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("acct-1")
	require.NoError(t, err)
	require.Equal(t, 100, cfg.MaxDailyOrders)
	require.Equal(t, 50, cfg.MaxDailyCancels)
	require.Equal(t, 10.0, cfg.MaxOrderVolume)
}

func TestLoadCatalogParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/accounts.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - account_id: acct-1
    auto_spawn: true
    socket_dir: /tmp/qtrader
  - account_id: acct-2
    auto_spawn: false
`), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Accounts, 2)
	require.Equal(t, "acct-1", cat.Accounts[0].AccountID)
	require.True(t, cat.Accounts[0].AutoSpawn)
	require.Equal(t, "/tmp/qtrader", cat.Accounts[1].SocketDir)
}

func TestLoadCatalogMissingFileErrors(t *testing.T) {
	_, err := LoadCatalog("/nonexistent/path/accounts.yaml")
	require.Error(t, err)
}

func TestLoadDefaultsToMockGateway(t *testing.T) {
	os.Unsetenv("GATEWAY_MODE")
	os.Unsetenv("GATEWAY_SYMBOLS")
	cfg, err := Load("acct-1")
	require.NoError(t, err)
	require.Equal(t, "mock", cfg.GatewayMode)
	require.Empty(t, cfg.GatewaySymbols)
}

func TestLoadParsesGatewaySymbolsCSV(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "wsfeed")
	t.Setenv("GATEWAY_SYMBOLS", "btcusdt, ethusdt ,solusdt")
	cfg, err := Load("acct-1")
	require.NoError(t, err)
	require.Equal(t, "wsfeed", cfg.GatewayMode)
	require.Equal(t, []string{"btcusdt", "ethusdt", "solusdt"}, cfg.GatewaySymbols)
}
