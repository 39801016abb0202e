// Command qtrader runs one account's Trader process: it owns exactly one
// brokerage account, one Gateway connection, and the IPC server the
// Manager's TraderProxy dials into. Grounded on the teacher's main.go
// top-level wiring (flag parsing, config load, signal-driven shutdown),
// re-targeted from the single-process Binance bot to a per-account
// Trader subprocess.
package main

import (
	"context"
	"flag"
	"log"

	"qtrader/internal/gateway"
	"qtrader/internal/model"
	"qtrader/internal/strategy"
	"qtrader/internal/trader"
	"qtrader/pkg/config"
)

func main() {
	accountID := flag.String("account-id", "", "account id this Trader process owns")
	socketDir := flag.String("socket-dir", "", "override SOCKET_DIR")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*accountID)
	if err != nil {
		log.Fatalf("qtrader: %v", err)
	}
	if *socketDir != "" {
		cfg.SocketDir = *socketDir
	}
	cfg.Debug = cfg.Debug || *debug

	t := trader.New(cfg, newGateway(cfg))
	t.RegisterStrategy(strategy.NewMACross("ma-cross-1", "IF2509", model.IntervalM1, 5, 20, 14, 1, t.Harness()))
	t.RegisterStrategy(strategy.NewRSIReversion("rsi-reversion-1", "IC2509", model.IntervalM1, 14, 30, 55, 1, t.Harness()))

	if err := t.Run(context.Background()); err != nil {
		log.Fatalf("qtrader[%s]: %v", cfg.AccountID, err)
	}
}

// newGateway picks the Gateway implementation per cfg.GatewayMode. "mock"
// (the default) returns nil so trader.New falls back to its own seeded
// MockGateway; "wsfeed" opens a real Binance public ticker stream for
// cfg.GatewaySymbols on top of the same mock order/account bookkeeping.
func newGateway(cfg *config.Config) gateway.Gateway {
	if cfg.GatewayMode != "wsfeed" {
		return nil
	}
	gw := gateway.NewWSFeedGateway(model.Account{
		AccountID: cfg.AccountID,
		Balance:   100000,
		Available: 100000,
		Currency:  "USDT",
	}, cfg.GatewayTestnet)
	if len(cfg.GatewaySymbols) > 0 {
		if err := gw.Subscribe(context.Background(), cfg.GatewaySymbols); err != nil {
			log.Printf("qtrader[%s]: gateway subscribe: %v", cfg.AccountID, err)
		}
	}
	return gw
}
