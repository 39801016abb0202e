// Command qmanager runs the parent Manager process: it loads the
// account catalog, supervises one TraderProxy per account, and serves no
// wire surface of its own (spec.md's Non-goals exclude an HTTP API
// layer) — it is driven programmatically or from an operator shell via
// future tooling. Grounded on the teacher's main.go top-level wiring.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qtrader/internal/eventbus"
	"qtrader/internal/manager"
	"qtrader/pkg/config"
)

func main() {
	catalogPath := flag.String("catalog", "accounts.yaml", "path to the account catalog YAML file")
	flag.Parse()

	cat, err := config.LoadCatalog(*catalogPath)
	if err != nil {
		log.Fatalf("qmanager: %v", err)
	}

	bus := eventbus.New()
	bus.Start()
	defer bus.Stop()

	mgr := manager.New(bus)
	mgr.LoadCatalog(cat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		log.Fatalf("qmanager: %v", err)
	}
	defer mgr.Stop()

	log.Printf("qmanager: supervising %d accounts", len(mgr.AccountIDs()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Printf("qmanager: received %s, shutting down", sig)
}
