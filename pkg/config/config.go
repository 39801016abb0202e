// Package config loads the Trader process's flat, environment-driven
// settings and the Manager's account catalog. Grounded on the teacher's
// own pkg/config/config.go Load() shape (env-var reads with defaults,
// optional .env via godotenv), generalized from a single-exchange
// configuration to a per-account Trader configuration plus a
// multi-account catalog file, per spec.md's config-loading Non-goal
// (the Trader's own config format stays out of scope; the Manager's
// account catalog is a supplement, not a new subsystem).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds one Trader process's environment-driven settings.
type Config struct {
	AccountID string
	SocketDir string
	Debug     bool

	TickInterval time.Duration

	MaxDailyOrders  int
	MaxDailyCancels int
	MaxOrderVolume  float64

	OrderRateLimitPerSecond int
	OrderRateLimitBurst     int

	HeartbeatInterval time.Duration

	Language string

	// JournalPath is the SQLite file the Trader's order/trade journal
	// opens. Empty disables the journal (orders/trades live in memory
	// only, per the Executor's own retention, and do not survive restart).
	JournalPath string

	// GatewayMode selects the Gateway implementation: "mock" (default, a
	// random-walk simulator) or "wsfeed" (a real Binance public ticker
	// stream layered over the same mock order/account bookkeeping).
	GatewayMode string
	// GatewaySymbols is the initial subscription list a "wsfeed" gateway
	// opens a stream for at startup.
	GatewaySymbols []string
	// GatewayTestnet toggles the wsfeed gateway's stream host.
	GatewayTestnet bool
}

// Load reads environment variables (optionally via .env) into Config.
// accountID, if non-empty, overrides ACCOUNT_ID (the CLI --account-id
// flag takes precedence over the environment).
func Load(accountID string) (*Config, error) {
	_ = godotenv.Load()

	if accountID == "" {
		accountID = os.Getenv("ACCOUNT_ID")
	}
	if accountID == "" {
		return nil, fmt.Errorf("config: account id is required (--account-id or ACCOUNT_ID)")
	}

	return &Config{
		AccountID:               accountID,
		SocketDir:               getEnv("SOCKET_DIR", "/tmp/qtrader"),
		Debug:                   getEnv("DEBUG", "false") == "true",
		TickInterval:            getEnvDuration("TICK_INTERVAL_MS", 100*time.Millisecond),
		MaxDailyOrders:          getEnvInt("MAX_DAILY_ORDERS", 100),
		MaxDailyCancels:         getEnvInt("MAX_DAILY_CANCELS", 50),
		MaxOrderVolume:          getEnvFloat("MAX_ORDER_VOLUME", 10),
		OrderRateLimitPerSecond: getEnvInt("ORDER_RATE_LIMIT_PER_SECOND", 5),
		OrderRateLimitBurst:     getEnvInt("ORDER_RATE_LIMIT_BURST", 10),
		HeartbeatInterval:       time.Duration(getEnvInt("HEARTBEAT_INTERVAL_S", 10)) * time.Second,
		Language:                getEnv("LANGUAGE", "en"),
		JournalPath:             getEnv("JOURNAL_PATH", ""),
		GatewayMode:             getEnv("GATEWAY_MODE", "mock"),
		GatewaySymbols:          splitCSV(getEnv("GATEWAY_SYMBOLS", "")),
		GatewayTestnet:          getEnv("GATEWAY_TESTNET", "true") == "true",
	}, nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AccountEntry is one row of the Manager's account catalog.
type AccountEntry struct {
	AccountID string `yaml:"account_id"`
	AutoSpawn bool   `yaml:"auto_spawn"`
	SocketDir string `yaml:"socket_dir"`
}

// Catalog is the Manager's full account list, loaded from a YAML file
// (accounts.yaml), the one place a config *file* is natural per
// spec.md's Manager component.
type Catalog struct {
	Accounts []AccountEntry `yaml:"accounts"`
}

// LoadCatalog parses an account-catalog YAML file at path.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read catalog %s: %w", path, err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("config: parse catalog %s: %w", path, err)
	}
	for i := range cat.Accounts {
		if cat.Accounts[i].SocketDir == "" {
			cat.Accounts[i].SocketDir = getEnv("SOCKET_DIR", "/tmp/qtrader")
		}
	}
	return &cat, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
