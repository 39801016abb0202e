// Package journal persists one account's orders and trades to a local
// SQLite file so get_orders/get_trades survive a Trader process restart;
// OrderCmds are not stored. Grounded on the teacher's pkg/db: same driver
// (modernc.org/sqlite, pure Go, no cgo), same single-writer open-handle
// idiom (here Open/Close), same inline embedded-schema-string
// migration style, narrowed from the teacher's full multi-tenant schema
// (users/connections/risk_configs/strategy_instances/...) to the two
// tables a Trader actually owns: its own orders and trades.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"qtrader/internal/model"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS orders (
	order_id         TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	exchange         TEXT,
	direction        TEXT NOT NULL,
	offset_type      TEXT NOT NULL,
	volume_original  REAL NOT NULL,
	volume_traded    REAL NOT NULL,
	price            REAL,
	price_type       TEXT,
	status           TEXT NOT NULL,
	status_msg       TEXT,
	gateway_order_id TEXT,
	insert_time      DATETIME NOT NULL,
	update_time      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id    TEXT PRIMARY KEY,
	order_id    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	exchange    TEXT,
	direction   TEXT NOT NULL,
	offset_type TEXT NOT NULL,
	price       REAL NOT NULL,
	volume      REAL NOT NULL,
	trade_time  DATETIME NOT NULL,
	trading_day TEXT,
	commission  REAL DEFAULT 0
);
`

// Journal is one account's append-mostly order/trade store.
type Journal struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the SQLite file at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying DB handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordOrder upserts one order's current snapshot.
func (j *Journal) RecordOrder(ctx context.Context, o model.Order) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, symbol, exchange, direction, offset_type, volume_original,
			volume_traded, price, price_type, status, status_msg, gateway_order_id, insert_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			volume_traded    = excluded.volume_traded,
			price            = excluded.price,
			status           = excluded.status,
			status_msg       = excluded.status_msg,
			gateway_order_id = excluded.gateway_order_id,
			update_time      = excluded.update_time
	`, o.OrderID, o.Symbol, o.Exchange, string(o.Direction), string(o.Offset), o.VolumeOriginal,
		o.VolumeTraded, nullableFloat(o.Price), string(o.PriceType), string(o.Status), o.StatusMsg,
		o.GatewayOrderID, o.InsertTime, o.UpdateTime)
	if err != nil {
		return fmt.Errorf("journal: record order: %w", err)
	}
	return nil
}

// RecordTrade inserts one fill. Trades are append-only and never updated.
func (j *Journal) RecordTrade(ctx context.Context, tr model.Trade) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (trade_id, order_id, symbol, exchange, direction, offset_type, price,
			volume, trade_time, trading_day, commission)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO NOTHING
	`, tr.TradeID, tr.OrderID, tr.Symbol, tr.Exchange, string(tr.Direction), string(tr.Offset),
		tr.Price, tr.Volume, tr.TradeTime, tr.TradingDay, tr.Commission)
	if err != nil {
		return fmt.Errorf("journal: record trade: %w", err)
	}
	return nil
}

// Orders returns every journaled order, most recently updated first.
func (j *Journal) Orders(ctx context.Context) ([]model.Order, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT order_id, symbol, exchange, direction, offset_type, volume_original, volume_traded,
			price, price_type, status, status_msg, gateway_order_id, insert_time, update_time
		FROM orders ORDER BY update_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("journal: query orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var (
			o     model.Order
			price sql.NullFloat64
		)
		if err := rows.Scan(&o.OrderID, &o.Symbol, &o.Exchange, &o.Direction, &o.Offset,
			&o.VolumeOriginal, &o.VolumeTraded, &price, &o.PriceType, &o.Status, &o.StatusMsg,
			&o.GatewayOrderID, &o.InsertTime, &o.UpdateTime); err != nil {
			return nil, fmt.Errorf("journal: scan order: %w", err)
		}
		if price.Valid {
			o.Price = &price.Float64
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Trades returns every journaled trade, most recent first.
func (j *Journal) Trades(ctx context.Context) ([]model.Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, order_id, symbol, exchange, direction, offset_type, price, volume,
			trade_time, trading_day, commission
		FROM trades ORDER BY trade_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("journal: query trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var tr model.Trade
		if err := rows.Scan(&tr.TradeID, &tr.OrderID, &tr.Symbol, &tr.Exchange, &tr.Direction,
			&tr.Offset, &tr.Price, &tr.Volume, &tr.TradeTime, &tr.TradingDay, &tr.Commission); err != nil {
			return nil, fmt.Errorf("journal: scan trade: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
