package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vitos/ha_trader/internal/domain"
)

// SQLiteStore is the append-only trade journal.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			pair TEXT NOT NULL,
			granularity TEXT NOT NULL,
			action TEXT NOT NULL,
			kind TEXT NOT NULL,
			units REAL NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			stop_loss REAL,
			take_profit REAL,
			broker_order_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_pair ON orders(pair, created_at);`,
		`CREATE TABLE IF NOT EXISTS rejections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pair TEXT NOT NULL,
			granularity TEXT NOT NULL,
			reason TEXT NOT NULL,
			trigger_dir INTEGER NOT NULL,
			net_strength REAL NOT NULL,
			rsi REAL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stop_updates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pair TEXT NOT NULL,
			trade_id TEXT NOT NULL,
			old_stop REAL,
			new_stop REAL NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// Orders

func (s *SQLiteStore) SaveOrder(ctx context.Context, rec *domain.OrderRecord) error {
	query := `INSERT INTO orders (id, pair, granularity, action, kind, units, price, stop_loss, take_profit, broker_order_id, status, reason, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Pair, rec.Granularity, rec.Action, rec.Kind, rec.Units, rec.Price,
		nullFloat(rec.StopLoss), nullFloat(rec.TakeProfit), rec.BrokerOrderID, rec.Status, rec.Reason, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	query := `SELECT id, pair, granularity, action, kind, units, price, stop_loss, take_profit, broker_order_id, status, reason, created_at
			  FROM orders ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.OrderRecord
	for rows.Next() {
		var o domain.OrderRecord
		var sl, tp sql.NullFloat64
		if err := rows.Scan(&o.ID, &o.Pair, &o.Granularity, &o.Action, &o.Kind, &o.Units, &o.Price, &sl, &tp, &o.BrokerOrderID, &o.Status, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.StopLoss = floatPtr(sl)
		o.TakeProfit = floatPtr(tp)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// Rejections

func (s *SQLiteStore) SaveRejection(ctx context.Context, rec *domain.RejectionRecord) error {
	query := `INSERT INTO rejections (pair, granularity, reason, trigger_dir, net_strength, rsi, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		rec.Pair, rec.Granularity, rec.Reason, rec.Trigger, rec.NetStrength, nullFloat(definedOrNil(rec.RSI)), rec.CreatedAt)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListRejections(ctx context.Context, limit int) ([]*domain.RejectionRecord, error) {
	query := `SELECT id, pair, granularity, reason, trigger_dir, net_strength, rsi, created_at FROM rejections ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RejectionRecord
	for rows.Next() {
		var r domain.RejectionRecord
		var rsi sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Pair, &r.Granularity, &r.Reason, &r.Trigger, &r.NetStrength, &rsi, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RSI = rsi.Float64
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Stop updates

func (s *SQLiteStore) SaveStopUpdate(ctx context.Context, rec *domain.StopUpdateRecord) error {
	query := `INSERT INTO stop_updates (pair, trade_id, old_stop, new_stop, status, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		rec.Pair, rec.TradeID, nullFloat(rec.OldStop), rec.NewStop, rec.Status, rec.CreatedAt)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListStopUpdates(ctx context.Context, limit int) ([]*domain.StopUpdateRecord, error) {
	query := `SELECT id, pair, trade_id, old_stop, new_stop, status, created_at FROM stop_updates ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StopUpdateRecord
	for rows.Next() {
		var u domain.StopUpdateRecord
		var old sql.NullFloat64
		if err := rows.Scan(&u.ID, &u.Pair, &u.TradeID, &old, &u.NewStop, &u.Status, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.OldStop = floatPtr(old)
		out = append(out, &u)
	}
	return out, rows.Err()
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// RSI is NaN during warmup.
func definedOrNil(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
