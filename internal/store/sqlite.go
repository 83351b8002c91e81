package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"clusterfeed/internal/market"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 sqlite 的持久化实现。clusters 与盘口档位以 JSON 列
// 存储；K 线以 (symbol, interval, open_time) 为主键做 upsert。
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite 路径不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	// modernc 驱动对并发写入敏感，单连接即可满足本场景的写入频率。
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol      TEXT NOT NULL,
			interval    TEXT NOT NULL,
			open_time   INTEGER NOT NULL,
			open        REAL NOT NULL,
			high        REAL NOT NULL,
			low         REAL NOT NULL,
			close       REAL NOT NULL,
			volume      REAL NOT NULL,
			buy_volume  REAL NOT NULL,
			sell_volume REAL NOT NULL,
			delta       REAL NOT NULL,
			clusters    TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (symbol, interval, open_time)
		)`,
		`CREATE TABLE IF NOT EXISTS order_books (
			symbol      TEXT PRIMARY KEY,
			bids        TEXT NOT NULL DEFAULT '[]',
			asks        TEXT NOT NULL DEFAULT '[]',
			last_update INTEGER NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("初始化表结构失败: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if symbol == "" || interval == "" {
		return nil, errors.New("symbol/interval 不能为空")
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
        SELECT open_time, open, high, low, close, volume, buy_volume, sell_volume, delta, clusters
        FROM candles
        WHERE symbol=? AND interval=?
        ORDER BY open_time DESC
        LIMIT ?`, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		var clusters string
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close,
			&c.Volume, &c.BuyVolume, &c.SellVolume, &c.Delta, &clusters); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(clusters), &c.Clusters); err != nil {
			c.Clusters = nil
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// 查询按时间倒序取最近 limit 根，返回前翻转为升序。
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) UpsertCandle(ctx context.Context, symbol, interval string, c market.Candle) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	clusters, err := json.Marshal(c.Clusters)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO candles
            (symbol, interval, open_time, open, high, low, close, volume, buy_volume, sell_volume, delta, clusters)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol, interval, open_time) DO UPDATE SET
            open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
            volume=excluded.volume, buy_volume=excluded.buy_volume, sell_volume=excluded.sell_volume,
            delta=excluded.delta, clusters=excluded.clusters`,
		symbol, interval, c.Time, c.Open, c.High, c.Low, c.Close,
		c.Volume, c.BuyVolume, c.SellVolume, c.Delta, string(clusters))
	return err
}

func (s *SQLiteStore) LatestOrderBook(ctx context.Context, symbol string) (market.OrderBookSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT bids, asks, last_update FROM order_books WHERE symbol=?`, symbol)
	var bids, asks string
	var snap market.OrderBookSnapshot
	if err := row.Scan(&bids, &asks, &snap.LastUpdate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.OrderBookSnapshot{}, false, nil
		}
		return market.OrderBookSnapshot{}, false, err
	}
	if err := json.Unmarshal([]byte(bids), &snap.Bids); err != nil {
		return market.OrderBookSnapshot{}, false, err
	}
	if err := json.Unmarshal([]byte(asks), &snap.Asks); err != nil {
		return market.OrderBookSnapshot{}, false, err
	}
	return snap, true, nil
}

func (s *SQLiteStore) PutOrderBook(ctx context.Context, symbol string, snap market.OrderBookSnapshot) error {
	if symbol == "" {
		return errors.New("symbol 不能为空")
	}
	bids, err := json.Marshal(snap.Bids)
	if err != nil {
		return err
	}
	asks, err := json.Marshal(snap.Asks)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO order_books (symbol, bids, asks, last_update)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(symbol) DO UPDATE SET
            bids=excluded.bids, asks=excluded.asks, last_update=excluded.last_update`,
		symbol, string(bids), string(asks), snap.LastUpdate)
	return err
}

// Close 关闭底层数据库连接。
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
