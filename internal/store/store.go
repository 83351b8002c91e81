package store

import (
	"context"
	"errors"
	"sync"

	"clusterfeed/internal/market"
)

// Store 抽象持久化网关：K 线按 (symbol, interval, openTime) 存取，
// 盘口按 symbol 整体替换。实现必须把“无数据”作为空结果而非错误返回。
type Store interface {
	// Candles 返回最近 limit 根 K 线，按时间升序；没有数据时返回空切片。
	Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
	// UpsertCandle 插入或按 openTime 原地覆盖——进行中的 K 线会在同一
	// 周期桶内被反复修订。
	UpsertCandle(ctx context.Context, symbol, interval string, c market.Candle) error
	// LatestOrderBook 返回 symbol 最近一次的盘口快照。
	LatestOrderBook(ctx context.Context, symbol string) (market.OrderBookSnapshot, bool, error)
	// PutOrderBook 整体替换盘口快照，不保留历史。
	PutOrderBook(ctx context.Context, symbol string, snap market.OrderBookSnapshot) error
}

const defaultMaxCandles = 1000

// MemoryStore 内存实现，按 SYMBOL_interval 维护升序 K 线序列。
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	candles map[string][]market.Candle
	books   map[string]market.OrderBookSnapshot
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		max:     defaultMaxCandles,
		candles: make(map[string][]market.Candle),
		books:   make(map[string]market.OrderBookSnapshot),
	}
}

func key(symbol, interval string) string { return symbol + "_" + interval }

func (s *MemoryStore) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if symbol == "" || interval == "" {
		return nil, errors.New("symbol/interval 不能为空")
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.candles[key(symbol, interval)]
	if len(cur) == 0 {
		return nil, nil
	}
	if limit > len(cur) {
		limit = len(cur)
	}
	out := make([]market.Candle, limit)
	copy(out, cur[len(cur)-limit:])
	return out, nil
}

func (s *MemoryStore) UpsertCandle(ctx context.Context, symbol, interval string, c market.Candle) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(symbol, interval)
	cur := s.candles[k]
	// 序列按时间升序维护；新 bar 几乎总在末尾，倒序找插入点即可。
	pos := len(cur)
	for i := len(cur) - 1; i >= 0; i-- {
		if cur[i].Time == c.Time {
			cur[i] = c
			s.candles[k] = cur
			return nil
		}
		if cur[i].Time < c.Time {
			break
		}
		pos = i
	}
	cur = append(cur, market.Candle{})
	copy(cur[pos+1:], cur[pos:])
	cur[pos] = c
	if len(cur) > s.max {
		cur = cur[len(cur)-s.max:]
	}
	s.candles[k] = cur
	return nil
}

func (s *MemoryStore) LatestOrderBook(ctx context.Context, symbol string) (market.OrderBookSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.books[symbol]
	return snap, ok, nil
}

func (s *MemoryStore) PutOrderBook(ctx context.Context, symbol string, snap market.OrderBookSnapshot) error {
	if symbol == "" {
		return errors.New("symbol 不能为空")
	}
	s.mu.Lock()
	s.books[symbol] = snap
	s.mu.Unlock()
	return nil
}
