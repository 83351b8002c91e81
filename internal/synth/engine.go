package synth

import (
	"context"
	"sync"

	"clusterfeed/internal/logger"
	"clusterfeed/internal/market"
)

// Engine 把一组按需创建的 Generator 封装成 market.Feed。
// 生成器按 symbol 懒加载并常驻进程（目录有限，无需淘汰）。
type Engine struct {
	mu   sync.Mutex
	gens map[string]*Generator
	opts Options
}

var _ market.Feed = (*Engine)(nil)

func NewEngine(opts Options) *Engine {
	return &Engine{
		gens: make(map[string]*Generator),
		opts: opts,
	}
}

// generator 返回 symbol 对应的生成器，不存在则以基准价创建。
func (e *Engine) generator(symbol string) *Generator {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.gens[symbol]
	if !ok {
		opts := e.opts
		if opts.Seed != 0 {
			// 多 symbol 共用一个种子会产生完全同步的走势。
			opts.Seed += int64(len(e.gens)) + 1
		}
		g = NewGenerator(symbol, market.BasePrice(symbol), opts)
		e.gens[symbol] = g
		logger.Infof("[synth] created generator for %s (base=%.4f)", symbol, market.BasePrice(symbol))
	}
	return g
}

func (e *Engine) History(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return e.generator(symbol).HistoricalCandles(limit, interval), nil
}

func (e *Engine) Next(ctx context.Context, symbol, interval string) (market.Candle, error) {
	return e.generator(symbol).NextCandle(interval), nil
}

func (e *Engine) OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBookSnapshot, error) {
	return e.generator(symbol).OrderBook(depth), nil
}
