package market

import "context"

// Feed 统一抽象行情来源。分发内核只依赖这个接口：
// 默认实现是内置的随机行情引擎，也可以换成真实交易所适配器。
type Feed interface {
	// History 返回截止到“现在”的最近 limit 根 K 线，按时间升序。
	History(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// Next 推进一个 tick 并返回该 (symbol, interval) 当前未收盘的 K 线。
	// 同一个 bar 在周期走完之前会被原地更新并重复返回。
	Next(ctx context.Context, symbol, interval string) (Candle, error)
	// OrderBook 返回 depth 档的全量盘口快照。
	OrderBook(ctx context.Context, symbol string, depth int) (OrderBookSnapshot, error)
}
