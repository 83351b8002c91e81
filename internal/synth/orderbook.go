package synth

import (
	"clusterfeed/internal/market"
)

// 盘口参数：点差为现价的 0.01%，档位间隔为点差的 1/10。
const (
	spreadRatio  = 0.0001
	levelSpacing = 0.1
)

// OrderBook 以当前价格为中心合成 depth 档盘口：
// bids 从 (现价 - 半点差) 向下排列，asks 从 (现价 + 半点差) 向上排列，
// 每档挂单量随远离盘口递减（不为负）。
func (g *Generator) OrderBook(depth int) market.OrderBookSnapshot {
	if depth <= 0 {
		depth = 20
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	spread := g.price * spreadRatio
	bestBid := g.price - spread/2
	bestAsk := g.price + spread/2

	bids := make([]market.OrderBookLevel, 0, depth)
	asks := make([]market.OrderBookLevel, 0, depth)
	for i := 0; i < depth; i++ {
		falloff := 1 - float64(i)*0.05
		if falloff < 0 {
			falloff = 0
		}
		vol := (10 + g.rng.Float64()*50) * falloff
		bids = append(bids, market.OrderBookLevel{
			Price:  bestBid - float64(i)*spread*levelSpacing,
			Volume: vol,
		})
		asks = append(asks, market.OrderBookLevel{
			Price:  bestAsk + float64(i)*spread*levelSpacing,
			Volume: (10 + g.rng.Float64()*50) * falloff,
		})
	}

	return market.OrderBookSnapshot{
		Bids:       bids,
		Asks:       asks,
		LastUpdate: g.now().UnixMilli(),
	}
}
