package synth

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"clusterfeed/internal/market"

	"github.com/markcheno/go-talib"
)

// 随机行情模型的固定参数，口径沿用测试数据生成器的原始取值。
const (
	walkVolatility   = 0.001 // 每个 tick 0.1% 的随机波动
	meanReversion    = 0.1   // 向近期均价回归的强度
	smaWindow        = 20    // 回归目标：最近 20 个价格的均值
	historyCap       = 1000  // 价格历史滚动窗口上限
	candleVolatility = 0.02  // 历史 K 线收盘价波动 2%
	trendBias        = 0.01  // 历史 K 线 ±0.5% 的趋势偏置
	minPrice         = 1e-8  // 价格下限，保证恒为正
	minWickRatio     = 1e-4  // 影线下限（价格的 0.01%），避免零宽 K 线
)

// Options 控制生成器的随机种子与时钟，主要供测试注入。
type Options struct {
	Seed int64
	Now  func() time.Time
}

// Generator 维护单个 symbol 的合成行情状态：当前价格、滚动价格历史、
// 时间游标，以及每个 interval 尚未收盘的 bar。所有方法并发安全——
// 同一 symbol 可能同时支撑多条 interval 流。
type Generator struct {
	mu      sync.Mutex
	symbol  string
	price   float64
	history []float64
	rng     *rand.Rand
	now     func() time.Time
	open    map[string]*openBar
}

// openBar 是一根仍在进行中的 K 线及其累计买方占比状态。
type openBar struct {
	candle market.Candle
}

// NewGenerator 以基准价初始化生成器；价格历史先填满基准价，
// 让均值回归从一开始就有稳定的参照。
func NewGenerator(symbol string, basePrice float64, opts Options) *Generator {
	if basePrice <= 0 {
		basePrice = market.BasePrice(symbol)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	history := make([]float64, 100)
	for i := range history {
		history[i] = basePrice
	}
	return &Generator{
		symbol:  symbol,
		price:   basePrice,
		history: history,
		rng:     rand.New(rand.NewSource(seed)),
		now:     nowFn,
		open:    make(map[string]*openBar),
	}
}

// HistoricalCandles 生成截止到“现在”的 count 根连续 K 线，时间严格递增、
// 间隔恰好一个 interval，每根的 open 等于前一根的 close。
// 调用会推进生成器的价格状态。
func (g *Generator) HistoricalCandles(count int, interval string) []market.Candle {
	if count <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	step := market.IntervalSeconds(interval)
	end := g.now().Unix()
	t := end - int64(count)*step
	price := floorPrice(g.price * (0.95 + g.rng.Float64()*0.1))

	out := make([]market.Candle, 0, count)
	for i := 0; i < count; i++ {
		c := g.closedCandle(t, price)
		out = append(out, c)
		price = c.Close
		t += step
	}
	g.price = price
	g.pushHistory(price)
	return out
}

// NextCandle 推进一次随机游走，并返回 interval 对应的当前 bar。
// 周期未走完时原地修订同一根 bar（close/high/low/volume/clusters），
// 跨过周期边界后以上一根的 close 开新 bar。
func (g *Generator) NextCandle(interval string) market.Candle {
	g.mu.Lock()
	defer g.mu.Unlock()

	price := g.step()
	step := market.IntervalSeconds(interval)
	sec := g.now().Unix()
	bucket := sec - sec%step

	bar, ok := g.open[interval]
	if !ok || bar.candle.Time != bucket {
		open := price
		if ok {
			open = bar.candle.Close
		}
		bar = &openBar{candle: g.newBar(bucket, open, price)}
		g.open[interval] = bar
	} else {
		g.reviseBar(bar, price)
	}
	return cloneCandle(bar.candle)
}

// CurrentPrice 返回最近一次游走后的价格。
func (g *Generator) CurrentPrice() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.price
}

// step 执行一步有界随机游走：向最近 smaWindow 个价格的均值回归，
// 叠加小幅随机扰动。调用方需持有 g.mu。
func (g *Generator) step() float64 {
	window := g.history
	if len(window) > smaWindow {
		window = window[len(window)-smaWindow:]
	}
	sma := talib.Sma(window, len(window))
	avg := sma[len(sma)-1]

	force := (avg - g.price) / g.price * meanReversion
	noise := (g.rng.Float64() - 0.5) * walkVolatility
	g.price = floorPrice(g.price * (1 + force + noise))
	g.pushHistory(g.price)
	return g.price
}

func (g *Generator) pushHistory(p float64) {
	g.history = append(g.history, p)
	if len(g.history) > historyCap {
		g.history = g.history[len(g.history)-historyCap:]
	}
}

// closedCandle 合成一根已收盘的 K 线：随机收盘价、带下限的影线、
// 随价格波动放大的成交量，以及 cluster 拆分。
func (g *Generator) closedCandle(t int64, open float64) market.Candle {
	trend := (g.rng.Float64() - 0.5) * trendBias
	change := open * (trend + (g.rng.Float64()-0.5)*candleVolatility)
	close := floorPrice(open + change)

	high, low := g.drawWicks(open, close)
	volume := g.volumeFor(open, change, 1)
	buyRatio := g.buyRatio(close > open)
	buy := volume * buyRatio
	sell := volume - buy

	return market.Candle{
		Time:       t,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     volume,
		BuyVolume:  buy,
		SellVolume: sell,
		Delta:      buy - sell,
		Clusters:   buildClusters(low, high, volume, buy, sell, g.rng),
	}
}

// newBar 开启一根新的进行中 K 线。open 来自上一根的收盘价，
// close 是本次游走后的价格。
func (g *Generator) newBar(t int64, open, close float64) market.Candle {
	high, low := g.drawWicks(open, close)
	volume := g.volumeFor(open, close-open, 0.2)
	buyRatio := g.buyRatio(close >= open)
	buy := volume * buyRatio
	sell := volume - buy

	return market.Candle{
		Time:       t,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     volume,
		BuyVolume:  buy,
		SellVolume: sell,
		Delta:      buy - sell,
		Clusters:   buildClusters(low, high, volume, buy, sell, g.rng),
	}
}

// reviseBar 在周期内原地修订进行中的 bar：收盘价跟随最新价格，
// 高低点外扩，按本次变动累加成交量并重建 clusters。
func (g *Generator) reviseBar(bar *openBar, price float64) {
	c := &bar.candle
	move := price - c.Close
	c.Close = price
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	add := g.volumeFor(price, move, 0.2)
	ratio := g.buyRatio(move >= 0)
	c.Volume += add
	c.BuyVolume += add * ratio
	c.SellVolume = c.Volume - c.BuyVolume
	c.Delta = c.BuyVolume - c.SellVolume
	c.Clusters = buildClusters(c.Low, c.High, c.Volume, c.BuyVolume, c.SellVolume, g.rng)
}

// drawWicks 以 body 的 0.5~2 倍绘制影线，body 接近零时退化为
// 价格 0.01% 的最小影线，保证 high > low 且 OHLC 不等式成立。
func (g *Generator) drawWicks(open, close float64) (high, low float64) {
	body := math.Abs(close - open)
	wick := body * (0.5 + g.rng.Float64()*1.5)
	if min := close * minWickRatio; wick < min {
		wick = min
	}
	high = math.Max(open, close) + g.rng.Float64()*wick
	low = math.Min(open, close) - g.rng.Float64()*wick
	if low < minPrice {
		low = minPrice
	}
	return high, low
}

// volumeFor 合成成交量：基础量 100~300，乘以与价格变动幅度成正比的
// 放大系数（变动越大量越大），scale 用于把 tick 级增量调小。
func (g *Generator) volumeFor(ref, change float64, scale float64) float64 {
	base := 100 + g.rng.Float64()*200
	mult := 1.0
	if ref > 0 {
		mult = 1 + math.Abs(change/ref)*10
	}
	return base * mult * scale
}

// buyRatio 返回买方成交占比：阳线偏多（0.55~0.75），阴线偏空（0.25~0.55）。
func (g *Generator) buyRatio(up bool) float64 {
	if up {
		return 0.55 + g.rng.Float64()*0.2
	}
	return 0.25 + g.rng.Float64()*0.3
}

func floorPrice(p float64) float64 {
	if p < minPrice || math.IsNaN(p) || math.IsInf(p, 0) {
		return minPrice
	}
	return p
}

func cloneCandle(c market.Candle) market.Candle {
	out := c
	out.Clusters = make([]market.Cluster, len(c.Clusters))
	copy(out.Clusters, c.Clusters)
	return out
}
