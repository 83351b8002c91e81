package synth

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"clusterfeed/internal/market"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func checkCandle(t *testing.T, c market.Candle) {
	t.Helper()
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		t.Fatalf("价格必须为正, 实际=%+v", c)
	}
	if c.High < math.Max(c.Open, c.Close) {
		t.Fatalf("high 应不低于 open/close, high=%v open=%v close=%v", c.High, c.Open, c.Close)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		t.Fatalf("low 应不高于 open/close, low=%v open=%v close=%v", c.Low, c.Open, c.Close)
	}
	if c.Volume <= 0 {
		t.Fatalf("成交量应为正, 实际=%v", c.Volume)
	}
	if diff := math.Abs(c.BuyVolume + c.SellVolume - c.Volume); diff > c.Volume*1e-9 {
		t.Fatalf("买量+卖量应等于总量, buy=%v sell=%v volume=%v", c.BuyVolume, c.SellVolume, c.Volume)
	}
	if diff := math.Abs(c.Delta - (c.BuyVolume - c.SellVolume)); diff > math.Abs(c.Volume)*1e-9 {
		t.Fatalf("delta 应等于 buy-sell, delta=%v buy=%v sell=%v", c.Delta, c.BuyVolume, c.SellVolume)
	}
}

func TestHistoricalCandlesContinuity(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator("BTCUSDT", 67500, Options{Seed: 42, Now: fixedClock(now)})

	candles := g.HistoricalCandles(50, "1m")
	if len(candles) != 50 {
		t.Fatalf("K 线数量应为 50, 实际=%d", len(candles))
	}
	for i, c := range candles {
		checkCandle(t, c)
		if i == 0 {
			continue
		}
		prev := candles[i-1]
		if c.Time-prev.Time != 60 {
			t.Fatalf("第 %d 根时间间隔应为 60s, 实际=%d", i, c.Time-prev.Time)
		}
		if c.Open != prev.Close {
			t.Fatalf("第 %d 根 open 应等于前一根 close, open=%v close=%v", i, c.Open, prev.Close)
		}
	}
	last := candles[len(candles)-1]
	if last.Time >= now.Unix() {
		t.Fatalf("历史 K 线不应超过当前时间, last=%d now=%d", last.Time, now.Unix())
	}
}

func TestHistoricalCandlesZeroCount(t *testing.T) {
	g := NewGenerator("ETHUSDT", 0, Options{Seed: 1})
	if got := g.HistoricalCandles(0, "1m"); got != nil {
		t.Fatalf("count=0 应返回 nil, 实际=%v", got)
	}
}

func TestNextCandleRevisesWithinInterval(t *testing.T) {
	cur := time.Date(2024, 6, 1, 12, 0, 5, 0, time.UTC)
	g := NewGenerator("BTCUSDT", 67500, Options{Seed: 7, Now: func() time.Time { return cur }})

	first := g.NextCandle("1m")
	checkCandle(t, first)

	cur = cur.Add(2 * time.Second)
	second := g.NextCandle("1m")
	checkCandle(t, second)

	if second.Time != first.Time {
		t.Fatalf("同一周期内应修订同一根 bar, 时间 %d != %d", second.Time, first.Time)
	}
	if second.Open != first.Open {
		t.Fatalf("周期内 open 不应改变, %v != %v", second.Open, first.Open)
	}
	if second.Volume <= first.Volume {
		t.Fatalf("周期内成交量应累加, %v <= %v", second.Volume, first.Volume)
	}
	if second.High < first.High || second.Low > first.Low {
		t.Fatalf("修订只应外扩高低点, first=[%v,%v] second=[%v,%v]",
			first.Low, first.High, second.Low, second.High)
	}
}

func TestNextCandleRollsAtBoundary(t *testing.T) {
	cur := time.Date(2024, 6, 1, 12, 0, 58, 0, time.UTC)
	g := NewGenerator("SOLUSDT", 0, Options{Seed: 9, Now: func() time.Time { return cur }})

	prev := g.NextCandle("1m")

	cur = cur.Add(5 * time.Second) // 跨过 12:01:00 边界
	next := g.NextCandle("1m")
	checkCandle(t, next)

	if next.Time == prev.Time {
		t.Fatalf("跨周期后应开新 bar, time=%d", next.Time)
	}
	if next.Time%60 != 0 {
		t.Fatalf("bar 时间应对齐到周期边界, 实际=%d", next.Time)
	}
	if next.Open != prev.Close {
		t.Fatalf("新 bar 的 open 应等于上一根的 close, open=%v close=%v", next.Open, prev.Close)
	}
}

func TestNextCandleIndependentIntervals(t *testing.T) {
	cur := time.Date(2024, 6, 1, 12, 0, 30, 0, time.UTC)
	g := NewGenerator("BTCUSDT", 67500, Options{Seed: 3, Now: func() time.Time { return cur }})

	m1 := g.NextCandle("1m")
	m5 := g.NextCandle("5m")
	if m1.Time == m5.Time {
		t.Fatalf("不同 interval 应有不同的桶, 1m=%d 5m=%d", m1.Time, m5.Time)
	}
	if m5.Time%300 != 0 {
		t.Fatalf("5m bar 应对齐到 300s, 实际=%d", m5.Time)
	}
}

func TestPriceStaysPositiveForSmallSymbols(t *testing.T) {
	g := NewGenerator("VETUSDT", 0.035, Options{Seed: 11})
	for i := 0; i < 5000; i++ {
		c := g.NextCandle("1s")
		if c.Close <= 0 || c.Low <= 0 {
			t.Fatalf("第 %d 次游走后价格应保持为正, close=%v low=%v", i, c.Close, c.Low)
		}
	}
}

func TestClusterInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	clusters := BuildClusters(67000, 68000, 250, 160, 90, rng)
	if len(clusters) < minClusters || len(clusters) > maxClusters {
		t.Fatalf("档位数应在 [%d,%d] 内, 实际=%d", minClusters, maxClusters, len(clusters))
	}
	for i, cl := range clusters {
		if cl.Price < 67000 || cl.Price > 68000 {
			t.Fatalf("价位应落在 [low, high] 内, 实际=%v", cl.Price)
		}
		if cl.Volume < 0 || cl.BuyVolume < 0 || cl.SellVolume < 0 {
			t.Fatalf("各量应非负, 实际=%+v", cl)
		}
		if cl.Aggression < 0 || cl.Aggression > 1 {
			t.Fatalf("aggression 应在 [0,1] 内, 实际=%v", cl.Aggression)
		}
		if i > 0 && clusters[i].Volume > clusters[i-1].Volume {
			t.Fatalf("clusters 应按量降序, [%d]=%v > [%d]=%v", i, clusters[i].Volume, i-1, clusters[i-1].Volume)
		}
	}
}

func TestClusterDegenerateInput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		name             string
		low, high, total float64
	}{
		{"区间为零", 100, 100, 50},
		{"区间倒置", 101, 100, 50},
		{"总量为零", 100, 101, 0},
		{"低价非正", 0, 1, 50},
	}
	for _, tc := range cases {
		if got := BuildClusters(tc.low, tc.high, tc.total, tc.total/2, tc.total/2, rng); got != nil {
			t.Fatalf("%s 应返回 nil, 实际=%v", tc.name, got)
		}
	}
}

func TestOrderBookShape(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator("BTCUSDT", 67500, Options{Seed: 21, Now: fixedClock(now)})

	snap := g.OrderBook(50)
	if len(snap.Bids) != 50 || len(snap.Asks) != 50 {
		t.Fatalf("档位数应为 50, bids=%d asks=%d", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0].Price >= snap.Asks[0].Price {
		t.Fatalf("最优买价应低于最优卖价, bid=%v ask=%v", snap.Bids[0].Price, snap.Asks[0].Price)
	}
	for i := 1; i < 50; i++ {
		if snap.Bids[i].Price >= snap.Bids[i-1].Price {
			t.Fatalf("bids 应严格递减, [%d]=%v [%d]=%v", i, snap.Bids[i].Price, i-1, snap.Bids[i-1].Price)
		}
		if snap.Asks[i].Price <= snap.Asks[i-1].Price {
			t.Fatalf("asks 应严格递增, [%d]=%v [%d]=%v", i, snap.Asks[i].Price, i-1, snap.Asks[i-1].Price)
		}
	}
	// 深档 (i>=20) 的衰减系数已触底, 量必须停在 0 而不是变负。
	for _, lv := range append(snap.Bids, snap.Asks...) {
		if lv.Volume < 0 {
			t.Fatalf("挂单量不应为负, 实际=%v", lv.Volume)
		}
	}
	if snap.LastUpdate != now.UnixMilli() {
		t.Fatalf("LastUpdate 应为当前毫秒时间, 实际=%d", snap.LastUpdate)
	}
}

func TestEngineUnknownSymbolDefaults(t *testing.T) {
	e := NewEngine(Options{Seed: 99})
	c, err := e.Next(context.Background(), "NOSUCHUSDT", "1m")
	if err != nil {
		t.Fatalf("合成引擎不应返回错误: %v", err)
	}
	// 未知 symbol 回退到默认基准价 100。
	if c.Close < 50 || c.Close > 200 {
		t.Fatalf("未知 symbol 应从默认基准价附近起步, 实际=%v", c.Close)
	}
}
