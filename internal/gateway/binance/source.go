package binance

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"clusterfeed/internal/market"
	"clusterfeed/internal/synth"

	gobinance "github.com/adshao/go-binance/v2"
)

const maxHistoryLimit = 1000

// Source 把 Binance 现货行情适配成 market.Feed，证明分发内核与数据
// 提供方解耦：真实 K 线没有逐价位订单流，clusters 由共享的拆分器
// 根据 OHLCV 合成。
type Source struct {
	client *gobinance.Client

	mu  sync.Mutex
	rng *rand.Rand
}

var _ market.Feed = (*Source)(nil)

// New 创建只读行情客户端，无需 API key。
func New() *Source {
	return &Source{
		client: gobinance.NewClient("", ""),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Source) History(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
	}
	out := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, s.convert(k))
	}
	return out, nil
}

func (s *Source) Next(ctx context.Context, symbol, interval string) (market.Candle, error) {
	candles, err := s.History(ctx, symbol, interval, 1)
	if err != nil {
		return market.Candle{}, err
	}
	if len(candles) == 0 {
		return market.Candle{}, fmt.Errorf("binance returned no kline for %s %s", symbol, interval)
	}
	return candles[len(candles)-1], nil
}

func (s *Source) OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = 20
	}
	res, err := s.client.NewDepthService().
		Symbol(strings.ToUpper(strings.TrimSpace(symbol))).
		Limit(depth).
		Do(ctx)
	if err != nil {
		return market.OrderBookSnapshot{}, fmt.Errorf("binance depth %s: %w", symbol, err)
	}
	snap := market.OrderBookSnapshot{
		Bids:       make([]market.OrderBookLevel, 0, len(res.Bids)),
		Asks:       make([]market.OrderBookLevel, 0, len(res.Asks)),
		LastUpdate: time.Now().UnixMilli(),
	}
	for _, b := range res.Bids {
		snap.Bids = append(snap.Bids, market.OrderBookLevel{Price: toFloat(b.Price), Volume: toFloat(b.Quantity)})
	}
	for _, a := range res.Asks {
		snap.Asks = append(snap.Asks, market.OrderBookLevel{Price: toFloat(a.Price), Volume: toFloat(a.Quantity)})
	}
	return snap, nil
}

// convert 把交易所 K 线映射为内部结构：taker 买量拆出买卖方向，
// clusters 用合成拆分器补齐。
func (s *Source) convert(k *gobinance.Kline) market.Candle {
	volume := toFloat(k.Volume)
	buy := toFloat(k.TakerBuyBaseAssetVolume)
	if buy > volume {
		buy = volume
	}
	sell := volume - buy
	c := market.Candle{
		Time:       k.OpenTime / 1000,
		Open:       toFloat(k.Open),
		High:       toFloat(k.High),
		Low:        toFloat(k.Low),
		Close:      toFloat(k.Close),
		Volume:     volume,
		BuyVolume:  buy,
		SellVolume: sell,
		Delta:      buy - sell,
	}
	s.mu.Lock()
	c.Clusters = synth.BuildClusters(c.Low, c.High, c.Volume, c.BuyVolume, c.SellVolume, s.rng)
	s.mu.Unlock()
	return c
}

func toFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
