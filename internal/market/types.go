package market

import (
	"fmt"
	"strings"
)

// Cluster 表示一根 K 线内某个价位区间的成交分布。
// buyVolume+sellVolume = volume，aggression = |delta|/volume（volume 为 0 时取 0）。
type Cluster struct {
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
	Delta      float64 `json:"delta"`
	Aggression float64 `json:"aggression"`
}

// Candle 是一根 OHLCV K 线，附带按价位拆分的 cluster 列表。
// Time 为 bar 开盘时刻的 Unix 秒；clusters 按 volume 降序排列。
type Candle struct {
	Time       int64     `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	BuyVolume  float64   `json:"buyVolume"`
	SellVolume float64   `json:"sellVolume"`
	Delta      float64   `json:"delta"`
	Clusters   []Cluster `json:"clusters"`
}

// OrderBookLevel 是盘口的单个价位档。
type OrderBookLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// OrderBookSnapshot 为整本盘口的全量快照，每次推送整体替换。
// bids 按价格降序，asks 按价格升序，LastUpdate 为毫秒时间戳。
type OrderBookSnapshot struct {
	Bids       []OrderBookLevel `json:"bids"`
	Asks       []OrderBookLevel `json:"asks"`
	LastUpdate int64            `json:"lastUpdate"`
}

// StreamKey 标识一条独立调度的数据流：symbol + interval。
type StreamKey struct {
	Symbol   string
	Interval string
}

func (k StreamKey) String() string { return k.Symbol + "_" + k.Interval }

// ParseKey 归一化 symbol（去空白、转大写）并校验 interval 合法性。
// interval 为空时回落到默认值；大小写保留（1m 与 1M 是不同周期）。
func ParseKey(symbol, interval string) (StreamKey, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return StreamKey{}, fmt.Errorf("symbol is required")
	}
	iv := strings.TrimSpace(interval)
	if iv == "" {
		iv = DefaultInterval
	}
	if !ValidInterval(iv) {
		return StreamKey{}, fmt.Errorf("unsupported interval %q", interval)
	}
	return StreamKey{Symbol: sym, Interval: iv}, nil
}
