package synth

import (
	"math"
	"math/rand"
	"sort"

	"clusterfeed/internal/market"
)

const (
	minClusters = 5
	maxClusters = 20
	// 每 0.02% 的价格区间拆出一个价位档。
	clusterGrain = 0.0002
)

// BuildClusters 把一根 K 线的成交量拆分到 [low, high] 之间的若干价位档：
// 档位数随价格区间自适应（5~20），量向区间中部聚集，买卖按整体买方占比
// 加每档抖动分配。cluster 量之和只近似等于总量（模型特性，非守恒律）。
// 区间或总量退化时返回空列表，绝不产生 NaN/Inf。
func BuildClusters(low, high, volume, buyVolume, sellVolume float64, rng *rand.Rand) []market.Cluster {
	return buildClusters(low, high, volume, buyVolume, sellVolume, rng)
}

func buildClusters(low, high, volume, buyVolume, sellVolume float64, rng *rand.Rand) []market.Cluster {
	if high <= low || volume <= 0 || low <= 0 {
		return nil
	}
	n := int((high - low) / (low * clusterGrain))
	if n < minClusters {
		n = minClusters
	}
	if n > maxClusters {
		n = maxClusters
	}

	priceStep := (high - low) / float64(n)
	mid := (low + high) / 2
	maxDist := (high - low) / 2
	totalBuyRatio := buyVolume / volume

	out := make([]market.Cluster, 0, n)
	for i := 0; i < n; i++ {
		price := low + priceStep*float64(i) + priceStep/2

		// 离中部越近权重越高，叠加随机扰动保持分布自然。
		importance := 1 - math.Abs(price-mid)/maxDist
		mult := (importance*0.7 + rng.Float64()*0.3) * (0.5 + rng.Float64())
		vol := (volume / float64(n)) * mult

		ratio := totalBuyRatio * (0.8 + rng.Float64()*0.4)
		if ratio > 1 {
			ratio = 1
		}
		if ratio < 0 {
			ratio = 0
		}
		buy := vol * ratio
		sell := vol - buy
		delta := buy - sell

		aggression := 0.0
		if vol > 0 {
			aggression = math.Abs(delta) / vol
		}

		out = append(out, market.Cluster{
			Price:      price,
			Volume:     vol,
			BuyVolume:  buy,
			SellVolume: sell,
			Delta:      delta,
			Aggression: aggression,
		})
	}

	// 按量降序：消费者依赖 clusters[0] 是主力价位。
	sort.Slice(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })
	return out
}
