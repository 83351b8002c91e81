package market

// Intervals 是支持订阅的全部周期（与 Binance 对齐）。
var Intervals = []string{
	"1s", "1m", "3m", "5m", "15m", "30m", "1h",
	"2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M",
}

// OrderBookDepths 是盘口档位的可选深度。
var OrderBookDepths = []int{5, 10, 20, 50, 100, 500, 1000, 5000}

// Symbols 是可交易标的目录，集合固定且可枚举。
var Symbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "ADAUSDT", "SOLUSDT",
	"XRPUSDT", "DOTUSDT", "DOGEUSDT", "AVAXUSDT", "MATICUSDT",
	"LINKUSDT", "LTCUSDT", "BCHUSDT", "XLMUSDT", "VETUSDT",
}

var basePrices = map[string]float64{
	"BTCUSDT":   67500,
	"ETHUSDT":   3200,
	"BNBUSDT":   420,
	"ADAUSDT":   0.85,
	"SOLUSDT":   180,
	"XRPUSDT":   0.58,
	"DOTUSDT":   8.5,
	"DOGEUSDT":  0.15,
	"AVAXUSDT":  42,
	"MATICUSDT": 1.2,
	"LINKUSDT":  16,
	"LTCUSDT":   95,
	"BCHUSDT":   380,
	"XLMUSDT":   0.12,
	"VETUSDT":   0.035,
}

// BasePrice 返回标的的起始基准价；目录外的标的统一取 100。
func BasePrice(symbol string) float64 {
	if p, ok := basePrices[symbol]; ok {
		return p
	}
	return 100
}

// ValidInterval 判断周期是否在目录内（区分大小写）。
func ValidInterval(interval string) bool {
	for _, iv := range Intervals {
		if iv == interval {
			return true
		}
	}
	return false
}
