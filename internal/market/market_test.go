package market

import (
	"testing"
	"time"
)

func TestParseKey(t *testing.T) {
	key, err := ParseKey("  btcusdt ", "5m")
	if err != nil {
		t.Fatalf("合法输入不应报错: %v", err)
	}
	if key.Symbol != "BTCUSDT" || key.Interval != "5m" {
		t.Fatalf("symbol 应归一化为大写, 实际=%+v", key)
	}
	if key.String() != "BTCUSDT_5m" {
		t.Fatalf("key 串应为 SYMBOL_interval, 实际=%s", key.String())
	}

	key, err = ParseKey("ethusdt", "")
	if err != nil {
		t.Fatalf("缺省 interval 不应报错: %v", err)
	}
	if key.Interval != DefaultInterval {
		t.Fatalf("缺省 interval 应为 %s, 实际=%s", DefaultInterval, key.Interval)
	}

	if _, err := ParseKey("", "1m"); err == nil {
		t.Fatal("空 symbol 应报错")
	}
	if _, err := ParseKey("   ", "1m"); err == nil {
		t.Fatal("纯空白 symbol 应报错")
	}
	if _, err := ParseKey("BTCUSDT", "2x"); err == nil {
		t.Fatal("未知 interval 应报错")
	}
}

func TestIntervalCaseSensitive(t *testing.T) {
	// 1m 是分钟, 1M 是月, 大小写不能互换。
	if _, err := ParseKey("BTCUSDT", "1M"); err != nil {
		t.Fatalf("1M 应为合法周期: %v", err)
	}
	if IntervalDuration("1m") == IntervalDuration("1M") {
		t.Fatal("1m 与 1M 的周期长度不应相同")
	}
	if d := IntervalDuration("1M"); d != monthSeconds*time.Second {
		t.Fatalf("1M 应为近似月长, 实际=%v", d)
	}
}

func TestIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1s", time.Second},
		{"30s", 30 * time.Second},
		{"1m", time.Minute},
		{"15m", 15 * time.Minute},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		// 非法输入回落为 1 分钟。
		{"", time.Minute},
		{"m", time.Minute},
		{"xx", time.Minute},
		{"-5m", time.Minute},
		{"0h", time.Minute},
	}
	for _, tc := range cases {
		if got := IntervalDuration(tc.in); got != tc.want {
			t.Fatalf("IntervalDuration(%q) 应为 %v, 实际=%v", tc.in, tc.want, got)
		}
	}
	if got := IntervalSeconds("5m"); got != 300 {
		t.Fatalf("IntervalSeconds(5m) 应为 300, 实际=%d", got)
	}
}

func TestCatalog(t *testing.T) {
	for _, iv := range Intervals {
		if !ValidInterval(iv) {
			t.Fatalf("目录内周期 %s 应通过校验", iv)
		}
		if IntervalSeconds(iv) <= 0 {
			t.Fatalf("周期 %s 的秒数应为正", iv)
		}
	}
	if ValidInterval("2x") {
		t.Fatal("目录外周期不应通过校验")
	}

	if got := BasePrice("BTCUSDT"); got != 67500 {
		t.Fatalf("BTCUSDT 基准价应为 67500, 实际=%v", got)
	}
	if got := BasePrice("NOSUCHUSDT"); got != 100 {
		t.Fatalf("未知 symbol 基准价应为 100, 实际=%v", got)
	}
	for _, sym := range Symbols {
		if BasePrice(sym) <= 0 {
			t.Fatalf("目录内 symbol %s 应有正基准价", sym)
		}
	}
	for _, d := range OrderBookDepths {
		if d <= 0 {
			t.Fatalf("盘口深度应为正, 实际=%d", d)
		}
	}
}
