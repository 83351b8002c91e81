package market

import (
	"strconv"
	"time"
)

// DefaultInterval 是未显式指定 interval 时使用的周期。
const DefaultInterval = "1m"

// 近似月长（秒），与常见交易所口径一致。
const monthSeconds = 2629746

// IntervalDuration 把 "5m"/"4h"/"1M" 这类周期串解析为 Duration。
// 无法解析时回落为 1 分钟，不报错：调度端永远需要一个正的周期。
func IntervalDuration(interval string) time.Duration {
	if len(interval) < 2 {
		return time.Minute
	}
	value, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || value <= 0 {
		return time.Minute
	}
	unit := interval[len(interval)-1]
	switch unit {
	case 's':
		return time.Duration(value) * time.Second
	case 'm':
		return time.Duration(value) * time.Minute
	case 'h':
		return time.Duration(value) * time.Hour
	case 'd':
		return time.Duration(value) * 24 * time.Hour
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour
	case 'M':
		return time.Duration(value) * monthSeconds * time.Second
	default:
		return time.Minute
	}
}

// IntervalSeconds 返回周期的整秒数。
func IntervalSeconds(interval string) int64 {
	return int64(IntervalDuration(interval) / time.Second)
}
