package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"clusterfeed/internal/market"

	"github.com/pelletier/go-toml/v2"
)

// Config 是进程级配置，来源于 TOML 文件；缺省文件时使用默认值启动。
type Config struct {
	Debug  bool         `toml:"debug"`
	Server ServerConfig `toml:"server"`
	Stream StreamConfig `toml:"stream"`
	Store  StoreConfig  `toml:"store"`
	Feed   FeedConfig   `toml:"feed"`
}

type ServerConfig struct {
	Addr   string `toml:"addr"`
	WSPath string `toml:"ws_path"`
}

type StreamConfig struct {
	DefaultSymbol   string `toml:"default_symbol"`
	DefaultInterval string `toml:"default_interval"`
	BackfillCount   int    `toml:"backfill_count"`
	ConnectLimit    int    `toml:"connect_limit"`
	HistoryLimit    int    `toml:"history_limit"`
	OrderBookDepth  int    `toml:"order_book_depth"`
	MaxTickSeconds  int    `toml:"max_tick_seconds"`
	SendBuffer      int    `toml:"send_buffer"`
}

type StoreConfig struct {
	// SQLitePath 为空时使用内存存储。
	SQLitePath string `toml:"sqlite_path"`
}

type FeedConfig struct {
	// Provider 可选 synthetic / binance。
	Provider string `toml:"provider"`
}

// Load 读取并解析配置文件；文件不存在时返回默认配置而非报错。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("读取配置失败: %w", err)
			}
		} else if err := toml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.WSPath == "" {
		c.Server.WSPath = "/ws"
	}
	if c.Stream.DefaultSymbol == "" {
		c.Stream.DefaultSymbol = "BTCUSDT"
	}
	c.Stream.DefaultSymbol = strings.ToUpper(strings.TrimSpace(c.Stream.DefaultSymbol))
	if c.Stream.DefaultInterval == "" || !market.ValidInterval(c.Stream.DefaultInterval) {
		c.Stream.DefaultInterval = market.DefaultInterval
	}
	if c.Stream.BackfillCount <= 0 {
		c.Stream.BackfillCount = 50
	}
	if c.Stream.ConnectLimit <= 0 {
		c.Stream.ConnectLimit = 200
	}
	if c.Stream.HistoryLimit <= 0 {
		c.Stream.HistoryLimit = 200
	}
	if c.Stream.OrderBookDepth <= 0 {
		c.Stream.OrderBookDepth = 20
	}
	if c.Stream.MaxTickSeconds <= 0 {
		c.Stream.MaxTickSeconds = 3
	}
	if c.Stream.SendBuffer <= 0 {
		c.Stream.SendBuffer = 128
	}
	if c.Feed.Provider == "" {
		c.Feed.Provider = "synthetic"
	}
	c.Feed.Provider = strings.ToLower(strings.TrimSpace(c.Feed.Provider))
}

// MaxTickInterval 返回调度周期上限。
func (c *Config) MaxTickInterval() time.Duration {
	return time.Duration(c.Stream.MaxTickSeconds) * time.Second
}
