package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"flash-arb-gateway/infrastructure/logger"
)

// AppConfig holds the gateway runtime configuration.
type AppConfig struct {
	Symbols   []string `yaml:"symbols"`
	Exchanges []string `yaml:"exchanges"`
	Testnet   bool     `yaml:"testnet"`
	// Endpoints 按交易所覆盖 WebSocket base URL（代理或本地联调）
	Endpoints map[string]string `yaml:"endpoints"`
	Sink      SinkConfig        `yaml:"sink"`
	Engine    EngineConfig      `yaml:"engine"`
	Log       logger.Config     `yaml:"log"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Alert     AlertConfig       `yaml:"alert"`
}

type SinkConfig struct {
	URL           string `yaml:"url"` // redis:// nats:// amqp:// memory://
	ChannelPrefix string `yaml:"channelPrefix"`
}

type EngineConfig struct {
	HealthInterval    time.Duration `yaml:"healthInterval"`
	ReconnectInterval time.Duration `yaml:"reconnectInterval"`
	QueueSize         int           `yaml:"queueSize"`
	KlineIntervals    []string      `yaml:"klineIntervals"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空时不启动 /metrics
}

type AlertConfig struct {
	ThrottleInterval time.Duration `yaml:"throttleInterval"`
}

// Default 无配置文件时的默认值。
func Default() AppConfig {
	return AppConfig{
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Exchanges: []string{"binance"},
		Sink: SinkConfig{
			URL:           "redis://127.0.0.1:6379",
			ChannelPrefix: "flash_arb",
		},
		Engine: EngineConfig{
			HealthInterval:    30 * time.Second,
			ReconnectInterval: 5 * time.Second,
			QueueSize:         4096,
			KlineIntervals:    []string{"1m", "5m", "15m", "30m", "1h", "4h"},
		},
		Log:     logger.DefaultConfig(),
		Metrics: MetricsConfig{Addr: ":9100"},
		Alert:   AlertConfig{ThrottleInterval: 5 * time.Minute},
	}
}

// Load reads YAML config from path on top of Default and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config (Default when path is empty) then applies FLASH_ARB_* env vars.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig) error {
	if v := strings.TrimSpace(os.Getenv("FLASH_ARB_SINK_URL")); v != "" {
		cfg.Sink.URL = v
	}
	if v := os.Getenv("FLASH_ARB_SYMBOLS"); strings.TrimSpace(v) != "" {
		cfg.Symbols = SplitList(v)
	}
	if v := os.Getenv("FLASH_ARB_EXCHANGES"); strings.TrimSpace(v) != "" {
		cfg.Exchanges = SplitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("FLASH_ARB_TESTNET")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLASH_ARB_TESTNET: %w", err)
		}
		cfg.Testnet = b
	}
	if v := strings.TrimSpace(os.Getenv("FLASH_ARB_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// SplitList 拆分逗号分隔的列表，去掉空项。
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
