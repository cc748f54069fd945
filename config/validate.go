package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"flash-arb-gateway/market"
)

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if _, err := cfg.SymbolList(); err != nil {
		return err
	}
	if _, err := cfg.ExchangeIDs(); err != nil {
		return err
	}
	if _, err := cfg.Intervals(); err != nil {
		return err
	}
	for name, endpoint := range cfg.Endpoints {
		if _, err := market.ParseExchangeID(name); err != nil {
			return fmt.Errorf("endpoints: %w", err)
		}
		if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
			return fmt.Errorf("endpoints.%s: %q is not a ws:// or wss:// URL", name, endpoint)
		}
	}
	if cfg.Sink.URL == "" {
		return errors.New("sink.url is required")
	}
	if cfg.Engine.HealthInterval <= 0 {
		return errors.New("engine.healthInterval must be > 0")
	}
	if cfg.Engine.ReconnectInterval <= 0 {
		return errors.New("engine.reconnectInterval must be > 0")
	}
	if cfg.Engine.QueueSize <= 0 {
		return errors.New("engine.queueSize must be > 0")
	}
	if cfg.Alert.ThrottleInterval < 0 {
		return errors.New("alert.throttleInterval must be >= 0")
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// SymbolList 规范化后的 symbol 列表（去重，保持顺序）。
func (c AppConfig) SymbolList() ([]string, error) {
	seen := make(map[string]struct{}, len(c.Symbols))
	out := make([]string, 0, len(c.Symbols))
	for _, raw := range c.Symbols {
		s := market.NormalizeSymbol(raw)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("symbols: at least one symbol is required")
	}
	return out, nil
}

// ExchangeIDs 解析 exchanges，重复项报错。
func (c AppConfig) ExchangeIDs() ([]market.ExchangeID, error) {
	if len(c.Exchanges) == 0 {
		return nil, errors.New("exchanges: at least one exchange is required")
	}
	seen := make(map[market.ExchangeID]struct{}, len(c.Exchanges))
	out := make([]market.ExchangeID, 0, len(c.Exchanges))
	for _, raw := range c.Exchanges {
		id, err := market.ParseExchangeID(raw)
		if err != nil {
			return nil, fmt.Errorf("exchanges: %w", err)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("exchanges: %s listed twice", id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Intervals 解析 engine.klineIntervals。
func (c AppConfig) Intervals() ([]market.KlineInterval, error) {
	out := make([]market.KlineInterval, 0, len(c.Engine.KlineIntervals))
	for _, raw := range c.Engine.KlineIntervals {
		iv, err := market.ParseKlineInterval(raw)
		if err != nil {
			return nil, fmt.Errorf("engine.klineIntervals: %w", err)
		}
		out = append(out, iv)
	}
	return out, nil
}

// EndpointFor 返回 endpoints 中该交易所的覆盖地址，没有则为空。
func (c AppConfig) EndpointFor(id market.ExchangeID) string {
	for name, endpoint := range c.Endpoints {
		if parsed, err := market.ParseExchangeID(name); err == nil && parsed == id {
			return endpoint
		}
	}
	return ""
}

// Subscriptions 每个交易所都使用的完整订阅集。
func (c AppConfig) Subscriptions() ([]market.Subscription, error) {
	symbols, err := c.SymbolList()
	if err != nil {
		return nil, err
	}
	intervals, err := c.Intervals()
	if err != nil {
		return nil, err
	}
	return market.BuildSubscriptions(symbols, intervals), nil
}
