package market

import "fmt"

// KlineInterval K 线周期，字符串即交易所通用 token。
type KlineInterval string

const (
	Interval1m  KlineInterval = "1m"
	Interval5m  KlineInterval = "5m"
	Interval15m KlineInterval = "15m"
	Interval30m KlineInterval = "30m"
	Interval1h  KlineInterval = "1h"
	Interval4h  KlineInterval = "4h"
	Interval1d  KlineInterval = "1d"
)

// Intervals 返回全部支持的周期（由短到长）。
func Intervals() []KlineInterval {
	return []KlineInterval{Interval1m, Interval5m, Interval15m, Interval30m, Interval1h, Interval4h, Interval1d}
}

func (i KlineInterval) String() string { return string(i) }

// Millis 返回周期时长（毫秒）；未知周期返回 0。
func (i KlineInterval) Millis() int64 {
	switch i {
	case Interval1m:
		return 60_000
	case Interval5m:
		return 300_000
	case Interval15m:
		return 900_000
	case Interval30m:
		return 1_800_000
	case Interval1h:
		return 3_600_000
	case Interval4h:
		return 14_400_000
	case Interval1d:
		return 86_400_000
	}
	return 0
}

// ParseKlineInterval 将 token 解析为周期。
func ParseKlineInterval(token string) (KlineInterval, error) {
	iv := KlineInterval(token)
	if iv.Millis() == 0 {
		return "", fmt.Errorf("unknown kline interval: %q", token)
	}
	return iv, nil
}

// CloseTime 由开盘时间推导收盘时间：open + duration - 1。
func CloseTime(openTimeMs int64, interval KlineInterval) int64 {
	return openTimeMs + interval.Millis() - 1
}

// Kline K 线（OHLCV）。Interval 保留交易所给出的 token。
type Kline struct {
	Exchange    ExchangeID `json:"exchange"`
	Symbol      string     `json:"symbol"`
	Interval    string     `json:"interval"`
	OpenTimeMs  int64      `json:"open_time_ms"`
	CloseTimeMs int64      `json:"close_time_ms"`
	Open        float64    `json:"open"`
	High        float64    `json:"high"`
	Low         float64    `json:"low"`
	Close       float64    `json:"close"`
	Volume      float64    `json:"volume"`
	IsClosed    bool       `json:"is_closed"`
}
