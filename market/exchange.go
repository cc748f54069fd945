package market

import (
	"fmt"
	"strings"
)

// ExchangeID 标识事件来源交易所，字符串形式用于日志、指标标签和下游 payload。
type ExchangeID string

const (
	Binance ExchangeID = "binance"
	OKX     ExchangeID = "okx"
)

// Exchanges 返回全部支持的交易所（固定集合）。
func Exchanges() []ExchangeID {
	return []ExchangeID{Binance, OKX}
}

func (e ExchangeID) String() string { return string(e) }

// Valid 判断是否为已知交易所。
func (e ExchangeID) Valid() bool {
	return e == Binance || e == OKX
}

// ParseExchangeID 解析交易所名称（大小写不敏感）。
func ParseExchangeID(name string) (ExchangeID, error) {
	id := ExchangeID(strings.ToLower(strings.TrimSpace(name)))
	if !id.Valid() {
		return "", fmt.Errorf("unknown exchange: %s", name)
	}
	return id, nil
}

// DataKind 决定订阅形态与发布频道。
type DataKind string

const (
	KindAggTrade   DataKind = "aggTrade"
	KindKline      DataKind = "kline"
	KindDepth      DataKind = "depth"
	KindBookTicker DataKind = "bookTicker"
)

// Kinds 返回全部数据类型。
func Kinds() []DataKind {
	return []DataKind{KindAggTrade, KindKline, KindDepth, KindBookTicker}
}

func (k DataKind) String() string { return string(k) }
