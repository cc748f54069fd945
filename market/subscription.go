package market

// Subscription 一条订阅请求；Interval 仅对 Kline 有意义，其余类型忽略。
type Subscription struct {
	Symbol   string
	Kind     DataKind
	Interval *KlineInterval
}

// KlineIntervalOrDefault 返回订阅的周期，未指定时为 1m。
func (s Subscription) KlineIntervalOrDefault() KlineInterval {
	if s.Interval == nil {
		return Interval1m
	}
	return *s.Interval
}

// BuildSubscriptions 生成每个 symbol 的完整订阅集：
// aggTrade、每个周期一条 kline、bookTicker、depth。
func BuildSubscriptions(symbols []string, intervals []KlineInterval) []Subscription {
	subs := make([]Subscription, 0, len(symbols)*(len(intervals)+3))
	for _, raw := range symbols {
		sym := NormalizeSymbol(raw)
		if sym == "" {
			continue
		}
		subs = append(subs, Subscription{Symbol: sym, Kind: KindAggTrade})
		for _, iv := range intervals {
			iv := iv
			subs = append(subs, Subscription{Symbol: sym, Kind: KindKline, Interval: &iv})
		}
		subs = append(subs,
			Subscription{Symbol: sym, Kind: KindBookTicker},
			Subscription{Symbol: sym, Kind: KindDepth},
		)
	}
	return subs
}
