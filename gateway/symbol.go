package gateway

import (
	"strings"

	"flash-arb-gateway/market"
)

var okxQuotes = []string{"USDT", "USD"}

// OKXSymbol 规范 symbol 转 OKX 写法：在 USDT/USD 报价币前插入连字符（BTCUSDT -> BTC-USDT）。
// 这是文本替换而非真正的交易对解析：报价币不是 USDT/USD 的交易对会得到错误的写法。
func OKXSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	if strings.Contains(s, "-") {
		return s
	}
	for _, q := range okxQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)] + "-" + q
		}
	}
	for _, q := range okxQuotes {
		if i := strings.Index(s, q); i > 0 {
			return s[:i] + "-" + s[i:]
		}
	}
	return s
}

// StandardSymbol OKX 写法转规范 symbol：去掉全部连字符。
func StandardSymbol(okxSymbol string) string {
	return strings.ToUpper(strings.ReplaceAll(okxSymbol, "-", ""))
}

// binanceStreamName 生成 binance 流名称，如 btcusdt@kline_1m。
func binanceStreamName(sub market.Subscription) string {
	sym := strings.ToLower(sub.Symbol)
	switch sub.Kind {
	case market.KindAggTrade:
		return sym + "@aggTrade"
	case market.KindKline:
		return sym + "@kline_" + sub.KlineIntervalOrDefault().String()
	case market.KindDepth:
		return sym + "@depth@100ms"
	case market.KindBookTicker:
		return sym + "@bookTicker"
	}
	return ""
}

// okxChannelName 生成 OKX 订阅频道名，如 public-candle1m:BTC-USDT。
func okxChannelName(sub market.Subscription) string {
	sym := OKXSymbol(sub.Symbol)
	switch sub.Kind {
	case market.KindAggTrade:
		return "public-trade:" + sym
	case market.KindKline:
		return "public-candle" + sub.KlineIntervalOrDefault().String() + ":" + sym
	case market.KindDepth:
		return "public-books:" + sym
	case market.KindBookTicker:
		return "public-tickers:" + sym
	}
	return ""
}
