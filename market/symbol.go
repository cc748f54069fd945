package market

import "strings"

// NormalizeSymbol 转为规范形式：大写、去掉 "-" "/" "_" 分隔符（BTC-USDT -> BTCUSDT）。
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "/", "", "_", "").Replace(s)
}
