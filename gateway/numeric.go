package gateway

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// parseDecimal 解析交易所的十进制字符串价格/数量，不做截断。
func parseDecimal(field, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", errBadNumber, field, s)
	}
	f, _ := d.Float64()
	return f, nil
}

// parseLevel 解析 ["price","qty"] 档位。
func parseLevel(raw []string) (price, qty float64, ok bool) {
	if len(raw) < 2 {
		return 0, 0, false
	}
	p, err := parseDecimal("price", raw[0])
	if err != nil {
		return 0, 0, false
	}
	q, err := parseDecimal("qty", raw[1])
	if err != nil {
		return 0, 0, false
	}
	return p, q, true
}

// required 取必填字段，缺失时返回 errMissingField。
func required[T any](field string, v *T) (T, error) {
	if v == nil {
		var zero T
		return zero, fmt.Errorf("%w: %s", errMissingField, field)
	}
	return *v, nil
}

// flexInt64 兼容 JSON 数字与数字字符串（OKX 的 ts 以字符串下发）。
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return fmt.Errorf("%w: empty integer", errBadNumber)
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", errBadNumber, b)
	}
	*f = flexInt64(v)
	return nil
}

// nowMillis 可在测试中替换。
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// flexString 兼容字符串与裸数字，保留原始文本。
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		*f = flexString(b[1 : len(b)-1])
		return nil
	}
	*f = flexString(b)
	return nil
}
