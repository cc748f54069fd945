package gateway

import (
	"errors"
	"fmt"

	"flash-arb-gateway/market"
)

// TransportError 表示连接层故障（拨号/握手/读写/异常断开）。
// 返回该错误前适配器已清除 connected 状态，由 engine 的重连 tick 恢复。
type TransportError struct {
	Exchange market.ExchangeID
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// 单帧解析失败（软失败），只记日志和计数，不影响连接。
var (
	errMalformed       = errors.New("malformed json")
	errUnknownEvent    = errors.New("unknown event type")
	errMissingField    = errors.New("missing field")
	errBadNumber       = errors.New("bad number")
	errUnknownChannel  = errors.New("unknown channel")
	errUnknownInterval = errors.New("unknown interval")
	errEmptyData       = errors.New("empty data")
	errSubscribeAck    = errors.New("subscription ack")
	errExchangeNotice  = errors.New("exchange error event")
)

// parseReason 映射为指标标签。
func parseReason(err error) string {
	switch {
	case errors.Is(err, errMalformed):
		return "malformed"
	case errors.Is(err, errUnknownEvent):
		return "unknown_event"
	case errors.Is(err, errMissingField):
		return "missing_field"
	case errors.Is(err, errBadNumber):
		return "bad_number"
	case errors.Is(err, errUnknownChannel):
		return "unknown_channel"
	case errors.Is(err, errUnknownInterval):
		return "unknown_interval"
	case errors.Is(err, errEmptyData):
		return "empty_data"
	case errors.Is(err, errExchangeNotice):
		return "exchange_error"
	}
	return "other"
}
