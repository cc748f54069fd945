package market

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// Decode 将已发布的 payload 还原为事件，kind 通常由频道名得到。
func Decode(kind DataKind, payload []byte) (Event, error) {
	var ev Event
	switch kind {
	case KindAggTrade:
		ev = &AggTrade{}
	case KindKline:
		ev = &Kline{}
	case KindDepth:
		ev = &DepthUpdate{}
	case KindBookTicker:
		ev = &BookTicker{}
	default:
		return nil, fmt.Errorf("decode: unknown kind %q", kind)
	}
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if !ev.GetExchange().Valid() {
		return nil, fmt.Errorf("decode %s: unknown exchange %q", kind, ev.GetExchange())
	}
	return ev, nil
}
