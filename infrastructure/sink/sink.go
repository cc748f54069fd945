// Package sink 把归一化后的行情事件发布到下游（Redis pub/sub、NATS、RabbitMQ 或内存）。
package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"flash-arb-gateway/market"
)

// DefaultPrefix 默认频道前缀
const DefaultPrefix = "flash_arb"

// Sink 发布目标。engine 保证同一时刻只有一个 Publish 在执行。
type Sink interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Ping(ctx context.Context) error
	Close() error
}

var channelSuffix = map[market.DataKind]string{
	market.KindAggTrade:   "tick",
	market.KindKline:      "kline",
	market.KindDepth:      "depth",
	market.KindBookTicker: "ticker",
}

// ChannelFor 事件类型对应的频道：aggTrade -> <prefix>:tick, kline -> <prefix>:kline,
// depth -> <prefix>:depth, bookTicker -> <prefix>:ticker。
func ChannelFor(prefix string, kind market.DataKind) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	suffix, ok := channelSuffix[kind]
	if !ok {
		return ""
	}
	return prefix + ":" + suffix
}

// KindForChannel ChannelFor 的反查，订阅端用来选择解码类型。
func KindForChannel(prefix, channel string) (market.DataKind, bool) {
	for _, kind := range market.Kinds() {
		if ChannelFor(prefix, kind) == channel {
			return kind, true
		}
	}
	return "", false
}

// Channels 返回全部四个频道。
func Channels(prefix string) []string {
	out := make([]string, 0, len(channelSuffix))
	for _, kind := range market.Kinds() {
		out = append(out, ChannelFor(prefix, kind))
	}
	return out
}

// Encode 事件编码为扁平 JSON 对象。
func Encode(ev market.Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("encode: nil event")
	}
	return json.Marshal(ev)
}

// New 按 URL scheme 创建 Sink：redis(s)://, nats://, amqp(s)://, memory://。
func New(rawURL string, logger *zap.Logger) (Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse sink url: %w", err)
	}
	logger = logger.Named("sink")
	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss", "unix":
		return NewRedisSink(rawURL, logger)
	case "nats", "tls":
		return NewNATSSink(rawURL, logger)
	case "amqp", "amqps":
		return NewAMQPSink(rawURL, logger)
	case "memory":
		return NewMemorySink(0), nil
	}
	return nil, fmt.Errorf("unsupported sink scheme %q", u.Scheme)
}
