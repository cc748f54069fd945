package gateway

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"flash-arb-gateway/market"
)

const (
	BinanceFuturesWSEndpoint = "wss://fstream.binance.com/ws"
	BinanceTestnetWSEndpoint = "wss://stream.binancefuture.com/ws"
)

// BinanceAdapter USDT 本位合约行情。订阅通过拼接流名称重新建连完成。
type BinanceAdapter struct {
	*baseAdapter
}

func NewBinanceAdapter(opts Options) *BinanceAdapter {
	base := BinanceFuturesWSEndpoint
	if opts.Testnet {
		base = BinanceTestnetWSEndpoint
	}
	return &BinanceAdapter{baseAdapter: newBaseAdapter(market.Binance, base, opts, parseBinanceFrame)}
}

// Connect 连接 base endpoint，已连接时先关闭旧连接。
func (b *BinanceAdapter) Connect(ctx context.Context) error {
	return b.dial(ctx, b.baseURL)
}

// Subscribe 先断开，再连接到 <base>/<stream1>/<stream2>/...
func (b *BinanceAdapter) Subscribe(ctx context.Context, subs []market.Subscription) error {
	url := b.StreamURL(subs)
	b.logger.Info("subscribing", zap.Int("streams", len(subs)), zap.String("url", url))
	if err := b.dial(ctx, url); err != nil {
		return err
	}
	b.trackSymbols(subs)
	return nil
}

// Unsubscribe binance 单流连接无法退订，需要重新 Subscribe。
func (b *BinanceAdapter) Unsubscribe(_ context.Context, subs []market.Subscription) error {
	b.logger.Warn("unsubscribe not supported, resubscribe with the remaining set", zap.Int("streams", len(subs)))
	return nil
}

// StreamURL 拼接订阅 URL。
func (b *BinanceAdapter) StreamURL(subs []market.Subscription) string {
	streams := make([]string, 0, len(subs))
	for _, s := range subs {
		if name := binanceStreamName(s); name != "" {
			streams = append(streams, name)
		}
	}
	return strings.TrimRight(b.baseURL, "/") + "/" + strings.Join(streams, "/")
}
