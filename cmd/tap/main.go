package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"flash-arb-gateway/infrastructure/sink"
	"flash-arb-gateway/market"
)

// tap 订阅网关发布的四个 Redis 频道，打印解码后的事件，用于联调。
func main() {
	redisURL := flag.String("redis", "redis://127.0.0.1:6379", "Redis 地址")
	prefix := flag.String("prefix", sink.DefaultPrefix, "频道前缀")
	raw := flag.Bool("raw", false, "直接打印原始 payload")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *redisURL, *prefix, *raw)
	stop()
	if err != nil {
		log.Fatalf("tap: %v", err)
	}
}

func run(ctx context.Context, redisURL, prefix string, raw bool) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("解析 redis 地址失败: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("连接 redis 失败: %w", err)
	}

	channels := sink.Channels(prefix)
	pubsub := client.Subscribe(ctx, channels...)
	defer pubsub.Close()
	// 等待订阅确认
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("订阅失败: %w", err)
	}
	fmt.Fprintf(os.Stderr, "subscribed to %v\n", channels)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			printMessage(os.Stdout, prefix, msg.Channel, []byte(msg.Payload), raw)
		}
	}
}

func printMessage(w io.Writer, prefix, channel string, payload []byte, raw bool) {
	if raw {
		fmt.Fprintf(w, "%s %s\n", channel, payload)
		return
	}
	kind, ok := sink.KindForChannel(prefix, channel)
	if !ok {
		fmt.Fprintf(w, "%s ? %s\n", channel, payload)
		return
	}
	ev, err := market.Decode(kind, payload)
	if err != nil {
		fmt.Fprintf(w, "%s decode error: %v\n", channel, err)
		return
	}
	fmt.Fprintf(w, "%-18s %s\n", channel, describe(ev))
}

func describe(ev market.Event) string {
	switch e := ev.(type) {
	case *market.AggTrade:
		return fmt.Sprintf("%s %s trade=%d price=%g qty=%g maker=%v ts=%d",
			e.Exchange, e.Symbol, e.TradeID, e.Price, e.Quantity, e.IsBuyerMaker, e.TimestampMs)
	case *market.Kline:
		return fmt.Sprintf("%s %s %s o=%g h=%g l=%g c=%g v=%g closed=%v",
			e.Exchange, e.Symbol, e.Interval, e.Open, e.High, e.Low, e.Close, e.Volume, e.IsClosed)
	case *market.DepthUpdate:
		return fmt.Sprintf("%s %s bids=%d asks=%d ts=%d",
			e.Exchange, e.Symbol, len(e.Bids), len(e.Asks), e.TimestampMs)
	case *market.BookTicker:
		return fmt.Sprintf("%s %s bid=%g/%g ask=%g/%g",
			e.Exchange, e.Symbol, e.BidPrice, e.BidQty, e.AskPrice, e.AskQty)
	}
	return fmt.Sprintf("%T", ev)
}
