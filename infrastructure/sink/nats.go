package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSSink subject = 频道名中的 ":" 换成 "."（flash_arb:tick -> flash_arb.tick）。
type NATSSink struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func NewNATSSink(rawURL string, logger *zap.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(rawURL,
		nats.Name("flash-arb-gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectHandler(func(c *nats.Conn) {
			logger.Warn("nats disconnected", zap.Error(c.LastError()))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSSink{nc: nc, logger: logger}, nil
}

func subjectFor(channel string) string { return strings.ReplaceAll(channel, ":", ".") }

func (s *NATSSink) Publish(_ context.Context, channel string, payload []byte) error {
	if err := s.nc.Publish(subjectFor(channel), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", channel, err)
	}
	return nil
}

func (s *NATSSink) Ping(ctx context.Context) error {
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats ping: %w", err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}
