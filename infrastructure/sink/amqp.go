package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPSink 每个频道对应一个 fanout exchange（名称即频道名），首次发布时声明。
type AMQPSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]struct{}
	logger   *zap.Logger
	mu       sync.Mutex
}

func NewAMQPSink(rawURL string, logger *zap.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return &AMQPSink{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]struct{}),
		logger:   logger,
	}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.declared[channel]; !ok {
		if err := s.channel.ExchangeDeclare(channel, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", channel, err)
		}
		s.declared[channel] = struct{}{}
		s.logger.Info("exchange declared", zap.String("exchange", channel))
	}
	err := s.channel.PublishWithContext(ctx, channel, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        payload,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", channel, err)
	}
	return nil
}

func (s *AMQPSink) Ping(_ context.Context) error {
	if s.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.Close(); err != nil {
		s.logger.Warn("close amqp channel", zap.Error(err))
	}
	return s.conn.Close()
}
