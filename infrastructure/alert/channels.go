package alert

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ZapChannel 把告警写入结构化日志
type ZapChannel struct {
	logger *zap.Logger
	name   string
}

func NewZapChannel(name string, logger *zap.Logger) *ZapChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapChannel{logger: logger.Named("alert"), name: name}
}

func (c *ZapChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+2)
	fields = append(fields, zap.String("level", string(alert.Level)), zap.Time("at", alert.Timestamp))
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch alert.Level {
	case LevelInfo:
		c.logger.Info(alert.Message, fields...)
	case LevelWarning:
		c.logger.Warn(alert.Message, fields...)
	default:
		c.logger.Error(alert.Message, fields...)
	}
	return nil
}

func (c *ZapChannel) Name() string { return c.name }

// MockChannel 记录收到的告警（用于测试）
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
	mu        sync.Mutex
}

func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (c *MockChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *MockChannel) Name() string { return c.name }

// Alerts 返回收到的告警副本
func (c *MockChannel) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
