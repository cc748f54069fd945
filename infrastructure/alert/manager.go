package alert

import (
	"fmt"
	"sync"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Message   string
	Key       string // 限流 key，为空时取 level:message
	Timestamp time.Time
	Fields    map[string]interface{}
}

func (a Alert) throttleKey() string {
	if a.Key != "" {
		return a.Key
	}
	return fmt.Sprintf("%s:%s", a.Level, a.Message)
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 告警限流器：同一 key 在 interval 内只放行一次
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow 检查是否允许发送
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Reset 清除某个 key（例如交易所恢复连接后）
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

// Manager 告警管理器。nil *Manager 上的发送为空操作。
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// SendAlert 发送到所有通道；被限流时静默返回 nil，全部通道失败时返回最后一个错误
func (m *Manager) SendAlert(alert Alert) error {
	if m == nil {
		return nil
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if !m.throttle.Allow(alert.throttleKey()) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var lastErr error
	ok := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
			continue
		}
		ok++
	}
	if ok == 0 {
		return lastErr
	}
	return nil
}

func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

func (m *Manager) SendError(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelError, Message: message, Fields: fields})
}

func disconnectKey(exchange string) string { return "disconnected:" + exchange }

// ExchangeDisconnected 交易所断线告警，每个交易所单独限流
func (m *Manager) ExchangeDisconnected(exchange string, fields map[string]interface{}) error {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["exchange"] = exchange
	return m.SendAlert(Alert{
		Level:   LevelWarning,
		Message: "exchange disconnected",
		Key:     disconnectKey(exchange),
		Fields:  fields,
	})
}

// ExchangeRecovered 恢复后清除限流，下次断线立即告警
func (m *Manager) ExchangeRecovered(exchange string) {
	if m == nil {
		return
	}
	m.throttle.Reset(disconnectKey(exchange))
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 返回通道名称
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}
