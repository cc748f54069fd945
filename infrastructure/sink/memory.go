package sink

import (
	"context"
	"errors"
	"sync"
)

// Message 内存 sink 记录的一条发布
type Message struct {
	Channel string
	Payload []byte
}

const defaultMemoryLimit = 10000

// MemorySink 保存最近 limit 条消息，用于测试和 dry-run。
type MemorySink struct {
	mu       sync.Mutex
	messages []Message
	limit    int
	failWith error
	closed   bool
	notify   chan struct{}
}

func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &MemorySink{limit: limit, notify: make(chan struct{}, 1)}
}

var errSinkClosed = errors.New("sink closed")

func (s *MemorySink) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	if s.failWith != nil {
		return s.failWith
	}
	if len(s.messages) >= s.limit {
		s.messages = s.messages[1:]
	}
	s.messages = append(s.messages, Message{Channel: channel, Payload: append([]byte(nil), payload...)})
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *MemorySink) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	return nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailWith 之后的 Publish 都返回 err；nil 恢复正常。
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Messages 返回已发布消息的副本
func (s *MemorySink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Published 有新消息时收到通知（合并通知，不计数）
func (s *MemorySink) Published() <-chan struct{} {
	return s.notify
}
