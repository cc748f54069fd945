package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"flash-arb-gateway/gateway"
	"flash-arb-gateway/infrastructure/alert"
	"flash-arb-gateway/infrastructure/monitor"
	"flash-arb-gateway/infrastructure/sink"
	"flash-arb-gateway/market"
)

// EngineState 引擎状态
type EngineState int

const (
	StateIdle EngineState = iota
	StateStarted
	StateRunning
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarted:
		return "STARTED"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 引擎配置
type Config struct {
	Subscriptions     []market.Subscription // 每个交易所订阅的完整集合
	ChannelPrefix     string
	HealthInterval    time.Duration
	ReconnectInterval time.Duration
	QueueSize         int
	// IdleInterval 读协程在未连接时的轮询间隔
	IdleInterval time.Duration
}

const (
	defaultHealthInterval    = 30 * time.Second
	defaultReconnectInterval = 5 * time.Second
	defaultQueueSize         = 4096
	defaultIdleInterval      = 100 * time.Millisecond
)

// Statistics 引擎统计快照
type Statistics struct {
	StartTime       time.Time
	EventsReceived  int64
	EventsPublished int64
	PublishErrors   int64
	TransportErrors int64
	Reconnects      int64
}

type counters struct {
	received   atomic.Int64
	published  atomic.Int64
	pubErrors  atomic.Int64
	transport  atomic.Int64
	reconnects atomic.Int64
}

// Engine 行情网关主循环：
// 每个适配器一个读协程，事件进入共享的有序队列，由单个分发协程发布到 sink；
// 监督协程负责健康检查和断线重连。
type Engine struct {
	config   Config
	registry *gateway.Registry
	sink     sink.Sink
	logger   *zap.Logger
	monitor  *monitor.Monitor
	alerts   *alert.Manager

	queue chan market.Event

	state     EngineState
	startTime time.Time
	mu        sync.RWMutex

	stats counters
}

// New 创建引擎。monitor 和 alerts 可以为 nil。
func New(cfg Config, registry *gateway.Registry, s sink.Sink, logger *zap.Logger, mon *monitor.Monitor, alerts *alert.Manager) (*Engine, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, errors.New("no exchange adapters configured")
	}
	if s == nil {
		return nil, errors.New("sink is required")
	}
	if len(cfg.Subscriptions) == 0 {
		return nil, errors.New("subscription set is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = defaultIdleInterval
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = sink.DefaultPrefix
	}
	return &Engine{
		config:   cfg,
		registry: registry,
		sink:     s,
		logger:   logger.Named("engine"),
		monitor:  mon,
		alerts:   alerts,
		queue:    make(chan market.Event, cfg.QueueSize),
		state:    StateIdle,
	}, nil
}

// Start 依次连接并订阅每个交易所。连接失败直接返回；订阅失败只记录日志，
// 该交易所保持已连接但未订阅，直到下一次重连。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	e.mu.Unlock()

	e.logger.Info("gateway starting",
		zap.Int("exchanges", e.registry.Len()),
		zap.Int("subscriptions", len(e.config.Subscriptions)))

	for _, a := range e.registry.All() {
		id := a.Exchange().String()
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("connect %s: %w", id, err)
		}
		if err := a.Subscribe(ctx, e.config.Subscriptions); err != nil {
			e.logger.Error("subscribe failed", zap.String("exchange", id), zap.Error(err))
			continue
		}
		e.logger.Info("exchange ready", zap.String("exchange", id), zap.String("endpoint", a.Endpoint()))
	}

	e.mu.Lock()
	e.state = StateStarted
	e.startTime = time.Now()
	e.mu.Unlock()
	return nil
}

// Run 阻塞直到 ctx 取消。
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStarted {
		e.mu.Unlock()
		return fmt.Errorf("engine not started (state: %s)", e.state)
	}
	e.state = StateRunning
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range e.registry.All() {
		a := a
		g.Go(func() error {
			e.readLoop(gctx, a)
			return nil
		})
	}
	g.Go(func() error {
		e.dispatchLoop(gctx)
		return nil
	})
	g.Go(func() error {
		e.supervise(gctx)
		return nil
	})
	err := g.Wait()
	e.logger.Info("gateway loop exited")
	return err
}

// Stop 断开所有交易所连接。
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopped
	e.mu.Unlock()

	for _, a := range e.registry.All() {
		if err := a.Disconnect(); err != nil {
			e.logger.Warn("disconnect failed", zap.String("exchange", a.Exchange().String()), zap.Error(err))
		}
	}
	s := e.Statistics()
	e.logger.Info("gateway stopped",
		zap.Int64("received", s.EventsReceived),
		zap.Int64("published", s.EventsPublished),
		zap.Int64("publish_errors", s.PublishErrors))
	return nil
}

// readLoop 单个交易所的读协程。断线时空转等待监督协程重连。
func (e *Engine) readLoop(ctx context.Context, a gateway.Adapter) {
	id := a.Exchange().String()
	idle := time.NewTicker(e.config.IdleInterval)
	defer idle.Stop()

	for ctx.Err() == nil {
		if !a.IsConnected() {
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		ev, err := a.RecvEvent(ctx)
		if err != nil {
			e.stats.transport.Add(1)
			e.logger.Warn("transport error, waiting for reconnect", zap.String("exchange", id), zap.Error(err))
			continue
		}
		if ev == nil {
			continue
		}
		e.stats.received.Add(1)
		e.monitor.RecordEventReceived(id, ev.Kind().String())
		select {
		case e.queue <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// dispatchLoop 唯一的发布协程，按入队顺序发布。
func (e *Engine) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			e.publish(ctx, ev)
		}
	}
}

func (e *Engine) publish(ctx context.Context, ev market.Event) {
	channel := sink.ChannelFor(e.config.ChannelPrefix, ev.Kind())
	payload, err := sink.Encode(ev)
	if err != nil {
		e.stats.pubErrors.Add(1)
		e.monitor.RecordPublishError(channel)
		e.logger.Error("encode failed", zap.String("channel", channel), zap.Error(err))
		return
	}

	start := time.Now()
	if err := e.sink.Publish(ctx, channel, payload); err != nil {
		e.stats.pubErrors.Add(1)
		e.monitor.RecordPublishError(channel)
		e.logger.Error("publish failed",
			zap.String("channel", channel),
			zap.String("exchange", ev.GetExchange().String()),
			zap.String("symbol", ev.GetSymbol()),
			zap.Error(err))
		return
	}
	e.stats.published.Add(1)
	e.monitor.RecordPublished(channel, time.Since(start).Seconds())

	if ce := e.logger.Check(zapcore.DebugLevel, "event published"); ce != nil {
		ce.Write(
			zap.String("channel", channel),
			zap.String("exchange", ev.GetExchange().String()),
			zap.String("symbol", ev.GetSymbol()),
			zap.String("summary", summarize(ev)))
	}
}

func summarize(ev market.Event) string {
	switch v := ev.(type) {
	case *market.AggTrade:
		return fmt.Sprintf("price=%v", v.Price)
	case *market.Kline:
		return fmt.Sprintf("close=%v", v.Close)
	case *market.BookTicker:
		return fmt.Sprintf("bid=%v ask=%v", v.BidPrice, v.AskPrice)
	case *market.DepthUpdate:
		return "update"
	}
	return ""
}

// supervise 健康检查与重连。重连没有退避也没有次数上限。
func (e *Engine) supervise(ctx context.Context) {
	health := time.NewTicker(e.config.HealthInterval)
	defer health.Stop()
	reconnect := time.NewTicker(e.config.ReconnectInterval)
	defer reconnect.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-health.C:
			e.checkHealth()
		case <-reconnect.C:
			e.reconnect(ctx)
		}
	}
}

func (e *Engine) checkHealth() {
	e.monitor.SetQueueDepth(len(e.queue))
	for _, a := range e.registry.All() {
		id := a.Exchange().String()
		if a.IsConnected() {
			e.monitor.SetConnected(id, true)
			continue
		}
		e.monitor.SetConnected(id, false)
		e.logger.Warn("exchange disconnected", zap.String("exchange", id), zap.String("endpoint", a.Endpoint()))
		if err := e.alerts.ExchangeDisconnected(id, map[string]interface{}{"endpoint": a.Endpoint()}); err != nil {
			e.logger.Warn("send alert failed", zap.Error(err))
		}
	}
}

func (e *Engine) reconnect(ctx context.Context) {
	for _, a := range e.registry.All() {
		if a.IsConnected() {
			continue
		}
		id := a.Exchange().String()
		e.logger.Info("reconnecting", zap.String("exchange", id))
		if err := a.Connect(ctx); err != nil {
			e.monitor.RecordReconnect(id, "failed")
			e.logger.Warn("reconnect failed", zap.String("exchange", id), zap.Error(err))
			continue
		}
		e.stats.reconnects.Add(1)
		if err := a.Subscribe(ctx, e.config.Subscriptions); err != nil {
			e.monitor.RecordReconnect(id, "subscribe_failed")
			e.logger.Error("resubscribe failed", zap.String("exchange", id), zap.Error(err))
			continue
		}
		e.monitor.RecordReconnect(id, "ok")
		e.alerts.ExchangeRecovered(id)
		e.logger.Info("reconnected", zap.String("exchange", id), zap.String("endpoint", a.Endpoint()))
	}
}

// State 当前状态
func (e *Engine) State() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Statistics 返回统计快照
func (e *Engine) Statistics() Statistics {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()
	return Statistics{
		StartTime:       start,
		EventsReceived:  e.stats.received.Load(),
		EventsPublished: e.stats.published.Load(),
		PublishErrors:   e.stats.pubErrors.Load(),
		TransportErrors: e.stats.transport.Load(),
		Reconnects:      e.stats.reconnects.Load(),
	}
}
