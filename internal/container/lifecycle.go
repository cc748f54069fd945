package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"flash-arb-gateway/infrastructure/sink"
	"flash-arb-gateway/internal/engine"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 生命周期管理器
type LifecycleManager struct {
	components []Lifecycle
	mu         sync.RWMutex
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		components: make([]Lifecycle, 0),
	}
}

// Register 注册组件
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// Names 按注册顺序返回组件名
func (m *LifecycleManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.components))
	for i, c := range m.components {
		out[i] = c.Name()
	}
	return out
}

// StartAll 按顺序启动所有组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Start(ctx); err != nil {
			// 启动失败，回滚已启动的组件
			for j := i - 1; j >= 0; j-- {
				m.components[j].Stop()
			}
			return fmt.Errorf("start %s: %w", component.Name(), err)
		}
	}
	return nil
}

// StopAll 逆序停止所有组件，返回所有错误
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		if err := m.components[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m.components[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 检查所有组件健康状态
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, component := range m.components {
		if err := component.Health(); err != nil {
			return fmt.Errorf("%s unhealthy: %w", component.Name(), err)
		}
	}
	return nil
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *zap.Logger
	server  *http.Server
	started bool
	mu      sync.Mutex
}

func (h *httpServerComponent) Name() string { return h.name }

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h.handler)
	srv := &http.Server{
		Addr:              h.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	h.server = srv

	// 在后台启动服务器
	go func() {
		h.logger.Info("http server listening", zap.String("component", h.name), zap.String("addr", h.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server failed", zap.String("component", h.name), zap.Error(err))
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}

	h.logger.Info("http server stopped", zap.String("component", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// sinkComponent 启动时 Ping 一次下游，停止时关闭连接
type sinkComponent struct {
	sink    sink.Sink
	timeout time.Duration
}

func (s *sinkComponent) Name() string { return "sink" }

func (s *sinkComponent) Start(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *sinkComponent) Stop() error { return s.sink.Close() }

func (s *sinkComponent) Health() error { return s.ping(context.Background()) }

func (s *sinkComponent) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sink.Ping(ctx)
}

// engineComponent 连接订阅后在后台运行网关主循环
type engineComponent struct {
	engine *engine.Engine
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

func (e *engineComponent) Name() string { return "engine" }

func (e *engineComponent) Start(ctx context.Context) error {
	if err := e.engine.Start(ctx); err != nil {
		// 部分交易所可能已连上
		e.engine.Stop()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		if err := e.engine.Run(runCtx); err != nil {
			e.logger.Error("engine run failed", zap.Error(err))
			e.mu.Lock()
			e.runErr = err
			e.mu.Unlock()
		}
	}()
	return nil
}

func (e *engineComponent) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return e.engine.Stop()
}

func (e *engineComponent) Health() error {
	e.mu.Lock()
	runErr := e.runErr
	e.mu.Unlock()
	if runErr != nil {
		return runErr
	}
	if st := e.engine.State(); st != engine.StateRunning {
		return fmt.Errorf("engine state %s", st)
	}
	return nil
}

// reloaderComponent 包装配置热更新
type reloaderComponent struct {
	reloader interface {
		Start(ctx context.Context) error
		Stop() error
	}
}

func (r *reloaderComponent) Name() string { return "config_reloader" }

func (r *reloaderComponent) Start(ctx context.Context) error { return r.reloader.Start(ctx) }

func (r *reloaderComponent) Stop() error { return r.reloader.Stop() }

func (r *reloaderComponent) Health() error { return nil }
