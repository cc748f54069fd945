package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appcfg "flash-arb-gateway/config"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，避免编辑器连续写入触发多次
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: 2 * time.Second,
	}
}

// ReloadHandler 收到重新加载且校验通过的配置。
type ReloadHandler func(cfg appcfg.AppConfig) error

// HotReloader 监听配置文件，变更后重新加载并交给 handler。
type HotReloader struct {
	config     HotReloadConfig
	configPath string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger
	handler    ReloadHandler
	lastReload time.Time
	mu         sync.Mutex
	stopChan   chan struct{}
	doneChan   chan struct{}
	stopOnce   sync.Once
	started    bool
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig, logger *zap.Logger) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HotReloader{
		config:     cfg,
		configPath: filepath.Clean(configPath),
		watcher:    watcher,
		logger:     logger.Named("hot_reload"),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// SetReloadHandler 设置重载处理函数
func (h *HotReloader) SetReloadHandler(handler ReloadHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Start 启动热更新监听
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}

	// 监听所在目录：编辑器常用 rename 覆盖文件，直接 watch 文件会丢事件
	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	h.mu.Lock()
	h.started = true
	h.mu.Unlock()

	go h.watch(ctx)
	return nil
}

// Stop 停止热更新，可重复调用
func (h *HotReloader) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.stopChan)

		h.mu.Lock()
		started := h.started
		h.mu.Unlock()
		if started {
			select {
			case <-h.doneChan:
			case <-time.After(time.Second):
			}
		}
		err = h.watcher.Close()
	})
	return err
}

func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				h.handleConfigChange()
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// handleConfigChange 重新加载配置；冷却期内的事件直接丢弃
func (h *HotReloader) handleConfigChange() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if time.Since(h.lastReload) < h.config.CooldownTime {
		return
	}

	cfg, err := appcfg.LoadWithEnvOverrides(h.configPath)
	if err != nil {
		// 文件可能还没写完，保持旧配置
		h.logger.Warn("reload config failed", zap.String("path", h.configPath), zap.Error(err))
		return
	}

	if h.handler != nil {
		if err := h.handler(cfg); err != nil {
			h.logger.Error("apply reloaded config failed", zap.Error(err))
			return
		}
	}

	h.lastReload = time.Now()
	h.logger.Info("config reloaded", zap.String("path", h.configPath))
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReload
}
