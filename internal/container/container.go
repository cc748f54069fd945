package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"flash-arb-gateway/config"
	"flash-arb-gateway/gateway"
	"flash-arb-gateway/infrastructure/alert"
	"flash-arb-gateway/infrastructure/logger"
	"flash-arb-gateway/infrastructure/monitor"
	"flash-arb-gateway/infrastructure/sink"
	icfg "flash-arb-gateway/internal/config"
	"flash-arb-gateway/internal/engine"
)

const sinkPingTimeout = 5 * time.Second

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	mu         sync.Mutex
	cfg        config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	sink    sink.Sink

	// 交易所与主循环
	registry *gateway.Registry
	engine   *engine.Engine
	reloader *icfg.HotReloader

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例。configPath 为空时不启用热更新。
func New(cfg config.AppConfig, configPath string) *Container {
	return &Container{
		cfg:        cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildGateway(); err != nil {
		return fmt.Errorf("build gateway failed: %w", err)
	}

	if err := c.buildEngine(); err != nil {
		return fmt.Errorf("build engine failed: %w", err)
	}

	if err := c.buildReloader(); err != nil {
		return fmt.Errorf("build hot reload failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built", zap.Strings("components", c.lifecycle.Names()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())

	c.alerts = alert.NewManager(
		[]alert.Channel{alert.NewZapChannel("log", c.logger.Named("alert"))},
		c.cfg.Alert.ThrottleInterval,
	)

	c.sink, err = sink.New(c.cfg.Sink.URL, c.logger.Logger)
	if err != nil {
		return fmt.Errorf("create sink failed: %w", err)
	}

	c.logger.Info("infrastructure built", zap.String("sink", c.cfg.Sink.URL))
	return nil
}

func (c *Container) buildGateway() error {
	ids, err := c.cfg.ExchangeIDs()
	if err != nil {
		return err
	}

	c.registry = gateway.NewRegistry()
	for _, id := range ids {
		a, err := gateway.NewAdapter(id, gateway.Options{
			Testnet:  c.cfg.Testnet,
			Endpoint: c.cfg.EndpointFor(id),
			Logger:   c.logger.Logger,
			Monitor:  c.monitor,
		})
		if err != nil {
			return err
		}
		if err := c.registry.Register(a); err != nil {
			return err
		}
	}

	c.logger.Info("gateway built", zap.Int("exchanges", c.registry.Len()), zap.Bool("testnet", c.cfg.Testnet))
	return nil
}

func (c *Container) buildEngine() error {
	subs, err := c.cfg.Subscriptions()
	if err != nil {
		return err
	}

	c.engine, err = engine.New(engine.Config{
		Subscriptions:     subs,
		ChannelPrefix:     c.cfg.Sink.ChannelPrefix,
		HealthInterval:    c.cfg.Engine.HealthInterval,
		ReconnectInterval: c.cfg.Engine.ReconnectInterval,
		QueueSize:         c.cfg.Engine.QueueSize,
	}, c.registry, c.sink, c.logger.Logger, c.monitor, c.alerts)
	return err
}

func (c *Container) buildReloader() error {
	if c.configPath == "" {
		return nil
	}
	var err error
	c.reloader, err = icfg.NewHotReloader(c.configPath, icfg.DefaultHotReloadConfig(), c.logger.Logger)
	if err != nil {
		return err
	}
	c.reloader.SetReloadHandler(c.applyReload)
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger.Logger,
		})
	}
	c.lifecycle.Register(&sinkComponent{sink: c.sink, timeout: sinkPingTimeout})
	c.lifecycle.Register(&engineComponent{engine: c.engine, logger: c.logger.Logger})
	if c.reloader != nil {
		c.lifecycle.Register(&reloaderComponent{reloader: c.reloader})
	}
}

// applyReload 只热更新日志级别，其余变化提示需要重启
func (c *Container) applyReload(next config.AppConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	levelChanged, restart := config.Diff(c.cfg, next)
	if levelChanged {
		if err := c.logger.SetLevel(next.Log.Level); err != nil {
			return err
		}
		c.logger.Info("log level updated", zap.String("level", next.Log.Level))
		c.cfg.Log.Level = next.Log.Level
	}
	if len(restart) > 0 {
		c.logger.Warn("config changes require restart", zap.Strings("keys", restart))
	}
	return nil
}

// PingSink 检查下游是否可用，启动前调用
func (c *Container) PingSink(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sinkPingTimeout)
	defer cancel()
	return c.sink.Ping(ctx)
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	c.logger.Info("container stopped")
	c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Logger 返回根日志器
func (c *Container) Logger() *logger.Logger { return c.logger }

// Engine 返回网关主循环
func (c *Container) Engine() *engine.Engine { return c.engine }

// Sink 返回发布目标
func (c *Container) Sink() sink.Sink { return c.sink }

// Monitor 返回指标收集器
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }
