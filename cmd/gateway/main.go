package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"flash-arb-gateway/config"
	"flash-arb-gateway/internal/container"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径，留空使用默认配置")
	sinkURL := flag.String("sink", "", "发布目标，例如 redis://127.0.0.1:6379")
	symbols := flag.String("symbols", "", "逗号分隔的交易对，例如 BTCUSDT,ETHUSDT")
	exchanges := flag.String("exchanges", "", "逗号分隔的交易所：binance,okx")
	testnet := flag.Bool("testnet", false, "使用测试网/模拟盘地址")
	logLevel := flag.String("log", "", "日志级别 debug|info|warn|error")
	metricsAddr := flag.String("metrics", "", "Prometheus metrics 监听地址，\"off\" 关闭")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	applyFlags(&cfg, *sinkURL, *symbols, *exchanges, *logLevel, *metricsAddr)
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "testnet" {
			cfg.Testnet = *testnet
		}
	})
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("配置无效: %v", err)
	}

	c := container.New(cfg, *cfgPath)
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	lg := c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.PingSink(ctx); err != nil {
		lg.Fatal("sink unreachable", zap.String("url", cfg.Sink.URL), zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		lg.Fatal("start failed", zap.Error(err))
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify ready failed", zap.Error(err))
	} else if ok {
		lg.Info("systemd notified ready")
	}
	go watchdog(ctx, c, lg.Logger)

	lg.Info("gateway running",
		zap.Strings("exchanges", cfg.Exchanges),
		zap.Strings("symbols", cfg.Symbols),
		zap.String("sink", cfg.Sink.URL))

	<-ctx.Done()
	lg.Info("shutdown signal received")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if err := c.Stop(); err != nil {
		log.Printf("stop: %v", err)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.AppConfig, sinkURL, symbols, exchanges, logLevel, metricsAddr string) {
	if sinkURL != "" {
		cfg.Sink.URL = sinkURL
	}
	if strings.TrimSpace(symbols) != "" {
		cfg.Symbols = config.SplitList(symbols)
	}
	if strings.TrimSpace(exchanges) != "" {
		cfg.Exchanges = config.SplitList(exchanges)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	switch metricsAddr {
	case "":
	case "off":
		cfg.Metrics.Addr = ""
	default:
		cfg.Metrics.Addr = metricsAddr
	}
}

// watchdog 在 WatchdogSec 启用时按一半周期上报，组件不健康时跳过
func watchdog(ctx context.Context, c *container.Container, lg *zap.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				lg.Warn("health check failed, skip watchdog ping", zap.Error(err))
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
