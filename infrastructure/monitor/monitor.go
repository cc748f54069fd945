package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。nil *Monitor 的方法都是空操作，方便测试中省略。
type Monitor struct {
	registry *prometheus.Registry

	// 行情接收
	eventsReceived *prometheus.CounterVec
	parseFailures  *prometheus.CounterVec

	// 发布
	eventsPublished *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	publishLatency  prometheus.Histogram
	queueDepth      prometheus.Gauge

	// 连接
	wsConnected *prometheus.GaugeVec
	reconnects  *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "flash_arb",
		Subsystem: "gateway",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "events_received_total",
			Help:      "从交易所收到并解析成功的事件数",
		}, []string{"exchange", "kind"}),
		parseFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "parse_failures_total",
			Help:      "丢弃的无法解析的帧",
		}, []string{"exchange", "reason"}),

		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "events_published_total",
			Help:      "成功发布的事件数",
		}, []string{"channel"}),
		publishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "publish_errors_total",
			Help:      "发布失败（事件被丢弃）",
		}, []string{"channel"}),
		publishLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "publish_latency_seconds",
			Help:      "单次发布耗时（秒）",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1.0},
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "queue_depth",
			Help:      "待发布事件队列长度",
		}),

		wsConnected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_connected",
			Help:      "WebSocket连接状态(1=已连接)",
		}, []string{"exchange"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "reconnects_total",
			Help:      "重连尝试次数",
		}, []string{"exchange", "result"}),
	}
}

func (m *Monitor) RecordEventReceived(exchange, kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(exchange, kind).Inc()
}

func (m *Monitor) RecordParseFailure(exchange, reason string) {
	if m == nil {
		return
	}
	m.parseFailures.WithLabelValues(exchange, reason).Inc()
}

// RecordPublished 记录一次成功发布及其耗时
func (m *Monitor) RecordPublished(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(channel).Inc()
	m.publishLatency.Observe(seconds)
}

func (m *Monitor) RecordPublishError(channel string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(channel).Inc()
}

func (m *Monitor) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Monitor) SetConnected(exchange string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.wsConnected.WithLabelValues(exchange).Set(v)
}

// RecordReconnect result 取 "ok" / "failed" / "subscribe_failed"
func (m *Monitor) RecordReconnect(exchange, result string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(exchange, result).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
