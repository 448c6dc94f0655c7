// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。实现 session.Observer 与 artifact.OpObserver。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 会话指标
	sessionTicks       *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	phaseDuration      *prometheus.HistogramVec
	payloadsInbound    prometheus.Counter
	payloadsOutbound   *prometheus.CounterVec
	payloadBytes       *prometheus.HistogramVec
	barrierArrived     prometheus.Gauge
	barrierExpected    prometheus.Gauge
	sessionFailures    *prometheus.CounterVec

	// 产物存储指标
	artifactOps        *prometheus.CounterVec
	artifactOpDuration *prometheus.HistogramVec

	// 中继指标
	relayDeliveries *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 会话指标
	c.sessionTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_ticks_total",
			Help:      "Total number of session ticks by phase",
		},
		[]string{"phase"},
	)

	c.sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Total number of session phase transitions",
		},
		[]string{"from", "to"},
	)

	c.phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_phase_duration_seconds",
			Help:      "Time spent in a phase before leaving it",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"phase"},
	)

	c.payloadsInbound = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_inbound_payloads_total",
			Help:      "Total number of accepted inbound payloads",
		},
	)

	c.payloadsOutbound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outbound_payloads_total",
			Help:      "Total number of outbound payloads by kind",
		},
		[]string{"kind"},
	)

	c.payloadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_payload_size_bytes",
			Help:      "Payload size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		},
		[]string{"direction"},
	)

	c.barrierArrived = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_barrier_arrived",
			Help:      "Completion markers seen by the coordinator",
		},
	)

	c.barrierExpected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_barrier_expected",
			Help:      "Completion markers required to finish",
		},
	)

	c.sessionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_failures_total",
			Help:      "Total number of session failures by error code",
		},
		[]string{"code"},
	)

	// 产物存储指标
	c.artifactOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_operations_total",
			Help:      "Total number of artifact store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.artifactOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_operation_duration_seconds",
			Help:      "Artifact store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// 中继指标
	c.relayDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_deliveries_total",
			Help:      "Total number of relay deliveries by target and status",
		},
		[]string{"target", "status"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔄 会话指标记录
// =============================================================================

// ObserveTick 记录一次 tick
func (c *Collector) ObserveTick(phase string) {
	c.sessionTicks.WithLabelValues(phase).Inc()
}

// ObserveTransition 记录阶段迁移及离开阶段的停留时长
func (c *Collector) ObserveTransition(from, to string, d time.Duration) {
	c.sessionTransitions.WithLabelValues(from, to).Inc()
	c.phaseDuration.WithLabelValues(from).Observe(d.Seconds())
}

// ObserveInbound 记录入站负载
func (c *Collector) ObserveInbound(size int) {
	c.payloadsInbound.Inc()
	c.payloadBytes.WithLabelValues("inbound").Observe(float64(size))
}

// ObserveOutbound 记录出站负载
func (c *Collector) ObserveOutbound(kind string, size int) {
	c.payloadsOutbound.WithLabelValues(kind).Inc()
	c.payloadBytes.WithLabelValues("outbound").Observe(float64(size))
}

// ObserveBarrier 记录屏障进度
func (c *Collector) ObserveBarrier(have, need int) {
	c.barrierArrived.Set(float64(have))
	c.barrierExpected.Set(float64(need))
}

// ObserveFailure 记录会话失败
func (c *Collector) ObserveFailure(code string) {
	if code == "" {
		code = "unknown"
	}
	c.sessionFailures.WithLabelValues(code).Inc()
}

// =============================================================================
// 💾 产物存储与中继指标
// =============================================================================

// ObserveArtifactOp 记录产物存储操作
func (c *Collector) ObserveArtifactOp(backend, op string, d time.Duration, err error) {
	c.artifactOps.WithLabelValues(backend, op, outcome(err)).Inc()
	c.artifactOpDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

// RecordRelayDelivery 记录一次中继投递
func (c *Collector) RecordRelayDelivery(target string, err error) {
	c.relayDeliveries.WithLabelValues(target, outcome(err)).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
