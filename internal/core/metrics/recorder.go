package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

const namespace = "connstate"

// 确保实现接口
var _ interfaces.ConnectivityMetrics = (*Recorder)(nil)

// allStatuses 状态序列，用于初始化状态 gauge
var allStatuses = []types.ConnectionStatus{
	types.StatusChecking,
	types.StatusConnected,
	types.StatusOffline,
	types.StatusServerUnavailable,
}

// ============================================================================
//                              Recorder
// ============================================================================

// Recorder Prometheus 连通性指标记录器
type Recorder struct {
	registry *prometheus.Registry

	status        *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	debounced     prometheus.Counter
	deviceEvents  *prometheus.CounterVec

	// 本地计数，用于快照
	probesTotal       atomic.Int64
	probesFailed      atomic.Int64
	transitionsTotal  atomic.Int64
	debouncedTotal    atomic.Int64
	deviceEventsTotal atomic.Int64
	current           atomic.Int32
	lastProbeNanos    atomic.Int64

	startTime time.Time
}

// NewRecorder 创建指标记录器
//
// withRuntime 为 true 时同时注册 Go 运行时与进程指标。
func NewRecorder(withRuntime bool) *Recorder {
	r := &Recorder{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	r.status = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Current connection status (1 for the active status)",
		},
		[]string{"status"},
	)
	r.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of connection status transitions",
		},
		[]string{"from", "to", "reason"},
	)
	r.probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total number of server health probes",
		},
		[]string{"outcome"},
	)
	r.probeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Duration of server health probes in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 8.0},
		},
	)
	r.debounced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_debounced_total",
			Help:      "Total number of probe requests answered from cache",
		},
	)
	r.deviceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_events_total",
			Help:      "Total number of device connectivity events",
		},
		[]string{"connected", "type"},
	)

	r.registry.MustRegister(
		r.status,
		r.transitions,
		r.probes,
		r.probeDuration,
		r.debounced,
		r.deviceEvents,
	)
	if withRuntime {
		r.registry.MustRegister(collectors.NewGoCollector())
		r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	r.setStatus(types.StatusChecking)
	return r
}

// Registry 返回私有注册表
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler 返回 /metrics 处理器
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ============================================================================
//                              ConnectivityMetrics 实现
// ============================================================================

// RecordProbe 记录一次探测
func (r *Recorder) RecordProbe(result interfaces.ProbeResult) {
	r.probes.WithLabelValues(result.Outcome.String()).Inc()
	r.probeDuration.Observe(result.Latency.Seconds())

	r.probesTotal.Add(1)
	if !result.Reachable() {
		r.probesFailed.Add(1)
	}
	r.lastProbeNanos.Store(int64(result.Latency))
}

// RecordTransition 记录一次状态变更
func (r *Recorder) RecordTransition(change types.StatusChange) {
	r.transitions.WithLabelValues(
		change.Previous.String(),
		change.Current.String(),
		change.Reason.String(),
	).Inc()
	r.transitionsTotal.Add(1)
	r.setStatus(change.Current)
}

// RecordDeviceEvent 记录一次设备事件
func (r *Recorder) RecordDeviceEvent(state types.DeviceState) {
	r.deviceEvents.WithLabelValues(
		strconv.FormatBool(state.Online()),
		string(state.Type),
	).Inc()
	r.deviceEventsTotal.Add(1)
}

// RecordDebounced 记录一次防抖命中
func (r *Recorder) RecordDebounced() {
	r.debounced.Inc()
	r.debouncedTotal.Add(1)
}

func (r *Recorder) setStatus(current types.ConnectionStatus) {
	for _, s := range allStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		r.status.WithLabelValues(s.String()).Set(v)
	}
	r.current.Store(int32(current))
}
