package metrics

import (
	"time"

	"github.com/dep2p/go-connstate/pkg/types"
)

// Snapshot 连通性指标快照
type Snapshot struct {
	Timestamp     time.Time              `json:"timestamp"`
	UptimeSeconds int64                  `json:"uptimeSeconds"`
	Status        types.ConnectionStatus `json:"status"`

	// 探测统计
	ProbesTotal     int64   `json:"probesTotal"`
	ProbesFailed    int64   `json:"probesFailed"`
	ProbesDebounced int64   `json:"probesDebounced"`
	LastProbeMs     float64 `json:"lastProbeMs"`

	// 事件统计
	Transitions  int64 `json:"transitions"`
	DeviceEvents int64 `json:"deviceEvents"`
}

// Snapshot 返回当前计数快照
func (r *Recorder) Snapshot() Snapshot {
	now := time.Now()
	return Snapshot{
		Timestamp:       now,
		UptimeSeconds:   int64(now.Sub(r.startTime).Seconds()),
		Status:          types.ConnectionStatus(r.current.Load()),
		ProbesTotal:     r.probesTotal.Load(),
		ProbesFailed:    r.probesFailed.Load(),
		ProbesDebounced: r.debouncedTotal.Load(),
		LastProbeMs:     float64(r.lastProbeNanos.Load()) / float64(time.Millisecond),
		Transitions:     r.transitionsTotal.Load(),
		DeviceEvents:    r.deviceEventsTotal.Load(),
	}
}

// LogSnapshot 输出一条快照日志
func (r *Recorder) LogSnapshot() {
	s := r.Snapshot()
	logger.Info("连通性指标快照",
		"status", s.Status.String(),
		"probes", s.ProbesTotal,
		"failed", s.ProbesFailed,
		"debounced", s.ProbesDebounced,
		"transitions", s.Transitions,
		"deviceEvents", s.DeviceEvents)
}
