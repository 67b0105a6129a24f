// Package metrics 提供连通性指标收集
//
// Recorder 实现 interfaces.ConnectivityMetrics，基于 Prometheus 客户端库：
//   - connstate_status：当前状态（每个状态一个序列，当前状态为 1）
//   - connstate_transitions_total：状态变更次数（按 from/to/reason）
//   - connstate_probes_total：服务器探测次数（按结论）
//   - connstate_probe_duration_seconds：探测耗时
//   - connstate_probes_debounced_total：被防抖跳过的探测
//   - connstate_device_events_total：设备事件（按连通性与连接类型）
//
// 指标注册在私有 Registry 上，通过 Handler 暴露，不污染全局默认注册表。
// Snapshot 返回计数快照，用于状态接口与日志。
package metrics

import (
	"github.com/dep2p/go-connstate/pkg/lib/log"
)

var logger = log.Logger("core/metrics")
