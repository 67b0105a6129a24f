// Package interfaces 定义 go-connstate 公共接口
//
// 本文件定义连通性组件接口，对应 internal/core/ 下的实现：
// DeviceObserver（设备连通性观察）、HealthProber（服务器健康探测）、
// ConnectivityMachine（连通性状态机）、ConnectivityMetrics（指标记录）。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-connstate/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// DeviceObserver 接口（设备连通性观察）
// ════════════════════════════════════════════════════════════════════════════

// DeviceObserver 设备连通性观察者
//
// 回调可能高频触发，观察者本身不做防抖。
// 同一订阅者的回调按发生顺序串行投递。
type DeviceObserver interface {
	// FetchOnce 读取一次当前设备状态
	FetchOnce(ctx context.Context) (types.DeviceState, error)

	// Subscribe 订阅设备状态变化，返回取消订阅函数
	Subscribe(fn func(types.DeviceState)) (unsubscribe func())
}

// ════════════════════════════════════════════════════════════════════════════
// HealthProber 接口（服务器健康探测）
// ════════════════════════════════════════════════════════════════════════════

// HealthProber 服务器健康探测器
//
// Probe 永不返回 error：所有失败都归类到 ProbeResult 中。
// 调用方通过 ctx 控制超时。
type HealthProber interface {
	Probe(ctx context.Context) ProbeResult
}

// ProbeOutcome 探测结论
type ProbeOutcome int

const (
	// ProbeReachable 收到 < 500 的响应
	ProbeReachable ProbeOutcome = iota
	// ProbeServerError 收到 5xx 响应
	ProbeServerError
	// ProbeTimeout 超时
	ProbeTimeout
	// ProbeTransportError 连接失败、DNS 失败等
	ProbeTransportError
)

// String 返回结论字符串
func (o ProbeOutcome) String() string {
	switch o {
	case ProbeReachable:
		return "reachable"
	case ProbeServerError:
		return "server_error"
	case ProbeTimeout:
		return "timeout"
	case ProbeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// ProbeResult 单次探测结果
type ProbeResult struct {
	// ID 探测 ID，用于日志关联
	ID string

	// Outcome 探测结论
	Outcome ProbeOutcome

	// StatusCode HTTP 状态码（无响应时为 0）
	StatusCode int

	// Err 失败原因（成功时为 nil）
	Err error

	// Latency 探测耗时
	Latency time.Duration
}

// Reachable 服务器是否可达
func (r ProbeResult) Reachable() bool {
	return r.Outcome == ProbeReachable
}

// ErrorMessage 失败原因描述，成功时为空
func (r ProbeResult) ErrorMessage() string {
	if r.Reachable() {
		return ""
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Outcome.String()
}

// ════════════════════════════════════════════════════════════════════════════
// ConnectivityMachine 接口（连通性状态机）
// ════════════════════════════════════════════════════════════════════════════

// ConnectivityMachine 连通性状态机
//
// 拥有唯一的 NetworkSnapshot，所有公开操作都不返回错误。
type ConnectivityMachine interface {
	// Initialize 首次检查并订阅观察者，返回幂等的取消函数
	Initialize(ctx context.Context) (cancel func())

	// CheckConnection 仅检查设备层连通性
	CheckConnection(ctx context.Context) bool

	// CheckServerHealth 检查服务器健康（防抖、共享在途探测）
	CheckServerHealth(ctx context.Context) bool

	// CheckFullConnectivity 完整检查，返回结果状态
	CheckFullConnectivity(ctx context.Context) types.ConnectionStatus

	// RequireNetwork 完整检查结果是否为已连接
	RequireNetwork(ctx context.Context) bool

	// Snapshot 返回当前快照的拷贝
	Snapshot() types.NetworkSnapshot

	// Status 返回当前状态
	Status() types.ConnectionStatus

	// Subscribe 订阅状态变更事件
	Subscribe() <-chan types.StatusChange

	// Unsubscribe 取消订阅
	Unsubscribe(ch <-chan types.StatusChange)

	// OnChange 注册同步监听器，返回取消函数
	OnChange(fn func(types.StatusChange)) (cancel func())
}

// ════════════════════════════════════════════════════════════════════════════
// ConnectivityMetrics 接口（指标记录）
// ════════════════════════════════════════════════════════════════════════════

// ConnectivityMetrics 连通性指标记录器
type ConnectivityMetrics interface {
	// RecordProbe 记录一次探测
	RecordProbe(result ProbeResult)

	// RecordTransition 记录一次状态变更
	RecordTransition(change types.StatusChange)

	// RecordDeviceEvent 记录一次设备事件
	RecordDeviceEvent(state types.DeviceState)

	// RecordDebounced 记录一次被防抖跳过的探测
	RecordDebounced()
}
