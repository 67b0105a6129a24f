package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

// ErrClosed 门控已关闭
var ErrClosed = errors.New("gate: closed")

// ============================================================================
//                              视图类型
// ============================================================================

// Directives UI 指令
//
// ShowLoading 为 true 时其余三个都为 false；否则三者恰好一个为 true。
type Directives struct {
	ShowLoading     bool `json:"show_loading"`
	ShowContent     bool `json:"show_content"`
	ShowOffline     bool `json:"show_offline"`
	ShowServerError bool `json:"show_server_error"`
}

// Derive 从快照推导 UI 指令
//
// 加载态只覆盖首次判定完成之前；之后的刷新检查保留当前页面，
// 进行中的检查通过 RawState.IsLoading 暴露。
func Derive(snap types.NetworkSnapshot) Directives {
	if snap.Status == types.StatusChecking || (snap.IsLoading && !snap.InitialCheckDone) {
		return Directives{ShowLoading: true}
	}

	switch snap.Status {
	case types.StatusOffline:
		return Directives{ShowOffline: true}
	case types.StatusServerUnavailable:
		return Directives{ShowServerError: true}
	default:
		return Directives{ShowContent: true}
	}
}

// RawState 底层连通性字段，供需要更细粒度控制的调用方使用
type RawState struct {
	ConnectionStatus    types.ConnectionStatus `json:"connection_status"`
	IsLoading           bool                   `json:"is_loading"`
	IsConnected         bool                   `json:"is_connected"`
	IsInternetReachable bool                   `json:"is_internet_reachable"`
	IsServerReachable   bool                   `json:"is_server_reachable"`
	ServerErrorMessage  string                 `json:"server_error_message,omitempty"`
}

// ============================================================================
//                              Gate
// ============================================================================

// Gate 连通性门控
type Gate struct {
	machine interfaces.ConnectivityMachine

	mu         sync.RWMutex
	onRestored func()

	// wasDisconnected 进入 offline / server_unavailable 时置位，触发恢复回调后清除
	wasDisconnected atomic.Bool

	stop   func()
	closed atomic.Bool
}

// Option 门控选项
type Option func(*Gate)

// WithOnConnectionRestored 设置连接恢复回调
func WithOnConnectionRestored(fn func()) Option {
	return func(g *Gate) { g.onRestored = fn }
}

// New 创建门控并注册状态监听
func New(machine interfaces.ConnectivityMachine, opts ...Option) *Gate {
	g := &Gate{machine: machine}
	for _, opt := range opts {
		opt(g)
	}

	if machine.Status().IsProblem() {
		g.wasDisconnected.Store(true)
	}
	g.stop = machine.OnChange(g.handleChange)
	return g
}

// View 返回当前 UI 指令
func (g *Gate) View() Directives {
	return Derive(g.machine.Snapshot())
}

// Raw 返回底层连通性字段
func (g *Gate) Raw() RawState {
	snap := g.machine.Snapshot()
	return RawState{
		ConnectionStatus:    snap.Status,
		IsLoading:           snap.IsLoading,
		IsConnected:         snap.IsConnected,
		IsInternetReachable: snap.InternetReachable.AssumeReachable(),
		IsServerReachable:   snap.IsServerReachable,
		ServerErrorMessage:  snap.ServerErrorMessage,
	}
}

// SetOnConnectionRestored 替换连接恢复回调
func (g *Gate) SetOnConnectionRestored(fn func()) {
	g.mu.Lock()
	g.onRestored = fn
	g.mu.Unlock()
}

// Retry 执行完整检查
//
// 结果为 connected 且此前处于断开状态时触发恢复回调。
// ctx 结束时返回 ctx 的错误。
func (g *Gate) Retry(ctx context.Context) error {
	if g.closed.Load() {
		return ErrClosed
	}

	status := g.machine.CheckFullConnectivity(ctx)
	logger.Debug("手动重试完成", "status", status.String())

	if status == types.StatusConnected {
		g.fireRestored()
	}
	return ctx.Err()
}

// Close 停止监听状态变化
func (g *Gate) Close() {
	if !g.closed.CompareAndSwap(false, true) {
		return
	}
	if g.stop != nil {
		g.stop()
	}
}

// handleChange 状态监听器（在状态机序列器内调用）
func (g *Gate) handleChange(change types.StatusChange) {
	switch {
	case change.Current.IsProblem():
		g.wasDisconnected.Store(true)
	case change.Current == types.StatusConnected:
		// 回调不在序列器内执行，允许其再次调用状态机
		if g.wasDisconnected.CompareAndSwap(true, false) {
			go g.invokeRestored()
		}
	}
}

// fireRestored 断开标志置位时触发一次恢复回调
func (g *Gate) fireRestored() {
	if g.wasDisconnected.CompareAndSwap(true, false) {
		g.invokeRestored()
	}
}

func (g *Gate) invokeRestored() {
	g.mu.RLock()
	fn := g.onRestored
	g.mu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("连接恢复回调 panic", "panic", r)
		}
	}()
	logger.Info("连接已恢复")
	fn()
}
