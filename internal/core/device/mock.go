package device

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

var _ interfaces.DeviceObserver = (*MockObserver)(nil)

// MockObserver 模拟设备观察者（用于测试和手动嵌入）
//
// Set 同步地把新状态投递给所有订阅者，调用返回时回调已执行完毕。
type MockObserver struct {
	mu    sync.Mutex
	state types.DeviceState
	err   error

	// setMu 串行化 Set，保证投递顺序
	setMu  sync.Mutex
	emitMu sync.Mutex
	subs   []*subscription

	fetchCount atomic.Int64

	// OnFetch 每次 FetchOnce 前调用（可选）
	OnFetch func()
}

// NewMockObserver 创建模拟观察者
func NewMockObserver(initial types.DeviceState) *MockObserver {
	return &MockObserver{state: initial}
}

// Online 在线的 WiFi 设备状态
func Online() types.DeviceState {
	return types.DeviceState{
		IsConnected:       true,
		InternetReachable: types.ReachabilityReachable,
		Type:              types.ConnectionTypeWiFi,
		Interface:         "wlan0",
	}
}

// Offline 无网络的设备状态
func Offline() types.DeviceState {
	return types.DeviceState{
		IsConnected:       false,
		InternetReachable: types.ReachabilityUnreachable,
		Type:              types.ConnectionTypeNone,
	}
}

// FetchOnce 返回当前模拟状态
func (m *MockObserver) FetchOnce(ctx context.Context) (types.DeviceState, error) {
	m.fetchCount.Add(1)
	if m.OnFetch != nil {
		m.OnFetch()
	}
	if err := ctx.Err(); err != nil {
		return types.DeviceState{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.DeviceState{}, m.err
	}
	return m.state, nil
}

// Subscribe 订阅状态变化
func (m *MockObserver) Subscribe(fn func(types.DeviceState)) func() {
	sub := &subscription{fn: fn, active: true}

	m.emitMu.Lock()
	m.subs = append(m.subs, sub)
	m.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()

			m.emitMu.Lock()
			for i, s := range m.subs {
				if s == sub {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					break
				}
			}
			m.emitMu.Unlock()
		})
	}
}

// Set 设置设备状态并通知订阅者
func (m *MockObserver) Set(state types.DeviceState) {
	m.setMu.Lock()
	defer m.setMu.Unlock()

	m.SetQuiet(state)

	m.emitMu.Lock()
	subs := make([]*subscription, len(m.subs))
	copy(subs, m.subs)
	m.emitMu.Unlock()

	for _, sub := range subs {
		sub.deliver(state)
	}
}

// SetQuiet 设置设备状态但不通知订阅者
//
// 用于模拟平台尚未推送事件、但 FetchOnce 已能读到新状态的窗口。
func (m *MockObserver) SetQuiet(state types.DeviceState) {
	m.mu.Lock()
	m.state = state
	m.err = nil
	m.mu.Unlock()
}

// SetError 使后续 FetchOnce 返回错误
func (m *MockObserver) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// FetchCount 返回 FetchOnce 调用次数
func (m *MockObserver) FetchCount() int {
	return int(m.fetchCount.Load())
}

// SubscriberCount 返回当前订阅者数量
func (m *MockObserver) SubscriberCount() int {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	return len(m.subs)
}
