package connectivity

import (
	"time"

	"github.com/dep2p/go-connstate/pkg/types"
)

// ============================================================================
//                              序列器
// ============================================================================

// commit 在序列器内修改快照
//
// fn 在 seqMu 内执行，返回变更原因；ok 为 false 表示放弃修改。状态发生变化时，
// 在释放 seqMu 之前按注册顺序通知监听器与订阅者，保证事件顺序与写入顺序一致。
// 状态机关闭后不再修改快照。
func (m *Machine) commit(fn func(s *types.NetworkSnapshot) (reason types.ChangeReason, ok bool)) types.NetworkSnapshot {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()

	m.mu.RLock()
	next := m.snap
	m.mu.RUnlock()

	if m.closed.Load() {
		return next
	}

	prev := next.Status
	reason, ok := fn(&next)
	if !ok {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.snap
	}
	if next.Status != types.StatusChecking {
		next.InitialCheckDone = true
	}
	now := m.clock.Now()
	next.UpdatedAt = now

	m.mu.Lock()
	m.snap = next
	m.mu.Unlock()

	if next.Status != prev {
		change := types.StatusChange{
			Previous:  prev,
			Current:   next.Status,
			Reason:    reason,
			Snapshot:  next,
			Timestamp: now,
		}

		logger.Info("连接状态变更",
			"previous", prev.String(),
			"current", next.Status.String(),
			"reason", reason.String())

		m.metrics.RecordTransition(change)
		m.notifyListeners(change)
		m.notifySubscribers(change)
	}
	return next
}

// ============================================================================
//                              订阅（通道）
// ============================================================================

// Subscribe 订阅状态变更事件
func (m *Machine) Subscribe() <-chan types.StatusChange {
	ch := make(chan types.StatusChange, 16)

	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()

	if m.closed.Load() {
		close(ch)
		return ch
	}
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (m *Machine) Unsubscribe(ch <-chan types.StatusChange) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			close(sub)
			lastIdx := len(m.subscribers) - 1
			m.subscribers[i] = m.subscribers[lastIdx]
			m.subscribers = m.subscribers[:lastIdx]
			return
		}
	}
}

// notifySubscribers 通知所有订阅者
//
// 发送期间持有读锁，Unsubscribe 不会在发送过程中关闭通道。
func (m *Machine) notifySubscribers(change types.StatusChange) {
	m.subscribersMu.RLock()
	defer m.subscribersMu.RUnlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- change:
		default:
			logger.Warn("订阅者处理过慢，状态变更可能延迟",
				"status", change.Current.String(),
				"reason", change.Reason.String())

			select {
			case ch <- change:
			case <-time.After(100 * time.Millisecond):
				logger.Error("订阅者无响应，丢弃状态变更通知",
					"status", change.Current.String())
			}
		}
	}
}

// ============================================================================
//                              监听器（同步回调）
// ============================================================================

type listener struct {
	id uint64
	fn func(types.StatusChange)
}

// OnChange 注册同步监听器
//
// 监听器在序列器内按注册顺序调用，必须快速返回，
// 且不能同步调用状态机的 Check* 操作（需要时另起 goroutine）。
func (m *Machine) OnChange(fn func(types.StatusChange)) func() {
	m.listenersMu.Lock()
	m.nextID++
	l := &listener{id: m.nextID, fn: fn}
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		for i, existing := range m.listeners {
			if existing.id == l.id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Machine) notifyListeners(change types.StatusChange) {
	m.listenersMu.RLock()
	listeners := make([]*listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		m.callListener(l, change)
	}
}

func (m *Machine) callListener(l *listener, change types.StatusChange) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("状态监听器 panic", "listener", l.id, "panic", r)
		}
	}()
	l.fn(change)
}
