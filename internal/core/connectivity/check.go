package connectivity

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

// probeKey singleflight 共享键，同一时刻最多一个在途探测
const probeKey = "server-health"

// readingSource 设备读数来源
type readingSource int

const (
	sourceInitial  readingSource = iota // Initialize 首次读取
	sourcePull                          // CheckConnection 主动读取
	sourceObserver                      // 观察者推送
)

// probeRequest 探测请求
//
// force 为 true 时忽略防抖窗口，要求使用序号大于 afterGen 的探测结果。
type probeRequest struct {
	force    bool
	afterGen uint64
}

// probeOutcome 一次共享探测的结论
type probeOutcome struct {
	gen       uint64
	reachable bool
	discarded bool
}

// ============================================================================
//                              设备层检查
// ============================================================================

// CheckConnection 仅检查设备层连通性
//
// 读取一次设备状态并写入快照。离线时立即进入 offline；
// 从 offline 恢复在线时乐观地进入 connected 并在后台重新探测服务器。
// 读取失败时保留原有设备字段。读取期间若已有更新的设备读数写入
// （例如观察者推送了离线），本次读数作废，以当前快照为准。
func (m *Machine) CheckConnection(ctx context.Context) bool {
	seen := m.deviceSeq.Load()
	state, err := m.fetch(ctx)
	if err != nil {
		logger.Warn("读取设备状态失败，保留上次结果", "err", err)
		return m.Snapshot().DeviceOnline()
	}
	if !m.onDeviceReading(state, sourcePull, seen) {
		logger.Debug("读取期间设备状态已更新，丢弃过期读数",
			"connected", state.IsConnected)
		return m.Snapshot().DeviceOnline()
	}
	return state.Online()
}

// fetch 读取一次设备状态，观察者 panic 视为读取失败
func (m *Machine) fetch(ctx context.Context) (state types.DeviceState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device fetch panic: %v", r)
		}
	}()
	return m.observer.FetchOnce(ctx)
}

// handleDeviceEvent 处理观察者推送的设备状态
func (m *Machine) handleDeviceEvent(state types.DeviceState) {
	if m.detached.Load() || m.closed.Load() {
		return
	}
	m.metrics.RecordDeviceEvent(state)
	logger.Debug("设备状态变化",
		"connected", state.IsConnected,
		"reachable", state.InternetReachable.String(),
		"type", string(state.Type))
	m.onDeviceReading(state, sourceObserver, 0)
}

// onDeviceReading 把一次设备读数写入快照，并在需要时发起后台探测
//
// 主动读取的读数携带读取前的 deviceSeq；期间若有其他读数写入则丢弃，
// 返回 false。
func (m *Machine) onDeviceReading(state types.DeviceState, source readingSource, seen uint64) bool {
	var (
		kick  bool
		req   probeRequest
		stale bool
	)

	m.commit(func(s *types.NetworkSnapshot) (types.ChangeReason, bool) {
		if source == sourcePull && m.deviceSeq.Load() != seen {
			stale = true
			return types.ReasonUnknown, false
		}
		m.deviceSeq.Add(1)

		prev := s.Status
		setDevice(s, state, m.clock.Now())

		if !state.Online() {
			// 使在途探测的结果失效
			m.offlineEpoch++
			s.Status = types.StatusOffline
			if source == sourceInitial {
				return types.ReasonInitialCheck, true
			}
			return types.ReasonDeviceOffline, true
		}

		switch prev {
		case types.StatusOffline:
			// 乐观恢复，随后由强制探测纠正
			s.Status = types.StatusConnected
			kick, req = true, probeRequest{force: true, afterGen: m.probeGen}
		case types.StatusChecking:
			if source == sourceInitial {
				kick, req = true, probeRequest{force: true, afterGen: m.probeGen}
			} else {
				kick = true
			}
		case types.StatusServerUnavailable:
			// 网络切换后服务器可能已恢复
			if source == sourceObserver {
				kick, req = true, probeRequest{force: true, afterGen: m.probeGen}
			}
		}

		if source == sourceInitial {
			return types.ReasonInitialCheck, true
		}
		return types.ReasonDeviceOnline, true
	})

	if kick {
		m.probeAsync(req)
	}
	return !stale
}

// setDevice 复制设备字段到快照
func setDevice(s *types.NetworkSnapshot, state types.DeviceState, now time.Time) {
	s.IsConnected = state.IsConnected
	s.InternetReachable = state.InternetReachable
	s.ConnectionType = state.Type
	s.LastCheckedAt = now
}

// ============================================================================
//                              服务器层检查
// ============================================================================

// CheckServerHealth 检查服务器健康
//
// 设备离线时不发起探测，直接返回 false。防抖窗口内返回缓存结果；
// 并发调用共享同一个在途探测。调用方 ctx 结束时返回当前缓存结果，
// 在途探测不受影响，仍由硬超时约束。
func (m *Machine) CheckServerHealth(ctx context.Context) bool {
	snap := m.Snapshot()
	if !snap.LastCheckedAt.IsZero() && !snap.DeviceOnline() {
		logger.Debug("设备离线，跳过服务器探测")
		return false
	}
	return m.sharedProbe(ctx, probeRequest{})
}

// probeAsync 在后台发起探测
func (m *Machine) probeAsync(req probeRequest) {
	m.goTracked(func() {
		m.sharedProbe(m.ctx, req)
	})
}

// sharedProbe 通过 singleflight 加入或发起探测
//
// 强制请求加入的探测若早于请求、或其结果被丢弃，则重新发起一次。
func (m *Machine) sharedProbe(ctx context.Context, req probeRequest) bool {
	const maxAttempts = 3

	var out probeOutcome
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ch := m.flight.DoChan(probeKey, func() (any, error) {
			return m.runProbe(req), nil
		})

		select {
		case res := <-ch:
			out = res.Val.(probeOutcome)
		case <-ctx.Done():
			return m.Snapshot().IsServerReachable
		}

		if !req.force || (!out.discarded && out.gen > req.afterGen) {
			break
		}
		if m.closed.Load() {
			break
		}
	}
	return out.reachable
}

// runProbe 执行一次探测（在 singleflight 内调用）
func (m *Machine) runProbe(req probeRequest) probeOutcome {
	gen, epoch, cached, ok := m.beginProbe(req)
	if !ok {
		return cached
	}

	pctx, cancel := m.clock.WithTimeout(m.ctx, m.config.ProbeTimeout)
	start := m.clock.Now()
	result := m.safeProbe(pctx)
	cancel()
	if result.Latency == 0 {
		result.Latency = m.clock.Since(start)
	}
	m.metrics.RecordProbe(result)

	logger.Debug("服务器探测完成",
		"probe", result.ID,
		"outcome", result.Outcome.String(),
		"code", result.StatusCode,
		"latency", result.Latency)

	// 探测期间设备可能已离线，复查一次
	fctx, fcancel := m.clock.WithTimeout(m.ctx, m.config.FetchTimeout)
	state, err := m.fetch(fctx)
	fcancel()
	if err != nil {
		logger.Debug("探测后复查设备状态失败", "err", err)
	}

	return m.finishProbe(gen, epoch, result, state, err)
}

// beginProbe 判断是否需要新探测，需要则登记序号
//
// 返回 ok=false 时 cached 即为结论（设备离线或结果仍新鲜）。
func (m *Machine) beginProbe(req probeRequest) (gen, epoch uint64, cached probeOutcome, ok bool) {
	m.commit(func(s *types.NetworkSnapshot) (types.ChangeReason, bool) {
		if !s.LastCheckedAt.IsZero() && !s.DeviceOnline() {
			cached = probeOutcome{gen: m.probeGen, reachable: false}
			return types.ReasonUnknown, false
		}

		now := m.clock.Now()
		fresh := false
		if req.force {
			fresh = m.probeGen > req.afterGen
		} else if !s.LastServerCheckAt.IsZero() && m.config.DebounceWindow > 0 {
			fresh = now.Sub(s.LastServerCheckAt) < m.config.DebounceWindow
		}

		if fresh {
			m.metrics.RecordDebounced()
			cached = probeOutcome{gen: m.probeGen, reachable: s.IsServerReachable}
			// 设备已恢复在线而状态仍停留在 checking，按缓存结论落定
			if s.Status == types.StatusChecking && s.DeviceOnline() {
				return m.settle(s, s.IsServerReachable)
			}
			return types.ReasonUnknown, false
		}

		m.probeGen++
		gen, epoch, ok = m.probeGen, m.offlineEpoch, true
		s.LastServerCheckAt = now
		return types.ReasonUnknown, true
	})
	return gen, epoch, cached, ok
}

// finishProbe 写入探测结论，过期的结论被丢弃
func (m *Machine) finishProbe(gen, epoch uint64, result interfaces.ProbeResult, state types.DeviceState, fetchErr error) probeOutcome {
	out := probeOutcome{gen: gen, reachable: result.Reachable()}

	m.commit(func(s *types.NetworkSnapshot) (types.ChangeReason, bool) {
		if gen != m.probeGen || epoch != m.offlineEpoch {
			out.discarded = true
			out.reachable = s.IsServerReachable && s.DeviceOnline()
			logger.Debug("丢弃过期的探测结果",
				"probe", result.ID,
				"gen", gen,
				"latest", m.probeGen)
			return types.ReasonUnknown, false
		}

		s.IsServerReachable = result.Reachable()
		s.ServerErrorMessage = m.probeErrorMessage(result)

		if fetchErr == nil {
			setDevice(s, state, m.clock.Now())
			if !state.Online() {
				m.offlineEpoch++
				out.reachable = false
				s.Status = types.StatusOffline
				return types.ReasonOfflineDuringProbe, true
			}
		} else if !s.DeviceOnline() && !s.LastCheckedAt.IsZero() {
			out.reachable = false
			s.Status = types.StatusOffline
			return types.ReasonOfflineDuringProbe, true
		}

		return m.settle(s, result.Reachable())
	})
	return out
}

// settle 根据服务器可达性落定在线状态
func (m *Machine) settle(s *types.NetworkSnapshot, reachable bool) (types.ChangeReason, bool) {
	if reachable {
		s.Status = types.StatusConnected
		return types.ReasonProbeSucceeded, true
	}
	s.Status = types.StatusServerUnavailable
	return types.ReasonProbeFailed, true
}

// safeProbe 调用探测器，panic 归类为传输错误
func (m *Machine) safeProbe(ctx context.Context) (result interfaces.ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("服务器探测 panic", "panic", r)
			result = interfaces.ProbeResult{
				Outcome: interfaces.ProbeTransportError,
				Err:     fmt.Errorf("probe panic: %v", r),
			}
		}
	}()
	return m.prober.Probe(ctx)
}

// probeErrorMessage 生成可展示的失败原因
func (m *Machine) probeErrorMessage(result interfaces.ProbeResult) string {
	switch result.Outcome {
	case interfaces.ProbeReachable:
		return ""
	case interfaces.ProbeTimeout:
		return fmt.Sprintf("server did not respond within %s", m.config.ProbeTimeout)
	default:
		return result.ErrorMessage()
	}
}

// ============================================================================
//                              完整检查
// ============================================================================

// CheckFullConnectivity 完整检查
//
// 先检查设备层；离线则直接返回 offline，否则再检查服务器并返回结果状态。
// 检查期间 IsLoading 为 true。
func (m *Machine) CheckFullConnectivity(ctx context.Context) (status types.ConnectionStatus) {
	m.addLoading(1)
	defer m.addLoading(-1)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("完整检查 panic", "panic", r)
			status = m.Status()
		}
	}()

	if !m.CheckConnection(ctx) {
		return types.StatusOffline
	}
	m.CheckServerHealth(ctx)
	return m.Status()
}

// RequireNetwork 完整检查结果是否为已连接
func (m *Machine) RequireNetwork(ctx context.Context) bool {
	return m.CheckFullConnectivity(ctx) == types.StatusConnected
}

// addLoading 调整进行中的完整检查计数
func (m *Machine) addLoading(delta int) {
	m.commit(func(s *types.NetworkSnapshot) (types.ChangeReason, bool) {
		m.loading += delta
		if m.loading < 0 {
			m.loading = 0
		}
		s.IsLoading = m.loading > 0
		return types.ReasonUnknown, true
	})
}

// ============================================================================
//                              后台恢复
// ============================================================================

// recoveryLoop 在 server_unavailable 期间周期性重新探测
func (m *Machine) recoveryLoop(ctx context.Context) {
	ticker := m.clock.Ticker(m.config.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Status() != types.StatusServerUnavailable {
				continue
			}
			logger.Debug("服务器不可用，后台重新探测")
			m.sharedProbe(ctx, probeRequest{})
		}
	}
}
