package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// ============================================================================
//                              NoOp Prober
// ============================================================================

// NoOpProber 空操作探测器
//
// 未配置服务器地址时使用：只要设备在线即视为已连接。
type NoOpProber struct{}

// NewNoOpProber 创建空操作探测器
func NewNoOpProber() *NoOpProber {
	return &NoOpProber{}
}

// Probe 总是返回可达
func (p *NoOpProber) Probe(_ context.Context) interfaces.ProbeResult {
	return interfaces.ProbeResult{
		ID:      uuid.NewString(),
		Outcome: interfaces.ProbeReachable,
	}
}

// ============================================================================
//                              Mock Prober (用于测试)
// ============================================================================

// MockProber 可控的模拟探测器（用于测试）
type MockProber struct {
	outcome    atomic.Int32
	statusCode atomic.Int32
	probeCount atomic.Int64

	mu    sync.Mutex
	gate  chan struct{}
	hook  func(ctx context.Context)
	panic any
}

// NewMockProber 创建模拟探测器，默认返回可达
func NewMockProber() *MockProber {
	p := &MockProber{}
	p.SetOutcome(interfaces.ProbeReachable, 200)
	return p
}

// SetOutcome 设置探测结论
func (p *MockProber) SetOutcome(outcome interfaces.ProbeOutcome, statusCode int) {
	p.outcome.Store(int32(outcome))
	p.statusCode.Store(int32(statusCode))
}

// SetHook 设置探测过程中执行的回调（在阻塞之前调用）
func (p *MockProber) SetHook(fn func(ctx context.Context)) {
	p.mu.Lock()
	p.hook = fn
	p.mu.Unlock()
}

// SetPanic 使后续探测发生 panic
func (p *MockProber) SetPanic(v any) {
	p.mu.Lock()
	p.panic = v
	p.mu.Unlock()
}

// Block 使后续探测阻塞，直到调用返回的 release 或 ctx 结束
func (p *MockProber) Block() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.gate = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.gate == gate {
				p.gate = nil
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}

// Probe 返回预设的结果
func (p *MockProber) Probe(ctx context.Context) interfaces.ProbeResult {
	p.probeCount.Add(1)

	p.mu.Lock()
	gate, hook, pv := p.gate, p.hook, p.panic
	p.mu.Unlock()

	if pv != nil {
		panic(pv)
	}
	if hook != nil {
		hook(ctx)
	}

	result := interfaces.ProbeResult{ID: uuid.NewString()}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			result.Outcome = interfaces.ProbeTimeout
			result.Err = ctx.Err()
			return result
		}
	}

	result.Outcome = interfaces.ProbeOutcome(p.outcome.Load())
	result.StatusCode = int(p.statusCode.Load())
	if result.Outcome != interfaces.ProbeReachable {
		result.Err = errors.New("mock probe: " + result.Outcome.String())
	}
	return result
}

// ProbeCount 获取探测次数
func (p *MockProber) ProbeCount() int64 {
	return p.probeCount.Load()
}

// ResetProbeCount 重置探测计数
func (p *MockProber) ResetProbeCount() {
	p.probeCount.Store(0)
}
