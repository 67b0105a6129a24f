package banner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

// ============================================================================
//                              类型
// ============================================================================

// Kind 横幅类型
type Kind int

const (
	// KindNone 不显示
	KindNone Kind = iota
	// KindOffline 设备离线
	KindOffline
	// KindServerError 服务器不可用
	KindServerError
)

// String 返回类型字符串
func (k Kind) String() string {
	switch k {
	case KindOffline:
		return "offline"
	case KindServerError:
		return "server_unavailable"
	default:
		return "none"
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindFor 状态对应的横幅类型
func KindFor(status types.ConnectionStatus) Kind {
	switch status {
	case types.StatusOffline:
		return KindOffline
	case types.StatusServerUnavailable:
		return KindServerError
	default:
		return KindNone
	}
}

// Visibility 横幅可见性
type Visibility struct {
	Kind    Kind      `json:"kind"`
	Visible bool      `json:"visible"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// ============================================================================
//                              Banner
// ============================================================================

// Banner 状态横幅
type Banner struct {
	machine interfaces.ConnectivityMachine
	clock   clock.Clock
	cfg     config.PresentationConfig
	limiter *rate.Limiter

	mu          sync.Mutex
	visible     Kind
	pending     *clock.Timer
	pendingKind Kind
	pendingGen  uint64

	// emitMu 保证可见性回调按变化顺序调用
	emitMu    sync.Mutex
	callbacks []func(Visibility)

	stop    func()
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// Option 横幅选项
type Option func(*Banner)

// WithClock 设置时钟
func WithClock(c clock.Clock) Option {
	return func(b *Banner) { b.clock = c }
}

// New 创建状态横幅
func New(machine interfaces.ConnectivityMachine, cfg config.PresentationConfig, opts ...Option) *Banner {
	b := &Banner{
		machine: machine,
		clock:   clock.New(),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(b)
	}

	guard := cfg.RetryGuard.Duration()
	if guard > 0 {
		b.limiter = rate.NewLimiter(rate.Every(guard), 1)
	} else {
		b.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

// OnVisible 注册可见性变化回调
//
// 回调按变化顺序串行调用，不能同步调用 Retry。
func (b *Banner) OnVisible(fn func(Visibility)) {
	b.emitMu.Lock()
	b.callbacks = append(b.callbacks, fn)
	b.emitMu.Unlock()
}

// Start 开始跟踪状态机
func (b *Banner) Start() {
	if b.closed.Load() || !b.started.CompareAndSwap(false, true) {
		return
	}
	b.stop = b.machine.OnChange(func(change types.StatusChange) {
		b.evaluate(change.Current)
	})
	b.evaluate(b.machine.Status())
}

// Close 停止跟踪并取消待定计时器
func (b *Banner) Close() {
	b.mu.Lock()
	if !b.closed.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return
	}
	b.cancelPendingLocked()
	b.mu.Unlock()

	if b.stop != nil {
		b.stop()
	}
	b.cancel()
	b.wg.Wait()
}

// State 返回当前可见性
func (b *Banner) State() Visibility {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visibilityLocked()
}

// Visible 返回当前显示的横幅类型
func (b *Banner) Visible() Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// ============================================================================
//                              重试
// ============================================================================

// Retry 手动重试
//
// 立即隐藏横幅并在后台执行完整检查。防重入窗口内的调用被忽略并返回 false。
func (b *Banner) Retry() bool {
	if b.closed.Load() {
		return false
	}
	if !b.limiter.AllowN(b.clock.Now(), 1) {
		logger.Debug("重试过于频繁，忽略")
		return false
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return false
	}
	b.cancelPendingLocked()
	changed := b.setVisibleLocked(KindNone)
	b.wg.Add(1)
	b.emitAndUnlock(changed)

	go func() {
		defer b.wg.Done()
		status := b.machine.CheckFullConnectivity(b.ctx)
		logger.Debug("横幅重试完成", "status", status.String())

		// 未恢复时状态可能没有变化，需要主动重新进入延迟
		if !b.closed.Load() {
			b.evaluate(b.machine.Status())
		}
	}()
	return true
}

// ============================================================================
//                              状态跟踪
// ============================================================================

// evaluate 根据状态调整横幅
func (b *Banner) evaluate(status types.ConnectionStatus) {
	kind := KindFor(status)

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return
	}

	var changed bool
	switch {
	case kind == KindNone:
		b.cancelPendingLocked()
		changed = b.setVisibleLocked(KindNone)

	case kind == b.visible:
		b.cancelPendingLocked()

	case b.visible != KindNone:
		// 横幅已显示，直接切换类型
		b.cancelPendingLocked()
		changed = b.setVisibleLocked(kind)

	case b.pending != nil && b.pendingKind == kind:
		// 已在等待同类横幅

	default:
		b.armLocked(kind)
	}
	b.emitAndUnlock(changed)
}

// armLocked 启动延迟计时器
func (b *Banner) armLocked(kind Kind) {
	b.cancelPendingLocked()

	delay := b.delayFor(kind)
	b.pendingGen++
	gen := b.pendingGen
	b.pendingKind = kind
	b.pending = b.clock.AfterFunc(delay, func() { b.fire(gen) })

	logger.Debug("横幅延迟显示", "kind", kind.String(), "delay", delay)
}

// fire 延迟结束，重新读取状态后决定是否显示
func (b *Banner) fire(gen uint64) {
	status := b.machine.Status()

	b.mu.Lock()
	if gen != b.pendingGen || b.pending == nil || b.closed.Load() {
		b.mu.Unlock()
		return
	}
	kind := b.pendingKind
	b.pending = nil
	b.pendingKind = KindNone

	var changed bool
	if KindFor(status) == kind {
		changed = b.setVisibleLocked(kind)
	}
	b.emitAndUnlock(changed)
}

func (b *Banner) delayFor(kind Kind) time.Duration {
	if kind == KindOffline {
		return b.cfg.OfflineBannerDelay.Duration()
	}
	return b.cfg.ServerBannerDelay.Duration()
}

func (b *Banner) cancelPendingLocked() {
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	b.pendingKind = KindNone
	b.pendingGen++
}

func (b *Banner) setVisibleLocked(kind Kind) bool {
	if b.visible == kind {
		return false
	}
	b.visible = kind
	logger.Info("横幅可见性变化", "kind", kind.String(), "visible", kind != KindNone)
	return true
}

func (b *Banner) visibilityLocked() Visibility {
	v := Visibility{
		Kind:    b.visible,
		Visible: b.visible != KindNone,
		At:      b.clock.Now(),
	}
	if b.visible == KindServerError {
		v.Message = b.machine.Snapshot().ServerErrorMessage
	}
	return v
}

// emitAndUnlock 释放 mu 并在需要时调用回调
//
// 释放 mu 之前取得 emitMu，保证回调顺序与变化顺序一致。
func (b *Banner) emitAndUnlock(changed bool) {
	if !changed {
		b.mu.Unlock()
		return
	}
	v := b.visibilityLocked()
	b.emitMu.Lock()
	b.mu.Unlock()
	defer b.emitMu.Unlock()

	for _, fn := range b.callbacks {
		b.callVisible(fn, v)
	}
}

func (b *Banner) callVisible(fn func(Visibility), v Visibility) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("横幅回调 panic", "panic", r)
		}
	}()
	fn(v)
}
