package device

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

// gatewayTimeout 默认网关查询超时
const gatewayTimeout = time.Second

var _ interfaces.DeviceObserver = (*Observer)(nil)

// Observer 设备连通性观察者
//
// 使用轮询策略检测网络接口变化：
//   - 正常情况下每 PollInterval 检查一次
//   - 检测到变化后切换到 FastPollInterval 快速轮询，持续 FastPollDuration
//   - NotifyChange 触发立即检查（用于能推送网络变化通知的平台）
//
// 订阅者回调由单个分发 goroutine 串行调用，保证投递顺序。
type Observer struct {
	cfg     config.DeviceConfig
	clock   clock.Clock
	list    InterfaceLister
	reach   ReachabilityChecker
	gateway GatewayFunc

	subMu sync.Mutex
	subs  []*subscription

	// 上次状态（用于变化检测），仅由轮询 goroutine 写入
	stateMu    sync.RWMutex
	lastIfaces []NetInterface
	lastState  types.DeviceState

	events     chan types.DeviceState
	forceCheck chan struct{}

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type subscription struct {
	fn     func(types.DeviceState)
	mu     sync.Mutex
	active bool
}

// deliver 在订阅仍有效时调用回调
//
// 持有订阅锁调用，取消订阅返回后不会再有回调开始执行。
func (s *subscription) deliver(state types.DeviceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.fn(state)
	}
}

// Option 观察者选项
type Option func(*Observer)

// WithClock 设置时钟（测试使用 clock.NewMock）
func WithClock(c clock.Clock) Option {
	return func(o *Observer) { o.clock = c }
}

// WithInterfaceLister 设置接口枚举函数
func WithInterfaceLister(l InterfaceLister) Option {
	return func(o *Observer) { o.list = l }
}

// WithReachabilityChecker 设置互联网可达性检查
func WithReachabilityChecker(c ReachabilityChecker) Option {
	return func(o *Observer) { o.reach = c }
}

// WithGateway 设置默认网关查询函数，nil 表示禁用
func WithGateway(fn GatewayFunc) Option {
	return func(o *Observer) { o.gateway = fn }
}

// NewObserver 创建设备连通性观察者
func NewObserver(cfg config.DeviceConfig, opts ...Option) *Observer {
	o := &Observer{
		cfg:        cfg,
		clock:      clock.New(),
		list:       SystemInterfaces,
		reach:      unknownReachability,
		events:     make(chan types.DeviceState, 16),
		forceCheck: make(chan struct{}, 1),
	}
	if cfg.DNSResolver != "" {
		o.reach = NewDNSChecker(cfg.DNSResolver, cfg.DNSQueryName, cfg.DNSTimeout.Duration())
	}
	if cfg.GatewayLookup {
		o.gateway = SystemGateway
	}

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ============================================================================
//                              DeviceObserver 实现
// ============================================================================

// FetchOnce 读取一次当前设备状态
func (o *Observer) FetchOnce(ctx context.Context) (types.DeviceState, error) {
	state, _, err := o.read(ctx)
	return state, err
}

// Subscribe 订阅设备状态变化
func (o *Observer) Subscribe(fn func(types.DeviceState)) func() {
	sub := &subscription{fn: fn, active: true}

	o.subMu.Lock()
	o.subs = append(o.subs, sub)
	o.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()

			o.subMu.Lock()
			for i, s := range o.subs {
				if s == sub {
					o.subs = append(o.subs[:i], o.subs[i+1:]...)
					break
				}
			}
			o.subMu.Unlock()
		})
	}
}

// CurrentState 返回最近一次轮询得到的状态
func (o *Observer) CurrentState() types.DeviceState {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.lastState
}

// NotifyChange 外部通知网络变化，触发立即检查
func (o *Observer) NotifyChange() {
	logger.Debug("收到外部网络变化通知")
	select {
	case o.forceCheck <- struct{}{}:
	default:
		// 已经有待处理的检查
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动轮询与分发
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.ctx != nil {
		o.mu.Unlock()
		return nil // 已启动
	}
	o.ctx, o.cancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx := o.ctx
	o.mu.Unlock()

	// 基线状态，不通知订阅者
	state, ifaces, err := o.read(runCtx)
	if err != nil {
		logger.Warn("获取初始网络状态失败", "err", err)
	}
	o.stateMu.Lock()
	o.lastIfaces = ifaces
	o.lastState = state
	o.stateMu.Unlock()

	o.wg.Add(2)
	go o.pollLoop(runCtx)
	go o.dispatchLoop(runCtx)

	logger.Info("设备连通性观察已启动",
		"online", state.Online(),
		"type", state.Type,
		"interface", state.Interface)
	return nil
}

// Stop 停止观察
func (o *Observer) Stop() error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	o.wg.Wait()
	logger.Info("设备连通性观察已停止")
	return nil
}

// ============================================================================
//                              轮询
// ============================================================================

// pollLoop 轮询主循环
func (o *Observer) pollLoop(ctx context.Context) {
	defer o.wg.Done()

	normal := o.cfg.PollInterval.Duration()
	fast := o.cfg.FastPollInterval.Duration()

	ticker := o.clock.Ticker(normal)
	defer ticker.Stop()

	var (
		fastMode  bool
		fastUntil time.Time
	)
	enterFast := func() {
		fastUntil = o.clock.Now().Add(o.cfg.FastPollDuration.Duration())
		if !fastMode && fast < normal {
			fastMode = true
			ticker.Reset(fast)
			logger.Debug("进入快速轮询模式")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-o.forceCheck:
			o.checkAndNotify(ctx)
			enterFast()

		case <-ticker.C:
			if o.checkAndNotify(ctx) {
				enterFast()
			} else if fastMode && !o.clock.Now().Before(fastUntil) {
				fastMode = false
				ticker.Reset(normal)
				logger.Debug("退出快速轮询模式")
			}
		}
	}
}

// checkAndNotify 检查状态变化并通知
//
// 返回 true 表示检测到变化
func (o *Observer) checkAndNotify(ctx context.Context) bool {
	state, ifaces, err := o.read(ctx)
	if err != nil {
		logger.Warn("获取网络状态失败", "err", err)
		return false
	}

	o.stateMu.Lock()
	changed := state != o.lastState || interfacesChanged(o.lastIfaces, ifaces)
	prev := o.lastState
	if changed {
		o.lastIfaces = ifaces
		o.lastState = state
	}
	o.stateMu.Unlock()

	if !changed {
		return false
	}

	logger.Info("检测到设备网络变化",
		"wasOnline", prev.Online(),
		"online", state.Online(),
		"type", state.Type,
		"interface", state.Interface,
		"reachability", state.InternetReachable)

	select {
	case o.events <- state:
	case <-ctx.Done():
	}
	return true
}

// read 读取接口并推导设备状态
func (o *Observer) read(ctx context.Context) (types.DeviceState, []NetInterface, error) {
	ifaces, err := o.list()
	if err != nil {
		return types.DeviceState{}, nil, err
	}

	iface, connType, ok := preferredInterface(ifaces)
	if !ok {
		return types.DeviceState{
			IsConnected:       false,
			InternetReachable: types.ReachabilityUnreachable,
			Type:              types.ConnectionTypeNone,
		}, ifaces, nil
	}

	state := types.DeviceState{
		IsConnected:       true,
		InternetReachable: o.reach.Check(ctx),
		Type:              connType,
		Interface:         iface.Name,
	}

	if o.gateway != nil {
		gctx, cancel := o.clock.WithTimeout(ctx, gatewayTimeout)
		gw, err := o.gateway(gctx)
		cancel()
		if err != nil {
			logger.Debug("默认网关查询失败", "err", err)
		} else {
			state.Gateway = gw
		}
	}

	return state, ifaces, nil
}

// ============================================================================
//                              分发
// ============================================================================

// dispatchLoop 串行分发设备状态给所有订阅者
func (o *Observer) dispatchLoop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-o.events:
			o.subMu.Lock()
			subs := make([]*subscription, len(o.subs))
			copy(subs, o.subs)
			o.subMu.Unlock()

			for _, sub := range subs {
				sub.deliver(state)
			}
		}
	}
}
