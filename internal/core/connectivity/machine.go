package connectivity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

// ============================================================================
//                              Machine
// ============================================================================

// Machine 连通性状态机
//
// 拥有进程内唯一的 NetworkSnapshot。所有写入都经过 commit 串行化：
// seqMu 覆盖"修改 + 通知"，mu 只保护读取。FetchOnce、HTTP 探测与
// 订阅调用期间不持有任何锁。
type Machine struct {
	config   *Config
	observer interfaces.DeviceObserver
	prober   interfaces.HealthProber
	clock    clock.Clock
	metrics  interfaces.ConnectivityMetrics

	// seqMu 串行化快照修改与通知
	seqMu sync.Mutex

	// mu 保护 snap 读取
	mu   sync.RWMutex
	snap types.NetworkSnapshot

	// 以下字段只在 seqMu 内读写
	probeGen     uint64 // 最近一次发出的探测序号
	offlineEpoch uint64 // 每次进入设备离线递增
	loading      int    // 进行中的完整检查数量

	// deviceSeq 已写入的设备读数计数；只在 seqMu 内递增，主动读取前无锁读取
	deviceSeq atomic.Uint64

	// flight 共享在途探测
	flight singleflight.Group

	// 状态变更订阅者
	subscribers   []chan types.StatusChange
	subscribersMu sync.RWMutex

	// 同步监听器（按注册顺序调用）
	listeners   []*listener
	listenersMu sync.RWMutex
	nextID      uint64

	// Initialize 句柄
	initMu     sync.Mutex
	initCancel func()
	detached   atomic.Bool

	// 运行状态
	ctx    context.Context
	cancel context.CancelFunc
	runMu  sync.Mutex
	wg     sync.WaitGroup
	closed atomic.Bool
}

// 确保实现接口
var _ interfaces.ConnectivityMachine = (*Machine)(nil)

// Option 状态机选项
type Option func(*Machine)

// WithClock 设置时钟
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithMetrics 设置指标记录器
func WithMetrics(r interfaces.ConnectivityMetrics) Option {
	return func(m *Machine) {
		if r != nil {
			m.metrics = r
		}
	}
}

// NewMachine 创建连通性状态机
//
// 快照初始状态为 checking。
func NewMachine(config *Config, observer interfaces.DeviceObserver, prober interfaces.HealthProber, opts ...Option) *Machine {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	m := &Machine{
		config:   config,
		observer: observer,
		prober:   prober,
		clock:    clock.New(),
		metrics:  nopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.snap = types.NetworkSnapshot{
		InternetReachable: types.ReachabilityUnknown,
		ConnectionType:    types.ConnectionTypeUnknown,
		Status:            types.StatusChecking,
		UpdatedAt:         m.clock.Now(),
	}
	return m
}

// ============================================================================
//                              生命周期
// ============================================================================

// Initialize 首次检查并订阅观察者
//
// 立即读取一次设备状态并写入快照：离线则直接进入 offline，
// 在线则异步发起一次服务器探测。随后订阅观察者直到取消。
// 返回的取消函数幂等。重复调用返回同一个句柄。
func (m *Machine) Initialize(ctx context.Context) func() {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.initCancel != nil {
		logger.Warn("状态机已初始化，返回已有句柄")
		return m.initCancel
	}

	state, err := m.fetch(ctx)
	if err != nil {
		logger.Warn("初始设备状态读取失败，保持 checking", "err", err)
	} else {
		m.onDeviceReading(state, sourceInitial, 0)
	}

	unsubscribe := m.observer.Subscribe(m.handleDeviceEvent)

	loopCtx, stopLoop := context.WithCancel(m.ctx)
	if m.config.RecoveryInterval > 0 {
		m.goTracked(func() { m.recoveryLoop(loopCtx) })
	}

	var once sync.Once
	m.initCancel = func() {
		once.Do(func() {
			m.detached.Store(true)
			unsubscribe()
			stopLoop()
			logger.Debug("已取消观察者订阅")
		})
	}

	snap := m.Snapshot()
	logger.Info("连通性状态机已初始化",
		"status", snap.Status,
		"connected", snap.IsConnected,
		"type", snap.ConnectionType)
	return m.initCancel
}

// Close 关闭状态机
//
// 取消订阅、终止在途探测并关闭所有订阅通道。关闭后快照不再变化。
func (m *Machine) Close() {
	m.runMu.Lock()
	if !m.closed.CompareAndSwap(false, true) {
		m.runMu.Unlock()
		return
	}
	m.runMu.Unlock()

	m.initMu.Lock()
	cancel := m.initCancel
	m.initMu.Unlock()
	if cancel != nil {
		cancel()
	}

	m.cancel()
	m.wg.Wait()

	// 在序列器内关闭通道，避免与进行中的通知竞争
	m.seqMu.Lock()
	m.subscribersMu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.subscribersMu.Unlock()
	m.seqMu.Unlock()

	logger.Info("连通性状态机已关闭")
}

// goTracked 启动受 Close 等待的 goroutine，关闭后不再启动
func (m *Machine) goTracked(fn func()) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.closed.Load() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// ============================================================================
//                              查询
// ============================================================================

// Snapshot 返回当前快照的拷贝
func (m *Machine) Snapshot() types.NetworkSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Status 返回当前状态
func (m *Machine) Status() types.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Status
}

// ============================================================================
//                              nopMetrics
// ============================================================================

type nopMetrics struct{}

func (nopMetrics) RecordProbe(interfaces.ProbeResult)  {}
func (nopMetrics) RecordTransition(types.StatusChange) {}
func (nopMetrics) RecordDeviceEvent(types.DeviceState) {}
func (nopMetrics) RecordDebounced()                    {}
