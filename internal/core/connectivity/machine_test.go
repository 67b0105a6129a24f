package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/internal/core/device"
	"github.com/dep2p/go-connstate/internal/core/health"
	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

func testConfig() *Config {
	return &Config{
		ProbeTimeout:     8 * time.Second,
		DebounceWindow:   5 * time.Second,
		RecoveryInterval: 0,
		FetchTimeout:     2 * time.Second,
	}
}

type testEnv struct {
	m        *Machine
	observer *device.MockObserver
	prober   *health.MockProber
}

func newTestEnv(t *testing.T, initial types.DeviceState, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		observer: device.NewMockObserver(initial),
		prober:   health.NewMockProber(),
	}
	env.m = NewMachine(testConfig(), env.observer, env.prober, opts...)
	t.Cleanup(env.m.Close)
	return env
}

func waitStatus(t *testing.T, m *Machine, want types.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Status() == want
	}, 2*time.Second, 5*time.Millisecond, "status never became %s (now %s)", want, m.Status())
}

func waitProbes(t *testing.T, p *health.MockProber, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.ProbeCount() >= n
	}, 2*time.Second, 5*time.Millisecond)
}

// ============================================================================
//                              场景测试
// ============================================================================

// 设备在线、服务器 200 → connected，无错误信息
func TestMachine_ScenarioA_Connected(t *testing.T) {
	env := newTestEnv(t, device.Online())

	assert.Equal(t, types.StatusChecking, env.m.Status())
	assert.False(t, env.m.Snapshot().InitialCheckDone)

	cancel := env.m.Initialize(context.Background())
	defer cancel()

	waitStatus(t, env.m, types.StatusConnected)

	snap := env.m.Snapshot()
	assert.True(t, snap.InitialCheckDone)
	assert.True(t, snap.IsConnected)
	assert.True(t, snap.IsServerReachable)
	assert.Empty(t, snap.ServerErrorMessage)
	assert.False(t, snap.LastCheckedAt.IsZero())
	assert.False(t, snap.LastServerCheckAt.IsZero())
	assert.Equal(t, types.ConnectionTypeWiFi, snap.ConnectionType)

	assert.Equal(t, types.StatusConnected, env.m.CheckFullConnectivity(context.Background()))
	assert.True(t, env.m.RequireNetwork(context.Background()))
	assert.EqualValues(t, 1, env.prober.ProbeCount())

	t.Log("✅ 场景 A 测试通过")
}

// 设备在线、服务器超时 → server_unavailable，错误信息已设置
func TestMachine_ScenarioB_Timeout(t *testing.T) {
	mock := clock.NewMock()
	env := newTestEnv(t, device.Online(), WithClock(mock))
	defer env.prober.Block()()

	cancel := env.m.Initialize(context.Background())
	defer cancel()

	waitProbes(t, env.prober, 1)
	assert.Equal(t, types.StatusChecking, env.m.Status())

	mock.Add(8 * time.Second)
	waitStatus(t, env.m, types.StatusServerUnavailable)

	snap := env.m.Snapshot()
	assert.False(t, snap.IsServerReachable)
	assert.Equal(t, "server did not respond within 8s", snap.ServerErrorMessage)

	t.Log("✅ 场景 B 测试通过")
}

// 设备离线 → offline，且不发起探测
func TestMachine_ScenarioC_Offline(t *testing.T) {
	env := newTestEnv(t, device.Offline())

	cancel := env.m.Initialize(context.Background())
	defer cancel()

	assert.Equal(t, types.StatusOffline, env.m.Status())
	assert.False(t, env.m.CheckServerHealth(context.Background()))
	assert.Equal(t, types.StatusOffline, env.m.CheckFullConnectivity(context.Background()))
	assert.False(t, env.m.RequireNetwork(context.Background()))
	assert.Zero(t, env.prober.ProbeCount())

	t.Log("✅ 场景 C 测试通过")
}

// 离线恢复 → 乐观 connected，探测成功后保持 connected
func TestMachine_ScenarioD_OptimisticReconnect(t *testing.T) {
	env := newTestEnv(t, device.Offline())

	var (
		mu      sync.Mutex
		changes []types.StatusChange
	)
	env.m.OnChange(func(c types.StatusChange) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	cancel := env.m.Initialize(context.Background())
	defer cancel()
	require.Equal(t, types.StatusOffline, env.m.Status())

	env.observer.Set(device.Online())
	assert.Equal(t, types.StatusConnected, env.m.Status())

	waitProbes(t, env.prober, 1)
	require.Eventually(t, func() bool {
		return env.m.Snapshot().IsServerReachable
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, types.StatusConnected, env.m.Status())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	assert.Equal(t, types.StatusOffline, changes[0].Current)
	assert.Equal(t, types.ReasonInitialCheck, changes[0].Reason)
	assert.Equal(t, types.StatusConnected, changes[1].Current)
	assert.Equal(t, types.ReasonDeviceOnline, changes[1].Reason)
	assert.True(t, changes[1].Recovered())
}

// 乐观 connected 之后探测失败 → server_unavailable
func TestMachine_OptimisticReconnect_ProbeFails(t *testing.T) {
	env := newTestEnv(t, device.Offline())
	env.prober.SetOutcome(interfaces.ProbeServerError, http.StatusBadGateway)

	cancel := env.m.Initialize(context.Background())
	defer cancel()

	env.observer.Set(device.Online())
	waitStatus(t, env.m, types.StatusServerUnavailable)
	assert.NotEmpty(t, env.m.Snapshot().ServerErrorMessage)
}

// 两个并发完整检查共享一次探测，返回相同状态
func TestMachine_ScenarioF_SharedProbe(t *testing.T) {
	env := newTestEnv(t, device.Online())
	release := env.prober.Block()

	var wg sync.WaitGroup
	results := make([]types.ConnectionStatus, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.m.CheckFullConnectivity(context.Background())
		}(i)
	}

	waitProbes(t, env.prober, 1)
	require.Eventually(t, func() bool {
		return env.m.Snapshot().IsLoading
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, types.StatusConnected, results[0])
	assert.Equal(t, results[0], results[1])
	assert.EqualValues(t, 1, env.prober.ProbeCount())
	assert.False(t, env.m.Snapshot().IsLoading)

	t.Log("✅ 场景 F 测试通过")
}

// ============================================================================
//                              性质测试
// ============================================================================

// 探测期间观察者报告离线：迟到的成功结果被丢弃
func TestMachine_OfflineWinsOverLateProbe(t *testing.T) {
	env := newTestEnv(t, device.Online())
	release := env.prober.Block()

	cancel := env.m.Initialize(context.Background())
	defer cancel()
	waitProbes(t, env.prober, 1)

	env.observer.Set(device.Offline())
	require.Equal(t, types.StatusOffline, env.m.Status())

	release()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, types.StatusOffline, env.m.Status())
	assert.False(t, env.m.Snapshot().IsServerReachable)
	assert.EqualValues(t, 1, env.prober.ProbeCount())
}

// 探测期间设备离线但观察者尚未推送：探测后的复查发现离线
func TestMachine_OfflineDetectedDuringProbe(t *testing.T) {
	env := newTestEnv(t, device.Online())
	env.prober.SetHook(func(context.Context) {
		env.observer.SetQuiet(device.Offline())
	})

	changes := env.m.Subscribe()
	assert.False(t, env.m.CheckServerHealth(context.Background()))

	assert.Equal(t, types.StatusOffline, env.m.Status())
	select {
	case c := <-changes:
		assert.Equal(t, types.StatusOffline, c.Current)
		assert.Equal(t, types.ReasonOfflineDuringProbe, c.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected status change")
	}
}

// 防抖窗口内最多一次探测
func TestMachine_Debounce(t *testing.T) {
	mock := clock.NewMock()
	env := newTestEnv(t, device.Online(), WithClock(mock))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, env.m.CheckServerHealth(ctx))
	}
	assert.EqualValues(t, 1, env.prober.ProbeCount())

	mock.Add(4 * time.Second)
	assert.True(t, env.m.CheckServerHealth(ctx))
	assert.EqualValues(t, 1, env.prober.ProbeCount())

	mock.Add(2 * time.Second)
	assert.True(t, env.m.CheckServerHealth(ctx))
	assert.EqualValues(t, 2, env.prober.ProbeCount())
}

// 防抖返回的是缓存结论而不是固定值
func TestMachine_DebounceReturnsCachedFailure(t *testing.T) {
	mock := clock.NewMock()
	env := newTestEnv(t, device.Online(), WithClock(mock))
	env.prober.SetOutcome(interfaces.ProbeServerError, http.StatusInternalServerError)

	assert.False(t, env.m.CheckServerHealth(context.Background()))
	env.prober.SetOutcome(interfaces.ProbeReachable, http.StatusOK)
	assert.False(t, env.m.CheckServerHealth(context.Background()))
	assert.EqualValues(t, 1, env.prober.ProbeCount())
	assert.Equal(t, types.StatusServerUnavailable, env.m.Status())
}

// 硬超时会取消真实的 HTTP 请求
func TestMachine_ProbeTimeoutCancelsRequest(t *testing.T) {
	cancelled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(cancelled)
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	scfg := config.DefaultServerConfig()
	scfg.BaseURL = srv.URL

	cfg := testConfig()
	cfg.ProbeTimeout = 100 * time.Millisecond
	m := NewMachine(cfg, device.NewMockObserver(device.Online()), health.NewHTTPProber(scfg))
	defer m.Close()

	start := time.Now()
	assert.False(t, m.CheckServerHealth(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)

	snap := m.Snapshot()
	assert.Equal(t, types.StatusServerUnavailable, snap.Status)
	assert.Equal(t, "server did not respond within 100ms", snap.ServerErrorMessage)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe request cancellation")
	}
}

// 调用方 ctx 结束时立即返回，在途探测继续完成
func TestMachine_CallerContextDoesNotCancelProbe(t *testing.T) {
	env := newTestEnv(t, device.Online())
	release := env.prober.Block()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, env.m.CheckServerHealth(ctx))
	release()

	waitStatus(t, env.m, types.StatusConnected)
	assert.EqualValues(t, 1, env.prober.ProbeCount())
}

// 取消订阅后观察者事件不再修改快照
func TestMachine_UnsubscribeStopsMutations(t *testing.T) {
	env := newTestEnv(t, device.Offline())

	cancel := env.m.Initialize(context.Background())
	require.Equal(t, 1, env.observer.SubscriberCount())

	cancel()
	cancel()
	assert.Equal(t, 0, env.observer.SubscriberCount())

	before := env.m.Snapshot()
	env.observer.Set(device.Online())
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, before, env.m.Snapshot())
	assert.Zero(t, env.prober.ProbeCount())
}

// 未知的互联网可达性视为在线：恢复事件后短暂显示 connected，
// 直到探测在超时内失败
func TestMachine_UnknownReachabilityWindow(t *testing.T) {
	mock := clock.NewMock()
	env := newTestEnv(t, device.Offline(), WithClock(mock))
	env.prober.SetOutcome(interfaces.ProbeTransportError, 0)
	defer env.prober.Block()()

	cancel := env.m.Initialize(context.Background())
	defer cancel()
	require.Equal(t, types.StatusOffline, env.m.Status())

	unknown := device.Online()
	unknown.InternetReachable = types.ReachabilityUnknown
	env.observer.Set(unknown)

	// 已知的延迟窗口：探测落定之前显示为 connected
	assert.Equal(t, types.StatusConnected, env.m.Status())
	assert.True(t, env.m.Snapshot().DeviceOnline())
	waitProbes(t, env.prober, 1)

	mock.Add(7 * time.Second)
	assert.Equal(t, types.StatusConnected, env.m.Status())

	mock.Add(time.Second)
	waitStatus(t, env.m, types.StatusServerUnavailable)
}

// 启动时可达性未知：保持 checking 直到首次探测落定
func TestMachine_UnknownReachabilityAtStartup(t *testing.T) {
	state := device.Online()
	state.InternetReachable = types.ReachabilityUnknown
	env := newTestEnv(t, state)

	cancel := env.m.Initialize(context.Background())
	defer cancel()

	waitStatus(t, env.m, types.StatusConnected)
	assert.Equal(t, types.ReachabilityUnknown, env.m.Snapshot().InternetReachable)
}

// ============================================================================
//                              其他行为
// ============================================================================

func TestMachine_InitializeTwice(t *testing.T) {
	env := newTestEnv(t, device.Offline())

	c1 := env.m.Initialize(context.Background())
	c2 := env.m.Initialize(context.Background())
	assert.Equal(t, 1, env.observer.SubscriberCount())

	c2()
	assert.Equal(t, 0, env.observer.SubscriberCount())
	c1()
}

// 初始读取失败时保持 checking
func TestMachine_InitialFetchError(t *testing.T) {
	env := newTestEnv(t, device.Online())
	env.observer.SetError(errors.New("netlink unavailable"))

	cancel := env.m.Initialize(context.Background())
	defer cancel()

	assert.Equal(t, types.StatusChecking, env.m.Status())
	assert.Zero(t, env.prober.ProbeCount())

	// 读取失败返回上次的设备结论
	assert.False(t, env.m.CheckConnection(context.Background()))
}

// 读取失败保留上次的设备字段
func TestMachine_CheckConnectionFetchError(t *testing.T) {
	env := newTestEnv(t, device.Online())
	require.True(t, env.m.CheckConnection(context.Background()))

	env.observer.SetError(errors.New("temporary failure"))
	assert.True(t, env.m.CheckConnection(context.Background()))
	assert.True(t, env.m.Snapshot().IsConnected)
}

// heldObserver 读取完成后把结果扣住，直到 release 关闭
type heldObserver struct {
	*device.MockObserver

	armed   atomic.Bool
	fetched chan types.DeviceState
	release chan struct{}
}

func (h *heldObserver) FetchOnce(ctx context.Context) (types.DeviceState, error) {
	state, err := h.MockObserver.FetchOnce(ctx)
	if !h.armed.CompareAndSwap(true, false) {
		return state, err
	}
	h.fetched <- state
	<-h.release
	return state, err
}

// 主动读取期间观察者推送了离线，过期的在线读数不能把状态改回 connected
func TestMachine_StalePullReadingDropped(t *testing.T) {
	obs := &heldObserver{
		MockObserver: device.NewMockObserver(device.Online()),
		fetched:      make(chan types.DeviceState, 1),
		release:      make(chan struct{}),
	}
	prober := health.NewMockProber()
	m := NewMachine(testConfig(), obs, prober)
	t.Cleanup(m.Close)

	var changes []types.StatusChange
	var changesMu sync.Mutex
	defer m.OnChange(func(c types.StatusChange) {
		changesMu.Lock()
		changes = append(changes, c)
		changesMu.Unlock()
	})()

	defer m.Initialize(context.Background())()
	waitStatus(t, m, types.StatusConnected)

	obs.armed.Store(true)
	result := make(chan bool, 1)
	go func() { result <- m.CheckConnection(context.Background()) }()

	select {
	case state := <-obs.fetched:
		require.True(t, state.Online())
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	obs.Set(device.Offline())
	waitStatus(t, m, types.StatusOffline)

	close(obs.release)
	select {
	case online := <-result:
		assert.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("CheckConnection did not return")
	}

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, types.StatusOffline, m.Status())
	assert.False(t, m.Snapshot().IsConnected)

	changesMu.Lock()
	defer changesMu.Unlock()
	require.NotEmpty(t, changes)
	assert.Equal(t, types.StatusOffline, changes[len(changes)-1].Current)
}

// 读取期间没有其他读数写入时，主动读取照常生效
func TestMachine_PullReadingApplied(t *testing.T) {
	env := newTestEnv(t, device.Online())
	defer env.m.Initialize(context.Background())()
	waitStatus(t, env.m, types.StatusConnected)

	env.observer.SetQuiet(device.Offline())
	assert.False(t, env.m.CheckConnection(context.Background()))
	assert.Equal(t, types.StatusOffline, env.m.Status())
}

func TestMachine_ProbePanicRecovered(t *testing.T) {
	env := newTestEnv(t, device.Online())
	env.prober.SetPanic("boom")

	assert.False(t, env.m.CheckServerHealth(context.Background()))

	snap := env.m.Snapshot()
	assert.Equal(t, types.StatusServerUnavailable, snap.Status)
	assert.Contains(t, snap.ServerErrorMessage, "probe panic: boom")
}

// 服务器不可用期间观察者报告网络变化，立即重新探测
func TestMachine_NetworkChangeReprobes(t *testing.T) {
	env := newTestEnv(t, device.Online())
	env.prober.SetOutcome(interfaces.ProbeServerError, http.StatusServiceUnavailable)

	cancel := env.m.Initialize(context.Background())
	defer cancel()
	waitStatus(t, env.m, types.StatusServerUnavailable)

	env.prober.SetOutcome(interfaces.ProbeReachable, http.StatusOK)
	cellular := device.Online()
	cellular.Type = types.ConnectionTypeCellular
	cellular.Interface = "rmnet0"
	env.observer.Set(cellular)

	waitStatus(t, env.m, types.StatusConnected)
	assert.Equal(t, types.ConnectionTypeCellular, env.m.Snapshot().ConnectionType)
	assert.Empty(t, env.m.Snapshot().ServerErrorMessage)
}

// server_unavailable 期间后台周期性重探
func TestMachine_RecoveryLoop(t *testing.T) {
	mock := clock.NewMock()
	obs := device.NewMockObserver(device.Online())
	prober := health.NewMockProber()
	prober.SetOutcome(interfaces.ProbeServerError, http.StatusInternalServerError)

	cfg := testConfig()
	cfg.RecoveryInterval = 15 * time.Second
	m := NewMachine(cfg, obs, prober, WithClock(mock))
	defer m.Close()

	cancel := m.Initialize(context.Background())
	defer cancel()
	waitStatus(t, m, types.StatusServerUnavailable)

	prober.SetOutcome(interfaces.ProbeReachable, http.StatusOK)
	require.Eventually(t, func() bool {
		mock.Add(15 * time.Second)
		return m.Status() == types.StatusConnected
	}, 2*time.Second, 10*time.Millisecond)
}

// ============================================================================
//                              通知
// ============================================================================

func TestMachine_SubscribersAndListenersSeeSameOrder(t *testing.T) {
	env := newTestEnv(t, device.Offline())

	ch := env.m.Subscribe()
	var (
		mu   sync.Mutex
		seen []types.ConnectionStatus
	)
	env.m.OnChange(func(c types.StatusChange) {
		mu.Lock()
		seen = append(seen, c.Current)
		mu.Unlock()
	})

	cancel := env.m.Initialize(context.Background())
	defer cancel()
	env.observer.Set(device.Online())
	env.observer.Set(device.Offline())

	var got []types.ConnectionStatus
	for len(got) < 3 {
		select {
		case c := <-ch:
			got = append(got, c.Current)
		case <-time.After(time.Second):
			t.Fatalf("only got %v", got)
		}
	}

	want := []types.ConnectionStatus{types.StatusOffline, types.StatusConnected, types.StatusOffline}
	assert.Equal(t, want, got)
	mu.Lock()
	assert.Equal(t, want, seen)
	mu.Unlock()
}

func TestMachine_ListenerCancelAndPanic(t *testing.T) {
	env := newTestEnv(t, device.Online())

	env.m.OnChange(func(types.StatusChange) { panic("listener bug") })

	calls := 0
	stop := env.m.OnChange(func(types.StatusChange) { calls++ })

	env.observer.Set(device.Offline())
	require.False(t, env.m.CheckConnection(context.Background()))
	assert.Equal(t, 1, calls)

	stop()
	env.observer.SetQuiet(device.Online())
	env.m.CheckConnection(context.Background())
	assert.Equal(t, types.StatusConnected, env.m.Status())
	assert.Equal(t, 1, calls)
}

func TestMachine_CloseClosesSubscribers(t *testing.T) {
	env := newTestEnv(t, device.Online())
	ch := env.m.Subscribe()
	other := env.m.Subscribe()

	env.m.Unsubscribe(other)
	_, ok := <-other
	assert.False(t, ok)

	env.m.Close()
	env.m.Close()

	_, ok = <-ch
	assert.False(t, ok)

	_, ok = <-env.m.Subscribe()
	assert.False(t, ok)

	// 关闭后不再修改快照
	before := env.m.Snapshot()
	env.m.CheckConnection(context.Background())
	assert.Equal(t, before, env.m.Snapshot())
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{ProbeTimeout: -1, DebounceWindow: -1, RecoveryInterval: -1}
	cfg.Validate()

	assert.Equal(t, 8*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 5*time.Second, cfg.DebounceWindow)
	assert.Zero(t, cfg.RecoveryInterval)
	assert.Equal(t, 2*time.Second, cfg.FetchTimeout)

	sc := config.DefaultServerConfig()
	sc.ProbeTimeout = config.Duration(3 * time.Second)
	assert.Equal(t, 3*time.Second, FromServerConfig(sc).ProbeTimeout)
}
