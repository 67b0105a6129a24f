package connstate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/internal/core/banner"
	"github.com/dep2p/go-connstate/internal/core/device"
	"github.com/dep2p/go-connstate/internal/core/health"
	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/types"
)

func newTestClient(t *testing.T, observer *device.MockObserver, prober *health.MockProber, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithDeviceObserver(observer),
		WithHealthProber(prober),
		WithLogLevel("error"),
	}, opts...)

	c, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitClientStatus(t *testing.T, c *Client, want types.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status() == want
	}, 2*time.Second, 5*time.Millisecond, "status never became %s", want)
}

// ============================================================================
//                              生命周期
// ============================================================================

func TestClient_StartStop(t *testing.T) {
	c := newTestClient(t, device.NewMockObserver(device.Online()), health.NewMockProber())

	require.NoError(t, c.Start(context.Background()))
	waitClientStatus(t, c, types.StatusConnected)

	snap := c.Snapshot()
	assert.True(t, snap.IsConnected)
	assert.True(t, snap.IsServerReachable)
	assert.True(t, c.View().ShowContent)
	assert.NotNil(t, c.Machine())
	assert.NotNil(t, c.Gate())
	assert.NotNil(t, c.Banner())
	assert.NotNil(t, c.Metrics())
	assert.Empty(t, c.APIAddr(), "api disabled by default")

	// 重复启动
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, c.Stop(context.Background()))

	// 停止后幂等，且不可再次启动
	assert.NoError(t, c.Stop(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, c.Retry(context.Background()), ErrClosed)
}

func TestClient_NotStarted(t *testing.T) {
	c := newTestClient(t, device.NewMockObserver(device.Online()), health.NewMockProber())

	assert.ErrorIs(t, c.Retry(context.Background()), ErrNotStarted)
	_, err := c.Check(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, c.Stop(context.Background()), ErrNotStarted)

	// Close 对未启动的客户端无错误
	assert.NoError(t, c.Close())
}

func TestClient_Offline(t *testing.T) {
	prober := health.NewMockProber()
	c := newTestClient(t, device.NewMockObserver(device.Offline()), prober)

	require.NoError(t, c.Start(context.Background()))
	waitClientStatus(t, c, types.StatusOffline)

	assert.True(t, c.View().ShowOffline)
	assert.Equal(t, int64(0), prober.ProbeCount())
}

func TestClient_CheckAndRetry(t *testing.T) {
	prober := health.NewMockProber()
	prober.SetOutcome(interfaces.ProbeServerError, 503)

	// 关闭防抖，使手动重试立即重新探测
	cfg := config.NewConfig()
	cfg.Server.DebounceWindow = 0

	var restored atomic.Int32
	c := newTestClient(t, device.NewMockObserver(device.Online()), prober,
		WithConfig(cfg),
		WithOnConnectionRestored(func() { restored.Add(1) }))

	require.NoError(t, c.Start(context.Background()))
	waitClientStatus(t, c, types.StatusServerUnavailable)
	assert.True(t, c.View().ShowServerError)

	status, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusServerUnavailable, status)

	prober.SetOutcome(interfaces.ProbeReachable, 200)
	require.NoError(t, c.Retry(context.Background()))
	assert.Equal(t, types.StatusConnected, c.Status())

	require.Eventually(t, func() bool { return restored.Load() == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestClient_OnChangeAndBanner(t *testing.T) {
	observer := device.NewMockObserver(device.Online())
	c := newTestClient(t, observer, health.NewMockProber())

	changes := make(chan types.StatusChange, 8)
	visible := make(chan banner.Visibility, 8)

	require.NoError(t, c.Start(context.Background()))
	waitClientStatus(t, c, types.StatusConnected)

	cancel := c.OnChange(func(ch types.StatusChange) { changes <- ch })
	defer cancel()
	c.OnBanner(func(v banner.Visibility) { visible <- v })

	observer.Set(device.Offline())

	select {
	case ch := <-changes:
		assert.Equal(t, types.StatusOffline, ch.Current)
		assert.Equal(t, types.ReasonDeviceOffline, ch.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("no status change")
	}

	// 离线横幅在默认 1s 延迟后出现
	select {
	case v := <-visible:
		assert.True(t, v.Visible)
		assert.Equal(t, banner.KindOffline, v.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("offline banner not shown")
	}
}

// ============================================================================
//                              配置与选项
// ============================================================================

func TestClient_WithAPI(t *testing.T) {
	c := newTestClient(t, device.NewMockObserver(device.Online()), health.NewMockProber(),
		WithAPI("127.0.0.1:0"))

	require.NoError(t, c.Start(context.Background()))
	waitClientStatus(t, c, types.StatusConnected)

	addr := c.APIAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_HTTPProber(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/rest/v1/", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(
		WithDeviceObserver(device.NewMockObserver(device.Online())),
		WithServer(srv.URL, "rest/v1/"),
		WithLogLevel("error"),
	)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	waitClientStatus(t, c, types.StatusConnected)
	assert.GreaterOrEqual(t, hits.Load(), int32(1))
}

func TestOptions_ToConfig(t *testing.T) {
	base := config.NewConfig()
	base.Server.BaseURL = "https://base.example.com"
	base.Presentation.OfflineBannerDelay = config.Duration(3 * time.Second)

	o := newOptions()
	for _, opt := range []Option{
		WithConfig(base),
		WithServer("https://override.example.com", ""),
		WithProbeTimeout(4 * time.Second),
		WithAPI("127.0.0.1:9000"),
		WithLogLevel("debug"),
	} {
		require.NoError(t, opt(o))
	}

	cfg := o.toConfig()
	assert.Equal(t, "https://override.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "health", cfg.Server.HealthPath, "empty path keeps default")
	assert.Equal(t, 4*time.Second, cfg.Server.ProbeTimeout.Duration())
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3*time.Second, cfg.Presentation.OfflineBannerDelay.Duration())

	// 基础配置不被修改
	assert.Equal(t, "https://base.example.com", base.Server.BaseURL)
	assert.False(t, base.API.Enabled)
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil config", WithConfig(nil)},
		{"empty base url", WithServer("", "health")},
		{"zero probe timeout", WithProbeTimeout(0)},
		{"nil observer", WithDeviceObserver(nil)},
		{"nil prober", WithHealthProber(nil)},
		{"missing file", WithConfigFile("/nonexistent/connstate.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(WithLogLevel("loud"))
	assert.Error(t, err)

	cfg := config.NewConfig()
	cfg.API.Enabled = true
	cfg.API.Addr = ""
	_, err = New(WithConfig(cfg), WithLogLevel("error"))
	assert.Error(t, err)
}

func TestVersionInfo(t *testing.T) {
	assert.Contains(t, VersionInfo(), Version)

	GitCommit = "0123456789abcdef"
	defer func() { GitCommit = "" }()
	assert.Contains(t, VersionInfo(), "(01234567)")
}
