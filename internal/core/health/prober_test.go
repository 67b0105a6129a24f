package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

func serverConfig(baseURL string) config.ServerConfig {
	cfg := config.DefaultServerConfig()
	cfg.BaseURL = baseURL
	cfg.HealthPath = "items"
	return cfg
}

// TestHTTPProber_Reachable 测试 200 响应判定为可达
func TestHTTPProber_Reachable(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	p := NewHTTPProber(serverConfig(srv.URL))
	result := p.Probe(context.Background())

	assert.True(t, result.Reachable())
	assert.Equal(t, interfaces.ProbeReachable, result.Outcome)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.NoError(t, result.Err)
	assert.Empty(t, result.ErrorMessage())
	assert.NotEmpty(t, result.ID)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/items", got.URL.Path)
	assert.Equal(t, "1", got.URL.Query().Get("limit"))
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.Equal(t, "go-connstate", got.Header.Get("User-Agent"))

	t.Log("✅ HTTPProber 可达测试通过")
}

// 任意 < 500 的状态码都说明服务器在线
func TestHTTPProber_StatusClassification(t *testing.T) {
	tests := []struct {
		code int
		want interfaces.ProbeOutcome
	}{
		{http.StatusNoContent, interfaces.ProbeReachable},
		{http.StatusFound, interfaces.ProbeReachable},
		{http.StatusUnauthorized, interfaces.ProbeReachable},
		{http.StatusNotFound, interfaces.ProbeReachable},
		{499, interfaces.ProbeReachable},
		{http.StatusInternalServerError, interfaces.ProbeServerError},
		{http.StatusServiceUnavailable, interfaces.ProbeServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code == http.StatusFound {
					w.Header().Set("Location", "/login")
				}
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			result := NewHTTPProber(serverConfig(srv.URL)).Probe(context.Background())
			assert.Equal(t, tt.want, result.Outcome)
			assert.Equal(t, tt.code, result.StatusCode)
			if tt.want != interfaces.ProbeReachable {
				assert.Contains(t, result.ErrorMessage(), "server responded")
			}
		})
	}
}

// 超时取消请求，服务器端能观察到连接被关闭
func TestHTTPProber_Timeout(t *testing.T) {
	cancelled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(cancelled)
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := NewHTTPProber(serverConfig(srv.URL)).Probe(ctx)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, interfaces.ProbeTimeout, result.Outcome)
	assert.False(t, result.Reachable())
	assert.NotEmpty(t, result.ErrorMessage())

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe request cancellation")
	}
}

func TestHTTPProber_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := NewHTTPProber(serverConfig(url)).Probe(context.Background())
	assert.Equal(t, interfaces.ProbeTransportError, result.Outcome)
	assert.Zero(t, result.StatusCode)
	assert.Error(t, result.Err)
}

func TestHTTPProber_NoBaseURL(t *testing.T) {
	result := NewHTTPProber(serverConfig("")).Probe(context.Background())
	assert.Equal(t, interfaces.ProbeTransportError, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrNoBaseURL)
}

func TestBuildTarget(t *testing.T) {
	tests := []struct {
		base, path, query string
		want              string
	}{
		{"https://api.example.com", "items", "limit=1", "https://api.example.com/items?limit=1"},
		{"https://api.example.com/", "/items", "?limit=1", "https://api.example.com/items?limit=1"},
		{"https://api.example.com/v2", "", "", "https://api.example.com/v2"},
		{"", "items", "limit=1", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BuildTarget(tt.base, tt.path, tt.query))
	}
}

// ============================================================================
//                              Mock / NoOp
// ============================================================================

func TestMockProber_Block(t *testing.T) {
	p := NewMockProber()
	release := p.Block()

	done := make(chan interfaces.ProbeResult, 1)
	go func() { done <- p.Probe(context.Background()) }()

	select {
	case <-done:
		t.Fatal("probe should block until released")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release()
	result := <-done
	assert.True(t, result.Reachable())
	assert.EqualValues(t, 1, p.ProbeCount())
}

func TestMockProber_BlockTimeout(t *testing.T) {
	p := NewMockProber()
	defer p.Block()()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := p.Probe(ctx)
	assert.Equal(t, interfaces.ProbeTimeout, result.Outcome)
}

func TestNoOpProber(t *testing.T) {
	assert.True(t, NewNoOpProber().Probe(context.Background()).Reachable())
}

// ============================================================================
//                              Fx 模块
// ============================================================================

func TestModule_ProvidesProber(t *testing.T) {
	t.Run("with base url", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Server.BaseURL = "https://api.example.com"

		var p interfaces.HealthProber
		app := fxtest.New(t, fx.Supply(cfg), Module(), fx.Populate(&p))
		defer app.RequireStart().RequireStop()

		hp, ok := p.(*HTTPProber)
		require.True(t, ok)
		assert.Equal(t, "https://api.example.com/health?limit=1", hp.Target())
	})

	t.Run("without base url", func(t *testing.T) {
		var p interfaces.HealthProber
		app := fxtest.New(t, fx.Supply(config.NewConfig()), Module(), fx.Populate(&p))
		defer app.RequireStart().RequireStop()

		_, ok := p.(*NoOpProber)
		assert.True(t, ok)
		assert.True(t, p.Probe(context.Background()).Reachable())
	})
}
