package connstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/internal/core/banner"
	"github.com/dep2p/go-connstate/internal/core/connectivity"
	"github.com/dep2p/go-connstate/internal/core/gate"
	"github.com/dep2p/go-connstate/internal/core/metrics"
	"github.com/dep2p/go-connstate/internal/debug/introspect"
	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/lib/log"
	"github.com/dep2p/go-connstate/pkg/types"
)

var logger = log.Logger("connstate")

// startTimeout 启动超时（Fx App Start）
const startTimeout = 30 * time.Second

// ════════════════════════════════════════════════════════════════════════════
//                              Client
// ════════════════════════════════════════════════════════════════════════════

// Client 连通性客户端
//
// 组装设备观察者、服务器探测器、连通性状态机、门控、横幅、
// 指标与可选的本地状态 API。Start 之后才能使用各组件。
type Client struct {
	opts   *options
	config *config.Config
	app    *fx.App

	// 由 Fx 注入
	machine *connectivity.Machine
	gate    *gate.Gate
	banner  *banner.Banner
	metrics *metrics.Recorder
	api     *introspect.Server

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 创建客户端
//
// 只组装组件，不发起任何网络操作。
func New(opts ...Option) (*Client, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	cfg := o.toConfig()
	if err := configureLogging(cfg.Log); err != nil {
		return nil, err
	}

	c := &Client{
		opts:   o,
		config: cfg,
	}

	var err error
	c.app, err = buildFxApp(cfg, o, c)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	if err := c.app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return c, nil
}

// Start 快捷启动函数
//
// 等价于 New() + Start()。
func Start(ctx context.Context, opts ...Option) (*Client, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start client: %w", err)
	}
	return c, nil
}

// configureLogging 按配置重建日志输出
func configureLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	format, err := log.ParseFormat(cfg.Format)
	if err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	log.Configure(log.Options{Level: level, Format: format})
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动客户端
//
// 启动设备观察者、执行首次检查并订阅设备事件，启用时开启本地状态 API。
// 首次服务器探测异步进行，Start 返回时状态可能仍为 checking。
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := c.app.Start(startCtx); err != nil {
		logger.Error("客户端启动失败", "error", err)
		return fmt.Errorf("start failed: %w", err)
	}

	c.started = true
	logger.Info("连通性客户端已启动",
		"status", c.machine.Status().String(),
		"api", c.APIAddr())
	return nil
}

// Stop 停止客户端
//
// 按启动的逆序停止各组件并汇总所有错误。停止后客户端不可再次启动。
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	if !c.started {
		return ErrNotStarted
	}

	var err error
	if stopErr := c.app.Stop(ctx); stopErr != nil {
		for _, e := range multierr.Errors(stopErr) {
			logger.Warn("组件停止失败", "error", e)
		}
		err = multierr.Append(err, stopErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = multierr.Append(err, fmt.Errorf("stop interrupted: %w", ctxErr))
	}

	c.started = false
	c.closed = true
	logger.Info("连通性客户端已停止")
	return err
}

// Close 使用默认超时停止客户端
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.Stop(ctx)
	if errors.Is(err, ErrNotStarted) {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	return err
}

// ════════════════════════════════════════════════════════════════════════════
//                              组件访问
// ════════════════════════════════════════════════════════════════════════════

// Config 返回生效的配置
func (c *Client) Config() *config.Config {
	return c.config
}

// Machine 返回连通性状态机
func (c *Client) Machine() interfaces.ConnectivityMachine {
	return c.machine
}

// Gate 返回连通性门控
func (c *Client) Gate() *gate.Gate {
	return c.gate
}

// Banner 返回状态横幅
func (c *Client) Banner() *banner.Banner {
	return c.banner
}

// Metrics 返回指标记录器
func (c *Client) Metrics() *metrics.Recorder {
	return c.metrics
}

// APIAddr 返回本地状态 API 的监听地址，未启用时为空
func (c *Client) APIAddr() string {
	if c.api == nil {
		return ""
	}
	return c.api.Addr()
}

// ════════════════════════════════════════════════════════════════════════════
//                              便捷方法
// ════════════════════════════════════════════════════════════════════════════

// Snapshot 返回当前快照
func (c *Client) Snapshot() types.NetworkSnapshot {
	return c.machine.Snapshot()
}

// Status 返回当前状态
func (c *Client) Status() types.ConnectionStatus {
	return c.machine.Status()
}

// View 返回当前 UI 指令
func (c *Client) View() gate.Directives {
	return c.gate.View()
}

// Retry 手动重试完整检查
func (c *Client) Retry(ctx context.Context) error {
	if err := c.checkRunning(); err != nil {
		return err
	}
	return c.gate.Retry(ctx)
}

// Check 执行一次完整检查并返回结果状态
func (c *Client) Check(ctx context.Context) (types.ConnectionStatus, error) {
	if err := c.checkRunning(); err != nil {
		return types.StatusChecking, err
	}
	return c.machine.CheckFullConnectivity(ctx), nil
}

// OnChange 注册状态变更监听器，返回取消函数
func (c *Client) OnChange(fn func(types.StatusChange)) func() {
	return c.machine.OnChange(fn)
}

// OnBanner 注册横幅可见性回调
func (c *Client) OnBanner(fn func(banner.Visibility)) {
	c.banner.OnVisible(fn)
}

func (c *Client) checkRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.started {
		return ErrNotStarted
	}
	return nil
}
