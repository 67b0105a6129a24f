package connstate

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/internal/core/banner"
	"github.com/dep2p/go-connstate/internal/core/connectivity"
	"github.com/dep2p/go-connstate/internal/core/device"
	"github.com/dep2p/go-connstate/internal/core/gate"
	"github.com/dep2p/go-connstate/internal/core/health"
	"github.com/dep2p/go-connstate/internal/core/metrics"
	"github.com/dep2p/go-connstate/internal/debug/introspect"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置注入与可替换组件（时钟、观察者、探测器）
//  2. 指标 → 设备观察者 → 健康探测器 → 连通性状态机
//  3. 门控 → 横幅 → 本地状态 API
//  4. 用户自定义 Fx 选项
func buildFxApp(cfg *config.Config, opts *options, c *Client) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(cfg),
	}
	if opts.clock != nil {
		clk := opts.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 指标与核心组件
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, metrics.Module)

	if opts.observer != nil {
		observer := opts.observer
		modules = append(modules, fx.Provide(func() interfaces.DeviceObserver { return observer }))
	} else {
		modules = append(modules, device.Module())
	}

	if opts.prober != nil {
		prober := opts.prober
		modules = append(modules, fx.Provide(func() interfaces.HealthProber { return prober }))
	} else {
		modules = append(modules, health.Module())
	}

	modules = append(modules, connectivity.Module())

	// ════════════════════════════════════════════════════════════════════════
	// 3. 展示层与本地状态 API
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		gate.Module(),
		banner.Module(),
		introspect.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展与组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, opts.fxOptions...)
	modules = append(modules,
		fx.Invoke(injectClientComponents(c)),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: fxZapLogger(cfg.Log.Level)}
		}),
	)

	return fx.New(modules...), nil
}

// fxZapLogger 返回 Fx 事件日志器
//
// 仅在 debug 级别输出 Fx 内部事件。
func fxZapLogger(level string) *zap.Logger {
	if !strings.EqualFold(level, "debug") {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fx")
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入辅助函数
// ════════════════════════════════════════════════════════════════════════════

// clientInjectParams Client 组件注入参数
type clientInjectParams struct {
	fx.In

	// 核心组件（必需）
	Machine *connectivity.Machine
	Gate    *gate.Gate
	Banner  *banner.Banner

	// 可选组件
	Metrics *metrics.Recorder  `optional:"true"`
	API     *introspect.Server `optional:"true"`
}

// injectClientComponents 创建 Client 组件注入函数
func injectClientComponents(c *Client) interface{} {
	return func(params clientInjectParams) {
		c.machine = params.Machine
		c.gate = params.Gate
		c.banner = params.Banner
		c.metrics = params.Metrics
		c.api = params.API

		if c.opts.onRestored != nil {
			c.gate.SetOnConnectionRestored(c.opts.onRestored)
		}
	}
}
