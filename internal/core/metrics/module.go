package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// Config 指标配置
type Config struct {
	// Runtime 是否注册 Go 运行时与进程指标
	Runtime bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Runtime: false,
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	// 暴露本地状态接口时一并导出运行时指标
	c.Runtime = cfg.API.Enabled
	return c
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(
		NewRecorderFromParams,
		fx.Annotate(
			func(r *Recorder) *Recorder { return r },
			fx.As(new(interfaces.ConnectivityMetrics)),
		),
	),
	fx.Invoke(registerLifecycle),
)

// NewRecorderFromParams 从参数创建 Recorder
func NewRecorderFromParams(p Params) *Recorder {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	return NewRecorder(cfg.Runtime)
}

// registerLifecycle 停止时输出最终快照
func registerLifecycle(lc fx.Lifecycle, r *Recorder) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			r.LogSnapshot()
			return nil
		},
	})
}
