package introspect

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/internal/core/gate"
	"github.com/dep2p/go-connstate/internal/core/metrics"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// Module 返回本地状态服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// IntrospectParams 状态服务依赖参数
type IntrospectParams struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Machine    interfaces.ConnectivityMachine
	Gate       *gate.Gate        `optional:"true"`
	Metrics    *metrics.Recorder `optional:"true"`
}

// IntrospectOutput 状态服务输出
type IntrospectOutput struct {
	fx.Out

	Server *Server `optional:"true"`
}

// ConfigFromUnified 从统一配置创建状态服务配置
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil || !cfg.API.Enabled {
		return nil // 禁用时返回 nil
	}
	addr := cfg.API.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Config{
		Addr: addr,
	}
}

// NewFromParams 从参数创建状态服务
func NewFromParams(params IntrospectParams) IntrospectOutput {
	cfg := ConfigFromUnified(params.UnifiedCfg)
	if cfg == nil {
		return IntrospectOutput{} // 禁用时返回空输出
	}

	// 设置依赖组件
	cfg.Machine = params.Machine
	cfg.Gate = params.Gate
	cfg.Metrics = params.Metrics

	return IntrospectOutput{
		Server: New(*cfg),
	}
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return // 禁用时跳过
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}
