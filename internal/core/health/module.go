package health

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(ProvideProber),
	)
}

// proberParams 探测器依赖参数
type proberParams struct {
	fx.In

	Config *config.Config `optional:"true"`
	Clock  clock.Clock    `optional:"true"`
}

// ProvideProber 提供服务器健康探测器
//
// 未配置 BaseURL 时退化为 NoOpProber，只依据设备状态判定连通性。
func ProvideProber(params proberParams) interfaces.HealthProber {
	cfg := config.DefaultServerConfig()
	if params.Config != nil {
		cfg = params.Config.Server
	}

	if cfg.BaseURL == "" {
		logger.Warn("服务器地址未配置，跳过服务器探测")
		return NewNoOpProber()
	}

	var opts []Option
	if params.Clock != nil {
		opts = append(opts, WithClock(params.Clock))
	}
	p := NewHTTPProber(cfg, opts...)
	logger.Info("服务器健康探测已配置", "target", p.Target())
	return p
}
