package banner

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("banner",
		fx.Provide(ProvideBanner),
		fx.Invoke(registerLifecycle),
	)
}

// bannerParams 横幅依赖参数
type bannerParams struct {
	fx.In

	Machine interfaces.ConnectivityMachine
	Config  *config.Config `optional:"true"`
	Clock   clock.Clock    `optional:"true"`
}

// ProvideBanner 提供状态横幅
func ProvideBanner(params bannerParams) *Banner {
	cfg := config.DefaultPresentationConfig()
	if params.Config != nil {
		cfg = params.Config.Presentation
	}

	var opts []Option
	if params.Clock != nil {
		opts = append(opts, WithClock(params.Clock))
	}
	return New(params.Machine, cfg, opts...)
}

// registerLifecycle 注册生命周期
func registerLifecycle(lc fx.Lifecycle, b *Banner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			b.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			b.Close()
			return nil
		},
	})
}
