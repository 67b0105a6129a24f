package device

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("device",
		fx.Provide(
			ProvideObserver,
			func(o *Observer) interfaces.DeviceObserver { return o },
		),
		fx.Invoke(registerLifecycle),
	)
}

// observerParams 观察者依赖参数
type observerParams struct {
	fx.In

	Config *config.Config `optional:"true"`
	Clock  clock.Clock    `optional:"true"`
}

// ProvideObserver 提供设备连通性观察者
func ProvideObserver(params observerParams) *Observer {
	cfg := config.DefaultDeviceConfig()
	if params.Config != nil {
		cfg = params.Config.Device
	}

	var opts []Option
	if params.Clock != nil {
		opts = append(opts, WithClock(params.Clock))
	}
	return NewObserver(cfg, opts...)
}

// registerLifecycle 注册生命周期
func registerLifecycle(lc fx.Lifecycle, o *Observer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return o.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return o.Stop()
		},
	})
}
