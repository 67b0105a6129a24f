package connectivity

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("connectivity",
		fx.Provide(
			ProvideMachine,
			func(m *Machine) interfaces.ConnectivityMachine { return m },
		),
		fx.Invoke(registerLifecycle),
	)
}

// machineParams 状态机依赖参数
type machineParams struct {
	fx.In

	Config   *config.Config `optional:"true"`
	Observer interfaces.DeviceObserver
	Prober   interfaces.HealthProber
	Clock    clock.Clock                    `optional:"true"`
	Metrics  interfaces.ConnectivityMetrics `optional:"true"`
}

// ProvideMachine 提供连通性状态机
func ProvideMachine(params machineParams) *Machine {
	cfg := DefaultConfig()
	if params.Config != nil {
		cfg = FromServerConfig(params.Config.Server)
	}

	var opts []Option
	if params.Clock != nil {
		opts = append(opts, WithClock(params.Clock))
	}
	if params.Metrics != nil {
		opts = append(opts, WithMetrics(params.Metrics))
	}
	return NewMachine(cfg, params.Observer, params.Prober, opts...)
}

// registerLifecycle 注册生命周期
//
// 启动时执行首次检查并订阅观察者，停止时取消订阅并关闭状态机。
func registerLifecycle(lc fx.Lifecycle, m *Machine) {
	var cancel func()
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			cancel = m.Initialize(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			if cancel != nil {
				cancel()
			}
			m.Close()
			return nil
		},
	})
}
