package gate

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("gate",
		fx.Provide(ProvideGate),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideGate 提供连通性门控
func ProvideGate(machine interfaces.ConnectivityMachine) *Gate {
	return New(machine)
}

// registerLifecycle 注册生命周期
func registerLifecycle(lc fx.Lifecycle, g *Gate) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			g.Close()
			return nil
		},
	})
}
