// Package device 提供设备连通性观察
//
// 核心功能：
//   - 网络接口轮询与变化检测（正常 2s，变化后 500ms 快速轮询 10s）
//   - 传输类型判定（WiFi/蜂窝/以太网/VPN，按接口名称）
//   - 互联网可达性（DNS 查询）与默认网关查询
//   - 外部变化通知（NotifyChange）
//
// 使用示例：
//
//	obs := device.NewObserver(config.DefaultDeviceConfig())
//	unsubscribe := obs.Subscribe(func(s types.DeviceState) {
//	    fmt.Println("online:", s.Online())
//	})
//	defer unsubscribe()
//
//	obs.Start(ctx)
//	defer obs.Stop()
//
// 观察者本身不做防抖，回调可能高频触发。
package device

import (
	"github.com/dep2p/go-connstate/pkg/lib/log"
)

var logger = log.Logger("core/device")
