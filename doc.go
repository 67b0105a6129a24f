// Package connstate 提供客户端网络连通性与服务器可达性状态机
//
// connstate 把"设备是否联网"和"后端服务器是否可用"合并为一个状态：
//
//   - checking: 首次检查尚未完成
//   - connected: 设备在线且服务器可达
//   - offline: 设备离线（优先级最高，覆盖任何在途探测结果）
//   - server_unavailable: 设备在线但服务器探测失败
//
// # 快速开始
//
//	import "github.com/dep2p/go-connstate"
//
//	client, err := connstate.Start(ctx,
//	    connstate.WithServer("https://api.example.com", "/rest/v1/"),
//	    connstate.WithOnConnectionRestored(func() { reload() }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// UI 指令
//	view := client.View()
//	if view.ShowOffline { ... }
//
//	// 横幅
//	client.OnBanner(func(v banner.Visibility) { ... })
//
//	// 手动重试
//	_ = client.Retry(ctx)
//
// # 组件
//
//	┌──────────────────────────────────────────────────────────────┐
//	│  展示层     Gate (UI 指令 / 恢复回调)   Banner (延迟横幅)       │
//	├──────────────────────────────────────────────────────────────┤
//	│  状态层     connectivity.Machine (唯一快照 / 序列器 / 探测共享)  │
//	├──────────────────────────────────────────────────────────────┤
//	│  输入层     device.Observer (接口 / DNS / 网关)  health.Prober  │
//	├──────────────────────────────────────────────────────────────┤
//	│  辅助       metrics.Recorder   introspect.Server (本地 API)     │
//	└──────────────────────────────────────────────────────────────┘
//
// # 配置
//
// 配置来自 config.NewConfig() 默认值、JSON/YAML 文件（WithConfigFile）、
// CONNSTATE_ 前缀的环境变量，以及选项覆盖，后者优先级最高。
// 未配置服务器地址时只依据设备状态判定连通性。
package connstate
