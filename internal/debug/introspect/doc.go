// Package introspect 提供本地连通性状态 HTTP 服务
//
// 该服务运行在本地端口，以 JSON 输出当前连通性快照与 UI 指令，
// 并通过 WebSocket 推送状态变更。默认绑定到 127.0.0.1，不暴露到网络。
//
// # 端点
//
//	GET  /status                   - 当前快照、UI 指令与指标摘要 (JSON)
//	GET  /status/stream            - 状态变更推送 (WebSocket)
//	POST /retry                    - 手动重试完整检查
//	GET  /metrics                  - Prometheus 指标
//	GET  /debug/introspect/runtime - 运行时信息
//	GET  /debug/pprof/*            - Go pprof 端点
//	GET  /health                   - 健康检查
//
// # 使用示例
//
//	server := introspect.New(introspect.Config{
//	    Addr:    "127.0.0.1:7070",
//	    Machine: machine,
//	})
//	server.Start(ctx)
//	defer server.Stop()
//
//	// curl http://127.0.0.1:7070/status
//
// # 安全
//
// 默认只监听本地地址。/retry 会触发对服务器的真实探测，
// 如需远程访问，请确保配置适当的访问控制。
//
// 通过 config.API.Enabled 配置启用。
package introspect
