// Package health 提供服务器健康探测
//
// HTTPProber 对应用服务器发起一次有界的 GET 请求，并把结果归类为：
//   - reachable: 任意 < 500 的响应（包括 4xx 与重定向）
//   - server_error: 5xx 响应
//   - timeout: ctx 超时
//   - transport_error: 连接、DNS、TLS 等失败
//
// 探测器不解析响应内容，只读取有限字节后关闭响应体。
package health

import (
	"github.com/dep2p/go-connstate/pkg/lib/log"
)

var logger = log.Logger("core/health")
