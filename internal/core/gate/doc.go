// Package gate 提供连通性门控视图
//
// Gate 把状态机快照转换为互斥的 UI 指令：加载中只显示加载，
// 否则 ShowContent、ShowOffline、ShowServerError 恰好一个为 true。
//
// Retry 执行完整检查；连接从 offline / server_unavailable 恢复后，
// OnConnectionRestored 回调对每次恢复只触发一次。
package gate

import (
	"github.com/dep2p/go-connstate/pkg/lib/log"
)

var logger = log.Logger("core/gate")
