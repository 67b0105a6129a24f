// Package banner 实现状态横幅的展示逻辑
//
// 横幅不为瞬时抖动而出现：问题首次出现后，offline 延迟 1s、
// server_unavailable 延迟 2s 才显示，延迟结束时重新读取状态，
// 期间恢复则取消待定计时器，横幅不会出现。
//
// Retry 立即隐藏横幅并在后台重新执行完整检查，2s 内的重复调用被忽略。
// 重试未恢复连接时重新进入延迟。
//
// RenderBanner / RenderFullScreen 输出纯文本内容，供命令行使用。
package banner

import (
	"github.com/dep2p/go-connstate/pkg/lib/log"
)

var logger = log.Logger("core/banner")
