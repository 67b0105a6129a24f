// Package connectivity 实现连通性状态机
//
// Machine 拥有进程内唯一的 NetworkSnapshot，合并两路输入：
//   - 设备观察者（FetchOnce + Subscribe）给出设备层连通性
//   - 服务器探测器给出应用服务器可达性
//
// 状态取值为 checking / connected / offline / server_unavailable，
// 设备离线总是优先于服务器不可用。
//
// 探测规则：
//   - 同一时刻最多一个在途探测，并发调用共享结果（singleflight）
//   - 防抖窗口内返回缓存结果
//   - 探测有硬超时，超时即取消请求
//   - 过期探测（序号落后或期间设备离线）的结果被丢弃
//
// 状态变更通过 Subscribe（通道）与 OnChange（同步监听器）两种方式发布，
// 两者都按写入顺序投递。
package connectivity

import (
	"github.com/dep2p/go-connstate/pkg/lib/log"
)

var logger = log.Logger("core/connectivity")
