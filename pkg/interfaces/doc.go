// Package interfaces 定义 go-connstate 的组件接口
//
// 接口与实现分离：pkg/interfaces 只声明契约，internal/core/* 提供实现，
// 上层（状态机、Gate、状态 API）只依赖这里的接口，测试可替换为 Mock。
//
// # 文件组织
//
//   - connectivity.go - DeviceObserver, HealthProber, ConnectivityMachine, ConnectivityMetrics
package interfaces
