// Package types 定义 go-connstate 公共类型
//
// 本文件定义连通性相关类型：连接状态、设备状态、网络快照与状态变更事件。
package types

import (
	"fmt"
	"time"
)

// ============================================================================
//                              ConnectionStatus - 连接状态
// ============================================================================

// ConnectionStatus 规范连接状态
//
// 四个取值互斥且穷尽，不存在"部分连接"。
// Offline 优先于 ServerUnavailable：设备级信号比服务器探测更权威。
type ConnectionStatus int

const (
	// StatusChecking 初始状态，首次判定完成之前
	StatusChecking ConnectionStatus = iota
	// StatusConnected 设备在线且最近一次服务器探测成功
	StatusConnected
	// StatusOffline 设备无网络或互联网不可达
	StatusOffline
	// StatusServerUnavailable 设备在线但服务器探测失败或超时
	StatusServerUnavailable
)

// String 返回状态的字符串表示
func (s ConnectionStatus) String() string {
	switch s {
	case StatusChecking:
		return "checking"
	case StatusConnected:
		return "connected"
	case StatusOffline:
		return "offline"
	case StatusServerUnavailable:
		return "server_unavailable"
	default:
		return "unknown"
	}
}

// IsProblem 是否为需要提示用户的故障状态
func (s ConnectionStatus) IsProblem() bool {
	return s == StatusOffline || s == StatusServerUnavailable
}

// MarshalText 实现 encoding.TextMarshaler
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *ConnectionStatus) UnmarshalText(text []byte) error {
	v, err := ParseConnectionStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseConnectionStatus 从字符串解析连接状态
func ParseConnectionStatus(s string) (ConnectionStatus, error) {
	switch s {
	case "checking":
		return StatusChecking, nil
	case "connected":
		return StatusConnected, nil
	case "offline":
		return StatusOffline, nil
	case "server_unavailable":
		return StatusServerUnavailable, nil
	default:
		return StatusChecking, fmt.Errorf("unknown connection status %q", s)
	}
}

// ============================================================================
//                              InternetReachability - 互联网可达性
// ============================================================================

// InternetReachability 互联网可达性（三态）
//
// ReachabilityUnknown 按"可达"处理，避免平台短暂上报未知时误报离线。
type InternetReachability int

const (
	// ReachabilityUnknown 平台未给出结论
	ReachabilityUnknown InternetReachability = iota
	// ReachabilityReachable 互联网可达
	ReachabilityReachable
	// ReachabilityUnreachable 互联网不可达
	ReachabilityUnreachable
)

// String 返回可达性的字符串表示
func (r InternetReachability) String() string {
	switch r {
	case ReachabilityReachable:
		return "reachable"
	case ReachabilityUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// AssumeReachable 未知视为可达
func (r InternetReachability) AssumeReachable() bool {
	return r != ReachabilityUnreachable
}

// MarshalText 实现 encoding.TextMarshaler
func (r InternetReachability) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ============================================================================
//                              ConnectionType - 传输类型
// ============================================================================

// ConnectionType 传输类型
//
// 仅用于展示，不单独驱动任何状态转换。
type ConnectionType string

const (
	ConnectionTypeUnknown  ConnectionType = "unknown"
	ConnectionTypeNone     ConnectionType = "none"
	ConnectionTypeWiFi     ConnectionType = "wifi"
	ConnectionTypeCellular ConnectionType = "cellular"
	ConnectionTypeEthernet ConnectionType = "ethernet"
	ConnectionTypeVPN      ConnectionType = "vpn"
	ConnectionTypeOther    ConnectionType = "other"
)

// ============================================================================
//                              DeviceState - 设备连通性
// ============================================================================

// DeviceState 设备连通性原始读数
type DeviceState struct {
	// IsConnected 是否存在可用传输
	IsConnected bool `json:"is_connected"`

	// InternetReachable 互联网可达性
	InternetReachable InternetReachability `json:"internet_reachable"`

	// Type 传输类型
	Type ConnectionType `json:"connection_type"`

	// Interface 首选接口名称（可为空）
	Interface string `json:"interface,omitempty"`

	// Gateway 默认网关（可为空）
	Gateway string `json:"gateway,omitempty"`
}

// Online 设备是否视为在线
func (d DeviceState) Online() bool {
	return d.IsConnected && d.InternetReachable.AssumeReachable()
}

// ============================================================================
//                              NetworkSnapshot - 网络快照
// ============================================================================

// NetworkSnapshot 网络状态快照
//
// 进程内唯一实例的值拷贝。零值时间表示尚未检查。
type NetworkSnapshot struct {
	IsConnected       bool                 `json:"is_connected"`
	InternetReachable InternetReachability `json:"internet_reachable"`
	ConnectionType    ConnectionType       `json:"connection_type"`
	IsServerReachable bool                 `json:"is_server_reachable"`
	Status            ConnectionStatus     `json:"status"`

	LastCheckedAt     time.Time `json:"last_checked_at"`
	LastServerCheckAt time.Time `json:"last_server_check_at"`

	// ServerErrorMessage 最近一次探测失败原因，成功时清空
	ServerErrorMessage string `json:"server_error_message,omitempty"`

	// IsLoading 完整检查进行中
	IsLoading bool `json:"is_loading"`

	// InitialCheckDone 首次判定已完成（状态离开 checking 后保持为 true）
	InitialCheckDone bool `json:"initial_check_done"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceOnline 快照中的设备是否视为在线
func (s NetworkSnapshot) DeviceOnline() bool {
	return s.IsConnected && s.InternetReachable.AssumeReachable()
}

// ============================================================================
//                              StatusChange - 状态变更事件
// ============================================================================

// ChangeReason 状态变更原因
type ChangeReason int

const (
	ReasonUnknown ChangeReason = iota
	ReasonInitialCheck
	ReasonDeviceOffline
	ReasonDeviceOnline
	ReasonProbeSucceeded
	ReasonProbeFailed
	ReasonOfflineDuringProbe
	ReasonManualRetry
)

// String 返回原因的字符串表示
func (r ChangeReason) String() string {
	switch r {
	case ReasonInitialCheck:
		return "initial_check"
	case ReasonDeviceOffline:
		return "device_offline"
	case ReasonDeviceOnline:
		return "device_online"
	case ReasonProbeSucceeded:
		return "probe_succeeded"
	case ReasonProbeFailed:
		return "probe_failed"
	case ReasonOfflineDuringProbe:
		return "offline_during_probe"
	case ReasonManualRetry:
		return "manual_retry"
	default:
		return "unknown"
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (r ChangeReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// StatusChange 状态变更事件
type StatusChange struct {
	Previous  ConnectionStatus `json:"previous"`
	Current   ConnectionStatus `json:"current"`
	Reason    ChangeReason     `json:"reason"`
	Snapshot  NetworkSnapshot  `json:"snapshot"`
	Timestamp time.Time        `json:"timestamp"`
}

// Recovered 是否为从故障恢复到已连接
func (c StatusChange) Recovered() bool {
	return c.Previous.IsProblem() && c.Current == StatusConnected
}
