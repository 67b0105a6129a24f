package connectivity

import (
	"time"

	"github.com/dep2p/go-connstate/config"
)

// ============================================================================
//                              状态机配置
// ============================================================================

// Config 连通性状态机配置
type Config struct {
	// ProbeTimeout 单次服务器探测硬超时，超时即取消请求
	// 默认值: 8s
	ProbeTimeout time.Duration

	// DebounceWindow 探测防抖窗口
	// 窗口内重复的 CheckServerHealth 返回缓存结果
	// 默认值: 5s
	DebounceWindow time.Duration

	// RecoveryInterval server_unavailable 期间的后台重探间隔
	// 0 表示禁用
	// 默认值: 15s
	RecoveryInterval time.Duration

	// FetchTimeout 探测完成后复查设备状态的超时
	// 默认值: 2s
	FetchTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ProbeTimeout:     8 * time.Second,
		DebounceWindow:   5 * time.Second,
		RecoveryInterval: 15 * time.Second,
		FetchTimeout:     2 * time.Second,
	}
}

// FromServerConfig 从服务器探测配置转换
func FromServerConfig(c config.ServerConfig) *Config {
	cfg := DefaultConfig()
	cfg.ProbeTimeout = c.ProbeTimeout.Duration()
	cfg.DebounceWindow = c.DebounceWindow.Duration()
	cfg.RecoveryInterval = c.RecoveryInterval.Duration()
	cfg.Validate()
	return cfg
}

// Validate 修正无效值
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.DebounceWindow < 0 {
		c.DebounceWindow = def.DebounceWindow
	}
	if c.RecoveryInterval < 0 {
		c.RecoveryInterval = 0
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
}
