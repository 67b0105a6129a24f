package config

import (
	"fmt"
	"net/url"
	"time"
)

// ServerConfig 服务器健康探测配置
type ServerConfig struct {
	// BaseURL 应用服务器地址
	// 为空时不做服务器检查，设备在线即视为已连接
	BaseURL string `json:"base_url" yaml:"base_url"`

	// HealthPath 探测路径（任意低成本的列表接口）
	// 默认值: health
	HealthPath string `json:"health_path" yaml:"health_path"`

	// HealthQuery 探测查询串
	// 默认值: limit=1
	HealthQuery string `json:"health_query" yaml:"health_query"`

	// ProbeTimeout 单次探测硬超时
	// 默认值: 8s
	ProbeTimeout Duration `json:"probe_timeout" yaml:"probe_timeout"`

	// DebounceWindow 探测防抖窗口，窗口内返回缓存结果
	// 默认值: 5s
	DebounceWindow Duration `json:"debounce_window" yaml:"debounce_window"`

	// RecoveryInterval server_unavailable 期间后台重探间隔，0 表示禁用
	// 默认值: 15s
	RecoveryInterval Duration `json:"recovery_interval" yaml:"recovery_interval"`

	// UserAgent 探测请求的 User-Agent
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// DefaultServerConfig 返回默认的服务器探测配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HealthPath:       "health",
		HealthQuery:      "limit=1",
		ProbeTimeout:     Duration(8 * time.Second),
		DebounceWindow:   Duration(5 * time.Second),
		RecoveryInterval: Duration(15 * time.Second),
		UserAgent:        "go-connstate",
	}
}

// Validate 验证服务器探测配置
func (c *ServerConfig) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("server: invalid base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server: base_url scheme must be http or https, got %q", u.Scheme)
		}
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("server: probe_timeout must be positive")
	}
	if c.DebounceWindow < 0 {
		return fmt.Errorf("server: debounce_window must be >= 0")
	}
	if c.RecoveryInterval < 0 {
		return fmt.Errorf("server: recovery_interval must be >= 0")
	}
	return nil
}
