package config

import (
	"fmt"
	"net"
	"time"
)

// DeviceConfig 设备连通性观察配置
type DeviceConfig struct {
	// PollInterval 接口轮询间隔
	// 默认值: 2s
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`

	// FastPollInterval 检测到变化后的快速轮询间隔
	// 默认值: 500ms
	FastPollInterval Duration `json:"fast_poll_interval" yaml:"fast_poll_interval"`

	// FastPollDuration 快速轮询持续时间
	// 默认值: 10s
	FastPollDuration Duration `json:"fast_poll_duration" yaml:"fast_poll_duration"`

	// DNSResolver 用于判断互联网可达性的 DNS 服务器（host:port）
	// 为空时互联网可达性为 unknown
	// 默认值: 1.1.1.1:53
	DNSResolver string `json:"dns_resolver" yaml:"dns_resolver"`

	// DNSQueryName 查询的域名
	// 默认值: dns.google.
	DNSQueryName string `json:"dns_query_name" yaml:"dns_query_name"`

	// DNSTimeout DNS 查询超时
	// 默认值: 1500ms
	DNSTimeout Duration `json:"dns_timeout" yaml:"dns_timeout"`

	// GatewayLookup 是否查询默认网关
	// 默认值: true
	GatewayLookup bool `json:"gateway_lookup" yaml:"gateway_lookup"`
}

// DefaultDeviceConfig 返回默认的设备观察配置
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		PollInterval:     Duration(2 * time.Second),
		FastPollInterval: Duration(500 * time.Millisecond),
		FastPollDuration: Duration(10 * time.Second),
		DNSResolver:      "1.1.1.1:53",
		DNSQueryName:     "dns.google.",
		DNSTimeout:       Duration(1500 * time.Millisecond),
		GatewayLookup:    true,
	}
}

// Validate 验证设备观察配置
func (c *DeviceConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("device: poll_interval must be positive")
	}
	if c.FastPollInterval <= 0 || c.FastPollInterval > c.PollInterval {
		return fmt.Errorf("device: fast_poll_interval must be in (0, poll_interval]")
	}
	if c.FastPollDuration < 0 {
		return fmt.Errorf("device: fast_poll_duration must be >= 0")
	}
	if c.DNSResolver != "" {
		if _, _, err := net.SplitHostPort(c.DNSResolver); err != nil {
			return fmt.Errorf("device: invalid dns_resolver %q: %w", c.DNSResolver, err)
		}
		if c.DNSQueryName == "" {
			return fmt.Errorf("device: dns_query_name is required when dns_resolver is set")
		}
		if c.DNSTimeout <= 0 {
			return fmt.Errorf("device: dns_timeout must be positive")
		}
	}
	return nil
}
