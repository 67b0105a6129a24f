package config

import (
	"errors"
	"strings"
)

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 非正的超时或间隔 -> 使用默认值
//   - 快速轮询间隔大于普通间隔 -> 取普通间隔
//   - HealthPath 前导斜杠 -> 去除
//   - BaseURL 末尾斜杠 -> 去除
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	def := NewConfig()

	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	c.Server.HealthPath = strings.TrimLeft(c.Server.HealthPath, "/")
	if c.Server.ProbeTimeout <= 0 {
		c.Server.ProbeTimeout = def.Server.ProbeTimeout
	}
	if c.Server.DebounceWindow < 0 {
		c.Server.DebounceWindow = def.Server.DebounceWindow
	}
	if c.Server.RecoveryInterval < 0 {
		c.Server.RecoveryInterval = 0
	}

	if c.Device.PollInterval <= 0 {
		c.Device.PollInterval = def.Device.PollInterval
	}
	if c.Device.FastPollInterval <= 0 {
		c.Device.FastPollInterval = def.Device.FastPollInterval
	}
	if c.Device.FastPollInterval > c.Device.PollInterval {
		c.Device.FastPollInterval = c.Device.PollInterval
	}
	if c.Device.DNSResolver != "" && c.Device.DNSTimeout <= 0 {
		c.Device.DNSTimeout = def.Device.DNSTimeout
	}
	if c.Device.DNSResolver != "" && c.Device.DNSQueryName == "" {
		c.Device.DNSQueryName = def.Device.DNSQueryName
	}

	if c.API.Enabled && c.API.Addr == "" {
		c.API.Addr = def.API.Addr
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateAll 验证整个配置的有效性
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
