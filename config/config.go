// Package config 提供统一的配置管理
//
// 配置按组件分节：server（服务器探测）、device（设备观察）、
// presentation（状态展示）、api（本地状态 API）、log（日志）。
// 所有字段都有默认值，NewConfig 返回可直接使用的配置。
package config

import (
	"errors"
	"fmt"
)

// Config 顶层配置
type Config struct {
	Server       ServerConfig       `json:"server" yaml:"server"`
	Device       DeviceConfig       `json:"device" yaml:"device"`
	Presentation PresentationConfig `json:"presentation" yaml:"presentation"`
	API          APIConfig          `json:"api" yaml:"api"`
	Log          LogConfig          `json:"log" yaml:"log"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Device:       DefaultDeviceConfig(),
		Presentation: DefaultPresentationConfig(),
		API:          DefaultAPIConfig(),
		Log:          DefaultLogConfig(),
	}
}

// Validate 验证所有子配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Device.Validate(); err != nil {
		return err
	}
	if err := c.Presentation.Validate(); err != nil {
		return err
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

// ============================================================================
//                              APIConfig
// ============================================================================

// APIConfig 本地状态 API 配置
type APIConfig struct {
	// Enabled 是否启用
	// 默认值: false
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr 监听地址
	// 默认值: 127.0.0.1:7070
	Addr string `json:"addr" yaml:"addr"`
}

// DefaultAPIConfig 返回默认的状态 API 配置
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Enabled: false,
		Addr:    "127.0.0.1:7070",
	}
}

// Validate 验证状态 API 配置
func (c *APIConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("api: addr is required when enabled")
	}
	return nil
}

// ============================================================================
//                              LogConfig
// ============================================================================

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别：debug/info/warn/error
	// 默认值: info
	Level string `json:"level" yaml:"level"`

	// Format 输出格式：text/json
	// 默认值: text
	Format string `json:"format" yaml:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	return nil
}
