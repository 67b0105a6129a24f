package config

import (
	"fmt"
	"time"
)

// PresentationConfig 状态展示配置
type PresentationConfig struct {
	// OfflineBannerDelay 离线横幅显示延迟
	// 默认值: 1s
	OfflineBannerDelay Duration `json:"offline_banner_delay" yaml:"offline_banner_delay"`

	// ServerBannerDelay 服务器不可用横幅显示延迟
	// 默认值: 2s
	ServerBannerDelay Duration `json:"server_banner_delay" yaml:"server_banner_delay"`

	// RetryGuard 重试防重入窗口
	// 默认值: 2s
	RetryGuard Duration `json:"retry_guard" yaml:"retry_guard"`
}

// DefaultPresentationConfig 返回默认的状态展示配置
func DefaultPresentationConfig() PresentationConfig {
	return PresentationConfig{
		OfflineBannerDelay: Duration(1 * time.Second),
		ServerBannerDelay:  Duration(2 * time.Second),
		RetryGuard:         Duration(2 * time.Second),
	}
}

// Validate 验证状态展示配置
func (c *PresentationConfig) Validate() error {
	if c.OfflineBannerDelay < 0 || c.ServerBannerDelay < 0 {
		return fmt.Errorf("presentation: banner delays must be >= 0")
	}
	if c.RetryGuard < 0 {
		return fmt.Errorf("presentation: retry_guard must be >= 0")
	}
	return nil
}
