package connstate

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置（文件或调用方提供）
	config *config.Config

	// 服务器探测覆盖
	server struct {
		baseURL      string
		healthPath   string
		probeTimeout time.Duration
	}

	// 状态 API 覆盖
	api struct {
		enable *bool
		addr   string
	}

	// 日志级别覆盖
	logLevel string

	// 测试与嵌入场景替换的组件
	clock    clock.Clock
	observer interfaces.DeviceObserver
	prober   interfaces.HealthProber

	// 连接恢复回调
	onRestored func()

	// 用户自定义 Fx 选项
	fxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// toConfig 生成最终配置
//
// 优先级：选项 > 基础配置 > 默认值。
func (o *options) toConfig() *config.Config {
	cfg := config.NewConfig()
	if o.config != nil {
		c := *o.config
		cfg = &c
	}

	// 覆盖: 服务器探测
	if o.server.baseURL != "" {
		cfg.Server.BaseURL = o.server.baseURL
	}
	if o.server.healthPath != "" {
		cfg.Server.HealthPath = o.server.healthPath
	}
	if o.server.probeTimeout > 0 {
		cfg.Server.ProbeTimeout = config.Duration(o.server.probeTimeout)
	}

	// 覆盖: 状态 API
	if o.api.enable != nil {
		cfg.API.Enabled = *o.api.enable
	}
	if o.api.addr != "" {
		cfg.API.Addr = o.api.addr
	}

	// 覆盖: 日志
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用完整配置
//
// 其余选项在其基础上覆盖。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 或 YAML 文件加载配置
//
// 文件加载后应用 CONNSTATE_ 前缀的环境变量覆盖。
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := config.ApplyEnv(cfg); err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithServer 设置服务器地址与健康检查路径
//
// healthPath 为空时使用默认路径。
func WithServer(baseURL, healthPath string) Option {
	return func(o *options) error {
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		o.server.baseURL = baseURL
		o.server.healthPath = healthPath
		return nil
	}
}

// WithProbeTimeout 设置服务器探测超时
func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("probe timeout must be positive, got %s", d)
		}
		o.server.probeTimeout = d
		return nil
	}
}

// WithAPI 启用本地状态 API
func WithAPI(addr string) Option {
	return func(o *options) error {
		enable := true
		o.api.enable = &enable
		o.api.addr = addr
		return nil
	}
}

// WithLogLevel 设置日志级别（debug/info/warn/error）
func WithLogLevel(level string) Option {
	return func(o *options) error {
		o.logLevel = level
		return nil
	}
}

// ============================================================================
//                              组件选项
// ============================================================================

// WithClock 替换时钟（测试使用 clock.NewMock()）
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}

// WithDeviceObserver 替换设备观察者
//
// 用于接入平台推送的网络变化事件，或在测试中注入模拟实现。
func WithDeviceObserver(obs interfaces.DeviceObserver) Option {
	return func(o *options) error {
		if obs == nil {
			return fmt.Errorf("device observer cannot be nil")
		}
		o.observer = obs
		return nil
	}
}

// WithHealthProber 替换服务器健康探测器
func WithHealthProber(p interfaces.HealthProber) Option {
	return func(o *options) error {
		if p == nil {
			return fmt.Errorf("health prober cannot be nil")
		}
		o.prober = p
		return nil
	}
}

// WithOnConnectionRestored 设置连接恢复回调
func WithOnConnectionRestored(fn func()) Option {
	return func(o *options) error {
		o.onRestored = fn
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
