package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dep2p/go-connstate/config"
)

// ============================================================================
//                              命令行参数
// ============================================================================

// cliFlags 命令行参数
//
// 命令行参数用于运行时覆盖，持久化配置放在 -config 指定的文件中。
type cliFlags struct {
	configFile string
	baseURL    string
	healthPath string
	apiAddr    string
	logLevel   string
	once       bool

	showVersion bool
	showHelp    bool

	// set 记录显式设置的参数
	set map[string]bool
}

// parseFlags 解析命令行参数
func parseFlags(args []string, output io.Writer) (*cliFlags, *flag.FlagSet, error) {
	f := &cliFlags{set: make(map[string]bool)}

	fs := flag.NewFlagSet("connstate", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&f.configFile, "config", "", "配置文件路径（.json / .yaml）")
	fs.StringVar(&f.baseURL, "base-url", "", "服务器地址，例如 https://api.example.com")
	fs.StringVar(&f.healthPath, "health-path", "", "健康检查路径（默认: health）")
	fs.StringVar(&f.apiAddr, "api-addr", "", "启用本地状态 API 并监听该地址，例如 127.0.0.1:7070")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别 (debug/info/warn/error)")
	fs.BoolVar(&f.once, "once", false, "执行一次完整检查后退出（0 已连接 / 1 离线 / 2 服务器不可用）")
	fs.BoolVar(&f.showVersion, "version", false, "显示版本信息")
	fs.BoolVar(&f.showHelp, "help", false, "显示帮助信息")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, fs, nil
}

// ============================================================================
//                              配置合并
// ============================================================================

// buildConfig 合并配置
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（CONNSTATE_* 前缀）
//  3. 配置文件
//  4. 默认值
func buildConfig(f *cliFlags) (*config.Config, error) {
	cfg := config.NewConfig()
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if f.set["base-url"] {
		cfg.Server.BaseURL = strings.TrimSpace(f.baseURL)
	}
	if f.set["health-path"] {
		cfg.Server.HealthPath = strings.TrimSpace(f.healthPath)
	}
	if f.set["api-addr"] {
		cfg.API.Enabled = f.apiAddr != ""
		cfg.API.Addr = f.apiAddr
	}
	if f.set["log-level"] {
		cfg.Log.Level = strings.ToLower(f.logLevel)
	}

	// 单次检查不需要后台重探与本地 API
	if f.once {
		cfg.Server.RecoveryInterval = 0
		cfg.API.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
