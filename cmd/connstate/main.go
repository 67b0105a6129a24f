// Package main 提供 connstate 命令行入口
//
// 持续运行时打印状态变更与横幅，-once 模式执行一次完整检查并以退出码报告结果。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	connstate "github.com/dep2p/go-connstate"
	"github.com/dep2p/go-connstate/internal/core/banner"
	"github.com/dep2p/go-connstate/internal/core/gate"
	"github.com/dep2p/go-connstate/pkg/lib/log"
	"github.com/dep2p/go-connstate/pkg/types"
)

var logger = log.Logger("connstate/cmd")

// 退出码
const (
	exitConnected         = 0
	exitOffline           = 1
	exitServerUnavailable = 2
	exitUsage             = 64
)

// onceTimeout 单次检查的总超时
const onceTimeout = 30 * time.Second

func main() {
	code, err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, out io.Writer) (int, error) {
	f, fs, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, nil
		}
		return exitUsage, err
	}

	// 显示版本
	if f.showVersion {
		fmt.Fprintln(out, connstate.VersionInfo())
		return 0, nil
	}

	// 显示帮助
	if f.showHelp {
		printHelp(out, fs)
		return 0, nil
	}

	cfg, err := buildConfig(f)
	if err != nil {
		return exitUsage, fmt.Errorf("配置错误: %w", err)
	}

	client, err := connstate.New(connstate.WithConfig(cfg))
	if err != nil {
		return exitUsage, fmt.Errorf("创建客户端失败: %w", err)
	}

	if f.once {
		return runOnce(client, out)
	}
	return 0, runWatch(client, out)
}

// runOnce 执行一次完整检查
func runOnce(client *connstate.Client, out io.Writer) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), onceTimeout)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return exitOffline, err
	}
	defer func() { _ = client.Close() }()

	status, err := client.Check(ctx)
	if err != nil {
		return exitOffline, err
	}

	fmt.Fprintln(out, renderCurrent(client.Gate(), status))
	logger.Debug("单次检查完成", "status", status.String())
	return exitCodeFor(status), nil
}

// runWatch 持续跟踪状态直到收到退出信号
func runWatch(client *connstate.Client, out io.Writer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Fprintf(out, "📦 %s\n", connstate.VersionInfo())

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = client.Close() }()

	client.OnChange(func(change types.StatusChange) {
		fmt.Fprintf(out, "%s  %s → %s (%s)\n",
			change.Timestamp.Format(time.TimeOnly),
			change.Previous, change.Current, change.Reason)
	})
	client.OnBanner(func(v banner.Visibility) {
		if line := banner.RenderBanner(v); line != "" {
			fmt.Fprintln(out, line)
		} else {
			fmt.Fprintln(out, "(banner hidden)")
		}
	})

	if addr := client.APIAddr(); addr != "" {
		fmt.Fprintf(out, "状态 API: http://%s/status\n", addr)
	}
	fmt.Fprintf(out, "当前状态: %s，按 Ctrl+C 退出\n", client.Status())

	waitForSignal()

	fmt.Fprintln(out, "\n正在关闭...")
	// 退出前展示最终状态
	fmt.Fprintln(out, renderCurrent(client.Gate(), client.Status()))
	return nil
}

// exitCodeFor 把状态映射为退出码
//
// 首次检查未完成（checking）按离线处理。
func exitCodeFor(status types.ConnectionStatus) int {
	switch status {
	case types.StatusConnected:
		return exitConnected
	case types.StatusServerUnavailable:
		return exitServerUnavailable
	default:
		return exitOffline
	}
}

// renderCurrent 渲染当前状态，正常内容时只输出状态名
func renderCurrent(g *gate.Gate, status types.ConnectionStatus) string {
	if screen := banner.RenderFullScreen(g.View(), g.Raw()); screen != "" {
		return screen
	}
	return "✓ " + status.String()
}

func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}

func printHelp(out io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(out, "connstate - 网络连通性与服务器可达性监测")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "用法:")
	fmt.Fprintln(out, "  connstate [选项]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "选项:")
	fs.SetOutput(out)
	fs.PrintDefaults()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "环境变量:")
	fmt.Fprintln(out, "  CONNSTATE_BASE_URL        服务器地址")
	fmt.Fprintln(out, "  CONNSTATE_HEALTH_PATH     健康检查路径")
	fmt.Fprintln(out, "  CONNSTATE_PROBE_TIMEOUT   探测超时，例如 8s")
	fmt.Fprintln(out, "  CONNSTATE_DNS_RESOLVER    DNS 检查服务器，空字符串表示禁用")
	fmt.Fprintln(out, "  CONNSTATE_API_ENABLED     启用本地状态 API (true/false)")
	fmt.Fprintln(out, "  CONNSTATE_API_ADDR        本地状态 API 地址")
	fmt.Fprintln(out, "  CONNSTATE_LOG_LEVEL       日志级别")
	fmt.Fprintln(out, "  CONNSTATE_LOG_FORMAT      日志格式 (text/json)")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "示例:")
	fmt.Fprintln(out, "  # 持续监测并开启状态 API")
	fmt.Fprintln(out, "  connstate -base-url https://api.example.com -api-addr 127.0.0.1:7070")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  # 脚本中单次检查")
	fmt.Fprintln(out, "  connstate -config connstate.yaml -once || echo \"not connected\"")
}
