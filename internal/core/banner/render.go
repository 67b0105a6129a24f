package banner

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dep2p/go-connstate/internal/core/gate"
)

// 展示文案
const (
	offlineTitle  = "No internet connection"
	offlineDetail = "Check your Wi-Fi or mobile data and try again."
	serverTitle   = "Server unavailable"
	serverDetail  = "We can't reach the server right now. Please try again shortly."
	loadingText   = "Checking connection..."
	retryLabel    = "[ Retry ]"
)

// fullScreenWidth 全屏错误框内宽
const fullScreenWidth = 56

// RenderBanner 渲染单行横幅，不可见时返回空字符串
func RenderBanner(v Visibility) string {
	switch {
	case !v.Visible:
		return ""
	case v.Kind == KindOffline:
		return fmt.Sprintf("⚠ %s  %s", offlineTitle, retryLabel)
	case v.Kind == KindServerError:
		if v.Message != "" {
			return fmt.Sprintf("⚠ %s (%s)  %s", serverTitle, v.Message, retryLabel)
		}
		return fmt.Sprintf("⚠ %s  %s", serverTitle, retryLabel)
	default:
		return ""
	}
}

// RenderFullScreen 渲染全屏阻断内容
//
// 显示正常内容时返回空字符串。
func RenderFullScreen(d gate.Directives, raw gate.RawState) string {
	var lines []string
	switch {
	case d.ShowLoading:
		return loadingText
	case d.ShowOffline:
		lines = []string{offlineTitle, "", offlineDetail}
	case d.ShowServerError:
		lines = []string{serverTitle, "", serverDetail}
		if raw.ServerErrorMessage != "" {
			lines = append(lines, "", "Details: "+raw.ServerErrorMessage)
		}
	default:
		return ""
	}
	lines = append(lines, "", retryLabel)
	return box(lines, fullScreenWidth)
}

// box 用制表符画框，超长行按宽度折行
func box(lines []string, width int) string {
	var sb strings.Builder
	border := strings.Repeat("═", width+2)

	sb.WriteString("╔" + border + "╗\n")
	for _, line := range lines {
		for _, part := range wrap(line, width) {
			pad := width - utf8.RuneCountInString(part)
			sb.WriteString("║ " + part + strings.Repeat(" ", pad) + " ║\n")
		}
	}
	sb.WriteString("╚" + border + "╝")
	return sb.String()
}

func wrap(line string, width int) []string {
	runes := []rune(line)
	if len(runes) <= width {
		return []string{line}
	}
	var parts []string
	for len(runes) > width {
		parts = append(parts, string(runes[:width]))
		runes = runes[width:]
	}
	return append(parts, string(runes))
}
