package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-connstate/config"
	"github.com/dep2p/go-connstate/pkg/interfaces"
	"github.com/dep2p/go-connstate/pkg/lib/log"
)

// maxDrainBytes 读取响应体的上限，内容本身被忽略
const maxDrainBytes = 4 << 10

// ErrNoBaseURL 未配置服务器地址
var ErrNoBaseURL = errors.New("server base url not configured")

var _ interfaces.HealthProber = (*HTTPProber)(nil)

// HTTPProber 基于 HTTP GET 的服务器健康探测器
//
// 请求 GET <BaseURL>/<HealthPath>?<HealthQuery>，不带认证头。
// 任何 < 500 的响应都视为服务器在线，不解析响应内容。
// 超时由调用方通过 ctx 控制，ctx 取消会关闭底层连接。
type HTTPProber struct {
	target    string
	userAgent string
	client    *http.Client
	clock     clock.Clock
}

// Option 探测器选项
type Option func(*HTTPProber)

// WithHTTPClient 设置 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPProber) { p.client = c }
}

// WithClock 设置时钟（用于计算耗时）
func WithClock(c clock.Clock) Option {
	return func(p *HTTPProber) { p.clock = c }
}

// NewHTTPProber 创建 HTTP 健康探测器
func NewHTTPProber(cfg config.ServerConfig, opts ...Option) *HTTPProber {
	p := &HTTPProber{
		target:    BuildTarget(cfg.BaseURL, cfg.HealthPath, cfg.HealthQuery),
		userAgent: cfg.UserAgent,
		client:    newHTTPClient(),
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Target 返回探测地址
func (p *HTTPProber) Target() string {
	return p.target
}

// Probe 执行一次探测
func (p *HTTPProber) Probe(ctx context.Context) interfaces.ProbeResult {
	result := interfaces.ProbeResult{ID: uuid.NewString()}
	start := p.clock.Now()
	defer func() {
		logger.Debug("服务器探测完成",
			"probe", log.TruncateID(result.ID, 8),
			"outcome", result.Outcome,
			"status", result.StatusCode,
			"latency", result.Latency)
	}()

	if p.target == "" {
		result.Outcome = interfaces.ProbeTransportError
		result.Err = ErrNoBaseURL
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		result.Outcome = interfaces.ProbeTransportError
		result.Err = fmt.Errorf("build probe request: %w", err)
		return result
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	result.Latency = p.clock.Since(start)
	if err != nil {
		result.Outcome = classifyError(ctx, err)
		result.Err = fmt.Errorf("probe %s: %w", p.target, err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	result.StatusCode = resp.StatusCode
	if resp.StatusCode >= http.StatusInternalServerError {
		result.Outcome = interfaces.ProbeServerError
		result.Err = fmt.Errorf("server responded %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return result
	}

	result.Outcome = interfaces.ProbeReachable
	return result
}

// classifyError 区分超时和其他传输错误
func classifyError(ctx context.Context, err error) interfaces.ProbeOutcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return interfaces.ProbeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return interfaces.ProbeTimeout
	}
	return interfaces.ProbeTransportError
}

// BuildTarget 拼接探测地址
//
// baseURL 为空时返回空字符串。
func BuildTarget(baseURL, path, query string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return ""
	}

	target := baseURL
	if p := strings.TrimLeft(path, "/"); p != "" {
		target += "/" + p
	}
	if q := strings.TrimLeft(query, "?"); q != "" {
		if values, err := url.ParseQuery(q); err == nil {
			q = values.Encode()
		}
		target += "?" + q
	}
	return target
}
