package device

import (
	"context"
	"net"
	"time"

	"github.com/jackpal/gateway"
	"github.com/miekg/dns"

	"github.com/dep2p/go-connstate/pkg/types"
)

// ============================================================================
//                              互联网可达性
// ============================================================================

// ReachabilityChecker 互联网可达性检查
type ReachabilityChecker interface {
	Check(ctx context.Context) types.InternetReachability
}

// ReachabilityFunc 函数适配器
type ReachabilityFunc func(ctx context.Context) types.InternetReachability

// Check 实现 ReachabilityChecker
func (f ReachabilityFunc) Check(ctx context.Context) types.InternetReachability {
	return f(ctx)
}

// unknownReachability 未配置检查时始终返回 unknown
var unknownReachability = ReachabilityFunc(func(context.Context) types.InternetReachability {
	return types.ReachabilityUnknown
})

// DNSChecker 通过 DNS 查询判断互联网可达性
//
// 任何 DNS 应答（包括 NXDOMAIN）都说明到解析器的路径通畅，判定为可达；
// 超时或网络错误判定为不可达。
type DNSChecker struct {
	client   *dns.Client
	resolver string
	name     string
}

// NewDNSChecker 创建 DNS 可达性检查器
func NewDNSChecker(resolver, name string, timeout time.Duration) *DNSChecker {
	return &DNSChecker{
		client: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
		},
		resolver: resolver,
		name:     dns.Fqdn(name),
	}
}

// Check 实现 ReachabilityChecker
func (c *DNSChecker) Check(ctx context.Context) types.InternetReachability {
	msg := new(dns.Msg)
	msg.SetQuestion(c.name, dns.TypeA)
	msg.RecursionDesired = true

	resp, rtt, err := c.client.ExchangeContext(ctx, msg, c.resolver)
	if err != nil {
		logger.Debug("DNS 可达性检查失败", "resolver", c.resolver, "err", err)
		return types.ReachabilityUnreachable
	}
	if resp == nil {
		return types.ReachabilityUnreachable
	}

	logger.Debug("DNS 可达性检查成功",
		"resolver", c.resolver,
		"rcode", dns.RcodeToString[resp.Rcode],
		"rtt", rtt)
	return types.ReachabilityReachable
}

// ============================================================================
//                              默认网关
// ============================================================================

// GatewayFunc 返回默认网关地址
type GatewayFunc func(ctx context.Context) (string, error)

// SystemGateway 通过 jackpal/gateway 发现默认网关
//
// 底层调用不支持 context，这里用 goroutine 包装以遵守取消。
func SystemGateway(ctx context.Context) (string, error) {
	type result struct {
		ip  net.IP
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ip, err := gateway.DiscoverGateway()
		ch <- result{ip: ip, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		return r.ip.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
