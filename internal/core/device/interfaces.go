package device

import (
	"net"
	"runtime"
	"sort"
	"strings"

	"github.com/dep2p/go-connstate/pkg/types"
)

// ============================================================================
//                              接口枚举
// ============================================================================

// NetInterface 网络接口快照
type NetInterface struct {
	Name     string
	Addrs    []string
	Up       bool
	Loopback bool
}

// usable 是否为可承载流量的接口：已启用、非回环、至少有一个单播地址
func (i NetInterface) usable() bool {
	return i.Up && !i.Loopback && len(i.Addrs) > 0
}

// InterfaceLister 枚举网络接口
type InterfaceLister func() ([]NetInterface, error)

// SystemInterfaces 通过 net.Interfaces 枚举系统网络接口
func SystemInterfaces() ([]NetInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	result := make([]NetInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		// 跳过未启用的接口
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		addrStrs := make([]string, 0, len(addrs))
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || !isUnicast(ipnet.IP) {
				continue
			}
			addrStrs = append(addrStrs, addr.String())
		}

		result = append(result, NetInterface{
			Name:     iface.Name,
			Addrs:    addrStrs,
			Up:       true,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		})
	}
	return result, nil
}

func isUnicast(ip net.IP) bool {
	if ip.IsLinkLocalUnicast() && ip.To4() == nil {
		// IPv6 链路本地地址不代表可用网络
		return false
	}
	return ip.IsGlobalUnicast() || ip.IsPrivate() || ip.IsLoopback()
}

// ============================================================================
//                              类型判定
// ============================================================================

// preferredInterface 选择首选接口
//
// 优先级：以太网 > WiFi > 蜂窝 > 其他 > VPN，同类按名称排序。
func preferredInterface(ifaces []NetInterface) (NetInterface, types.ConnectionType, bool) {
	candidates := make([]NetInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.usable() {
			candidates = append(candidates, iface)
		}
	}
	if len(candidates) == 0 {
		return NetInterface{}, types.ConnectionTypeNone, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi := typeRank(ClassifyInterface(candidates[i].Name, runtime.GOOS))
		pj := typeRank(ClassifyInterface(candidates[j].Name, runtime.GOOS))
		if pi != pj {
			return pi < pj
		}
		return candidates[i].Name < candidates[j].Name
	})

	best := candidates[0]
	return best, ClassifyInterface(best.Name, runtime.GOOS), true
}

func typeRank(t types.ConnectionType) int {
	switch t {
	case types.ConnectionTypeEthernet:
		return 0
	case types.ConnectionTypeWiFi:
		return 1
	case types.ConnectionTypeCellular:
		return 2
	case types.ConnectionTypeOther:
		return 3
	case types.ConnectionTypeVPN:
		return 4
	default:
		return 5
	}
}

// ClassifyInterface 根据接口名称判定传输类型
//
// darwin 上 en0 通常是 WiFi，其余 en* 视为以太网。
func ClassifyInterface(name, goos string) types.ConnectionType {
	n := strings.ToLower(name)

	switch {
	case hasAnyPrefix(n, "tun", "utun", "tap", "wg", "ppp", "ipsec", "zt"):
		return types.ConnectionTypeVPN
	case hasAnyPrefix(n, "rmnet", "wwan", "pdp_ip", "ccmni", "usb"):
		return types.ConnectionTypeCellular
	case hasAnyPrefix(n, "wl", "wifi", "ath", "ra"):
		return types.ConnectionTypeWiFi
	case goos == "darwin" && n == "en0":
		return types.ConnectionTypeWiFi
	case hasAnyPrefix(n, "eth", "en", "em", "bond"):
		return types.ConnectionTypeEthernet
	case strings.Contains(n, "wi-fi") || strings.Contains(n, "wireless"):
		return types.ConnectionTypeWiFi
	case strings.Contains(n, "ethernet"):
		return types.ConnectionTypeEthernet
	case n == "":
		return types.ConnectionTypeUnknown
	default:
		return types.ConnectionTypeOther
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ============================================================================
//                              变化检测
// ============================================================================

// interfacesChanged 检查接口集合或地址是否发生变化
func interfacesChanged(old, new []NetInterface) bool {
	oldUsable := usableAddrs(old)
	newUsable := usableAddrs(new)

	if len(oldUsable) != len(newUsable) {
		return true
	}
	for name, addrs := range newUsable {
		oldAddrs, ok := oldUsable[name]
		if !ok || !equalAddrs(oldAddrs, addrs) {
			return true
		}
	}
	return false
}

func usableAddrs(ifaces []NetInterface) map[string][]string {
	m := make(map[string][]string, len(ifaces))
	for _, iface := range ifaces {
		if iface.usable() {
			m[iface.Name] = iface.Addrs
		}
	}
	return m
}

// equalAddrs 比较两个地址列表是否相等（忽略顺序）
func equalAddrs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	aMap := make(map[string]bool, len(a))
	for _, addr := range a {
		aMap[addr] = true
	}
	for _, addr := range b {
		if !aMap[addr] {
			return false
		}
	}
	return true
}
