package targets

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultManualPorts 是手动扫描的默认端口集合。
var DefaultManualPorts = []int{80, 443, 554, 8000, 8080}

// Normalize 对用户输入的地址进行裁剪并提取主机部分。
func Normalize(address string) string {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return ""
	}

	// 处理带协议前缀的输入。
	if strings.Contains(addr, "://") {
		if u, err := url.Parse(addr); err == nil {
			if u.Host != "" {
				addr = u.Host
			}
		}
	}

	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "//")

	// 去除可能存在的账号密码片段（user:pass@host）。
	if at := strings.LastIndex(addr, "@"); at != -1 {
		addr = addr[at+1:]
	}

	// 去除剩余的路径或查询参数。
	if slash := strings.IndexByte(addr, '/'); slash != -1 {
		addr = addr[:slash]
	}
	if ques := strings.IndexByte(addr, '?'); ques != -1 {
		addr = addr[:ques]
	}

	addr = strings.TrimSpace(addr)

	// 支持形如 [::1]:443 或 [::1] 的 IPv6 写法。
	if strings.HasPrefix(addr, "[") && strings.Contains(addr, "]") {
		end := strings.Index(addr, "]")
		if end != -1 {
			addr = addr[1:end]
		}
	}

	// 对 IPv4 或单冒号 host:port 的写法剥离端口，避免与 IPv6 冲突。
	if strings.Count(addr, ":") == 1 {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
	}

	return strings.ToLower(strings.Trim(addr, "[] "))
}

// ParsePorts 把 "80,443,8080" 形式的端口列表解析为去重后的整数序列。
// 非法片段会被忽略；输入为空时返回默认端口集合。
func ParsePorts(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]int(nil), DefaultManualPorts...)
	}

	seen := make(map[int]struct{})
	ports := make([]int, 0, 8)
	for _, piece := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(piece))
		if err != nil || n < 1 || n > 65535 {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		ports = append(ports, n)
	}
	if len(ports) == 0 {
		return append([]int(nil), DefaultManualPorts...)
	}
	return ports
}
