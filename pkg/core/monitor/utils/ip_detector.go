package utils

import (
	"fmt"
	"net"
	"strings"
)

// GetLocalIP 获取本机IPv4地址，优先私有地址，跳过回环和虚拟网卡
func GetLocalIP() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var fallback string
	for _, iface := range interfaces {
		name := strings.ToLower(iface.Name)
		if iface.Flags&net.FlagLoopback != 0 ||
			strings.Contains(name, "vmware") ||
			strings.Contains(name, "virtual") {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}
			if ipnet.IP.IsPrivate() {
				return ipnet.IP.String(), nil
			}
			if fallback == "" {
				fallback = ipnet.IP.String()
			}
		}
	}

	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("未找到有效的IP地址")
}
