package client

import "net"

// resolveIP picks the local IP address a client should bind its peer
// listener to: the address of a named interface if one was requested,
// otherwise the first non-loopback IPv4 address found on the host. Mirrors
// daemon.resolveIP; kept as a separate unexported copy rather than shared
// since the two packages intentionally have no dependency on each other.
func resolveIP(iface string) (net.IP, error) {
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, err
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.To4() != nil {
				return ipNet.IP, nil
			}
		}
		return nil, errInterfaceHasNoIPv4(iface)
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return net.IPv4zero, nil
}

type errInterfaceHasNoIPv4 string

func (e errInterfaceHasNoIPv4) Error() string {
	return "no IPv4 address found on interface " + string(e)
}
