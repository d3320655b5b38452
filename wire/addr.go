package wire

import "net"

// TCPAddr is a gob-friendly stand-in for net.TCPAddr. gob can encode
// net.TCPAddr directly since all of its fields are exported, but copying
// the address into a package-local type keeps the wire format decoupled
// from net's internal representation of IPv4-in-IPv6 addresses, which has
// changed shape across Go releases.
type TCPAddr struct {
	IP   []byte
	Port int
}

// NewTCPAddr converts a net.TCPAddr into its wire representation.
func NewTCPAddr(a *net.TCPAddr) TCPAddr {
	if a == nil {
		return TCPAddr{}
	}
	return TCPAddr{IP: []byte(a.IP), Port: a.Port}
}

// NetAddr converts a wire address back into a *net.TCPAddr.
func (a TCPAddr) NetAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.IP(a.IP), Port: a.Port}
}

// String renders the address in host:port form for logging.
func (a TCPAddr) String() string {
	return a.NetAddr().String()
}
