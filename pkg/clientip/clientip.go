package clientip

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP returns the address rate limits and logs key on. The peer
// address is used unless the peer is a loopback or private-range proxy, in
// which case X-Forwarded-For is walked right to left and the first hop outside
// those ranges wins. A client cannot spoof its way past a public peer.
func RealClientIP(r *http.Request) string {
	peer := hostOnly(r.RemoteAddr)
	if !isInternal(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isInternal(hop) {
			return hop
		}
	}
	return peer
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return strings.TrimSpace(host)
}

func isInternal(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
