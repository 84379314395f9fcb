package middleware

import (
	"fmt"
	"net"
	"net/http"
)

// RealIPHeader carries the client address set by a fronting proxy.
const RealIPHeader = "X-Real-IP"

// ParseSubnet parses a CIDR. An empty string yields nil, meaning no
// restriction.
func ParseSubnet(cidr string) (*net.IPNet, error) {
	if cidr == "" {
		return nil, nil
	}
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("trusted subnet: %w", err)
	}
	return n, nil
}

// TrustedSubnet rejects requests whose client address is outside subnet
// with 403. The address is taken from X-Real-IP, else from the peer
// address. A nil subnet allows everything.
func TrustedSubnet(subnet *net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if subnet == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if ip == nil || !subnet.Contains(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) net.IP {
	if v := r.Header.Get(RealIPHeader); v != "" {
		return net.ParseIP(v)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
