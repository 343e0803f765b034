package ratelimit

import (
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// UnspecifiedIP is used when no valid client address can be determined.
const UnspecifiedIP = "0.0.0.0"

// Request is the part of an inbound request the limiter needs.
// huma.Context satisfies it.
type Request interface {
	RemoteAddr() string
	Header(name string) string
	Method() string
	URL() url.URL
}

// Identity describes who is calling and what they are calling.
type Identity struct {
	IP     string `json:"ip"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// ResolveIdentity extracts the client identity from req. It never fails: an
// unusable address is replaced by UnspecifiedIP.
func ResolveIdentity(req Request) Identity {
	u := req.URL()

	return Identity{
		IP:     resolveIP(req.RemoteAddr(), req.Header("X-Forwarded-For")),
		Method: strings.ToUpper(req.Method()),
		Path:   u.Path,
	}
}

func resolveIP(remoteAddr, forwarded string) string {
	ip := peerHost(remoteAddr)

	if forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if candidate := strings.TrimSpace(first); isIP(candidate) {
			ip = candidate
		}
	}

	if !isIP(ip) {
		return UnspecifiedIP
	}

	return ip
}

// peerHost strips the port from a "host:port" peer address.
func peerHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}

	return host
}

func isIP(s string) bool {
	if s == "" {
		return false
	}

	_, err := netip.ParseAddr(s)

	return err == nil
}
