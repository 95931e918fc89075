// Package safehttp builds HTTP clients for fetching user-supplied URLs.
// Connections to loopback, private, link-local and cloud metadata
// addresses are refused at dial time, after DNS resolution, so a public
// name pointing at an internal address is caught too.
package safehttp

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// ErrBlocked is returned when a URL resolves to an address that may not be
// fetched.
var ErrBlocked = errors.New("blocked host")

const maxRedirects = 5

var blockedNames = map[string]bool{
	"metadata.google.internal": true,
	"metadata":                 true,
}

// CheckHost rejects blocked host names and literal IPs. Names are resolved
// later by the dialer, which checks the address actually dialed.
func CheckHost(host string) error {
	if blockedNames[strings.ToLower(strings.TrimSuffix(host, "."))] {
		return fmt.Errorf("%w: %s", ErrBlocked, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return CheckIP(ip)
	}
	return nil
}

// CheckIP rejects loopback, private, link-local and unspecified addresses.
func CheckIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: loopback address %s", ErrBlocked, ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		// Covers the 169.254.169.254 metadata endpoint.
		return fmt.Errorf("%w: link-local address %s", ErrBlocked, ip)
	case ip.IsPrivate():
		return fmt.Errorf("%w: private address %s", ErrBlocked, ip)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: unspecified address %s", ErrBlocked, ip)
	}
	return nil
}

// control runs before every connect with the resolved address.
func control(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlocked, address)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %s", ErrBlocked, address)
	}
	return CheckIP(ip)
}

// NewClient returns a client that only reaches public addresses. Proxies
// from the environment are ignored so the dial check sees the real target.
func NewClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   control,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			return CheckHost(req.URL.Hostname())
		},
	}
}
