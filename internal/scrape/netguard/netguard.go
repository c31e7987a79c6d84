// Package netguard keeps outbound fetches away from the server's own network.
package netguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const MaxRedirects = 5

var (
	ErrDisallowedHost = errors.New("host is not allowed")
	ErrInvalidURL     = errors.New("invalid url")
	ErrTooManyHops    = errors.New("too many redirects")
)

// Resolver looks up the addresses behind a host name.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type Guard struct {
	resolver Resolver
}

// New returns a Guard using r, or the system resolver when r is nil.
func New(r Resolver) *Guard {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Guard{resolver: r}
}

// Check parses rawURL and rejects it unless it is http(s) and every address
// its host resolves to is publicly routable. The transport from Client checks
// the dialed address again, so a host that resolves differently at connect
// time is still refused.
func (g *Guard) Check(ctx context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedHost, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrDisallowedHost, host)
		}
		return u, nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s has no addresses", ErrDisallowedHost, host)
	}
	for _, a := range addrs {
		if IsBlockedIP(a.IP) {
			return nil, fmt.Errorf("%w: %s resolves to %s", ErrDisallowedHost, host, a.IP)
		}
	}

	return u, nil
}

// CheckRedirect is an http.Client CheckRedirect hook applying Check to every hop.
func (g *Guard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return ErrTooManyHops
	}
	_, err := g.Check(req.Context(), req.URL.String())
	return err
}

// Client returns a copy of base whose redirects and connections are guarded.
// A custom RoundTripper that is not an *http.Transport is kept as is.
func (g *Guard) Client(base *http.Client) *http.Client {
	c := *base
	c.CheckRedirect = g.CheckRedirect

	switch t := base.Transport.(type) {
	case nil:
		c.Transport = g.Transport(http.DefaultTransport.(*http.Transport))
	case *http.Transport:
		c.Transport = g.Transport(t)
	}

	return &c
}

// DialFunc matches http.Transport.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Transport clones base so every connection it opens goes to a public address.
// Proxies are disabled since the dialed peer would be the proxy.
func (g *Guard) Transport(base *http.Transport) *http.Transport {
	t := base.Clone()
	t.Proxy = nil
	t.DialTLSContext = nil

	dial := DialFunc(t.DialContext)
	if t.DialContext == nil {
		dial = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   DialControl,
		}).DialContext
	}
	t.DialContext = GuardDial(dial)

	return t
}

// DialControl is a net.Dialer Control hook refusing blocked addresses before connecting.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDisallowedHost, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || IsBlockedIP(ip) {
		return fmt.Errorf("%w: dial %s", ErrDisallowedHost, address)
	}
	return nil
}

// GuardDial wraps dial and refuses connections whose peer is a blocked address.
func GuardDial(dial DialFunc) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		tcp, ok := conn.RemoteAddr().(*net.TCPAddr)
		if !ok || IsBlockedIP(tcp.IP) {
			conn.Close()
			return nil, fmt.Errorf("%w: connected to %s", ErrDisallowedHost, conn.RemoteAddr())
		}

		return conn, nil
	}
}

func IsBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

// NormalizeURL turns pasted text into an absolute http(s) URL. Text without a
// scheme gets https://; the host must contain a dot.
func NormalizeURL(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if s == "" || strings.ContainsAny(s, " \t\n\r") {
		return "", false
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(s, "://") {
			return "", false
		}
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := u.Hostname()
	if host == "" || !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return "", false
	}

	return u.String(), true
}
