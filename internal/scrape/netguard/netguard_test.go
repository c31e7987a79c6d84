package netguard_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"inspirations/internal/scrape/netguard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func TestGuard_Check(t *testing.T) {
	g := netguard.New(fakeResolver{
		"example.com":  {"93.184.216.34"},
		"internal.lan": {"10.0.0.5"},
		"mixed.com":    {"93.184.216.34", "127.0.0.1"},
		"empty.com":    {},
	})

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "public host", raw: "https://example.com/page"},
		{name: "public ip", raw: "http://8.8.8.8/"},
		{name: "localhost", raw: "http://localhost:8080/", wantErr: netguard.ErrDisallowedHost},
		{name: "sub localhost", raw: "http://api.localhost/", wantErr: netguard.ErrDisallowedHost},
		{name: "loopback", raw: "http://127.0.0.1/", wantErr: netguard.ErrDisallowedHost},
		{name: "ipv6 loopback", raw: "http://[::1]/", wantErr: netguard.ErrDisallowedHost},
		{name: "private", raw: "http://192.168.1.1/", wantErr: netguard.ErrDisallowedHost},
		{name: "link local metadata", raw: "http://169.254.169.254/latest", wantErr: netguard.ErrDisallowedHost},
		{name: "unspecified", raw: "http://0.0.0.0/", wantErr: netguard.ErrDisallowedHost},
		{name: "multicast", raw: "http://224.0.0.1/", wantErr: netguard.ErrDisallowedHost},
		{name: "resolves private", raw: "https://internal.lan/", wantErr: netguard.ErrDisallowedHost},
		{name: "any private address", raw: "https://mixed.com/", wantErr: netguard.ErrDisallowedHost},
		{name: "no addresses", raw: "https://empty.com/", wantErr: netguard.ErrDisallowedHost},
		{name: "ftp scheme", raw: "ftp://example.com/", wantErr: netguard.ErrInvalidURL},
		{name: "file scheme", raw: "file:///etc/passwd", wantErr: netguard.ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := g.Check(context.Background(), tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, u)
		})
	}

	_, err := g.Check(context.Background(), "https://unknown.example/")
	assert.Error(t, err)
}

func TestGuard_CheckRedirect(t *testing.T) {
	g := netguard.New(fakeResolver{"example.com": {"93.184.216.34"}})

	req := func(raw string) *http.Request {
		u, _ := url.Parse(raw)
		return (&http.Request{URL: u}).WithContext(context.Background())
	}

	assert.NoError(t, g.CheckRedirect(req("https://example.com/next"), nil))
	assert.ErrorIs(t, g.CheckRedirect(req("http://127.0.0.1/"), nil), netguard.ErrDisallowedHost)

	via := make([]*http.Request, netguard.MaxRedirects)
	assert.ErrorIs(t, g.CheckRedirect(req("https://example.com/next"), via), netguard.ErrTooManyHops)
}

func TestDialControl(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "public v4", address: "93.184.216.34:443"},
		{name: "loopback", address: "127.0.0.1:80", wantErr: true},
		{name: "private", address: "10.0.0.8:80", wantErr: true},
		{name: "loopback v6", address: "[::1]:443", wantErr: true},
		{name: "no port", address: "93.184.216.34", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := netguard.DialControl("tcp", tt.address, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, netguard.ErrDisallowedHost)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func loopbackServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("internal"))
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func TestGuard_Client_RefusesLoopbackDial(t *testing.T) {
	srv, hits := loopbackServer(t)
	g := netguard.New(fakeResolver{})

	client := g.Client(&http.Client{})

	resp, err := client.Get(srv.URL)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, netguard.ErrDisallowedHost)
	assert.Zero(t, hits.Load())
}

func TestGuard_Client_RefusesRebindingHost(t *testing.T) {
	srv, hits := loopbackServer(t)
	g := netguard.New(fakeResolver{"rebind.example.com": {"93.184.216.34"}})

	// the name passes Check but the connection lands on loopback
	target := strings.TrimPrefix(srv.URL, "http://")
	base := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, target)
		},
	}
	client := g.Client(&http.Client{Transport: base})

	_, err := g.Check(context.Background(), "http://rebind.example.com/admin")
	require.NoError(t, err)

	resp, err := client.Get("http://rebind.example.com/admin")
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, netguard.ErrDisallowedHost)
	assert.Zero(t, hits.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestGuard_Client_KeepsCustomRoundTripper(t *testing.T) {
	g := netguard.New(fakeResolver{})

	called := false
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusTeapot, Body: http.NoBody, Request: r}, nil
	})

	resp, err := g.Client(&http.Client{Transport: rt}).Get("http://example.com/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "https://example.com/a", want: "https://example.com/a", wantOK: true},
		{in: "example.com", want: "https://example.com", wantOK: true},
		{in: "  example.com/path?q=1  ", want: "https://example.com/path?q=1", wantOK: true},
		{in: "http://sub.example.org", want: "http://sub.example.org", wantOK: true},
		{in: "hello", wantOK: false},
		{in: "hello world.com", wantOK: false},
		{in: "ftp://example.com", wantOK: false},
		{in: "https://localhost/", wantOK: false},
		{in: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := netguard.NormalizeURL(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
