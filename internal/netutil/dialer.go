// Package netutil holds the shared outbound HTTP plumbing.
package netutil

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
)

const defaultDNSRefresh = 5 * time.Minute

// Dialer dials outbound connections through a caching DNS resolver. It is
// shared by the payment gateway and voice provider clients.
type Dialer struct {
	resolver *dnscache.Resolver
	dialer   *net.Dialer
}

// NewDialer creates a Dialer with its own resolver cache.
func NewDialer() *Dialer {
	return &Dialer{
		resolver: &dnscache.Resolver{},
		dialer:   &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second},
	}
}

// DialContext resolves the host through the cache and tries each address.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(host) != nil {
		return d.dialer.DialContext(ctx, network, address)
	}

	ips, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, ip := range ips {
		conn, err := d.dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses for %s", host)
	}
	return nil, lastErr
}

// RunRefresh refreshes the resolver cache until ctx is cancelled.
func (d *Dialer) RunRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultDNSRefresh
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.resolver.Refresh(true)
			log.Debug().Dur("interval", interval).Msg("DNS cache refreshed")
		}
	}
}

// HTTPClient returns an HTTP client that dials through the resolver cache.
func (d *Dialer) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:       http.ProxyFromEnvironment,
			DialContext: d.DialContext,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
