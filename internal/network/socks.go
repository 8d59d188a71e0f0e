// Package network holds dial helpers shared by the network sinks.
package network

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/proxy"
)

// DialContextFunc matches the Dialer hooks of go-redis and net.Dialer.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Dialer dials with or without a context. sarama takes the former, go-redis
// the latter.
type Dialer interface {
	proxy.Dialer
	proxy.ContextDialer
}

// NewSOCKS5Dialer returns a dialer that tunnels through the SOCKS5 proxy at
// host:port. No authentication is used.
func NewSOCKS5Dialer(host string, port int) (Dialer, error) {
	if host == "" {
		return nil, fmt.Errorf("SOCKS5 proxy host is empty")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid SOCKS5 proxy port %d", port)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", addr, err)
	}
	cd, ok := d.(Dialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", addr)
	}
	return cd, nil
}

// DialFunc returns a context-aware dial function through the proxy, or nil
// when host is empty so callers fall back to a direct connection.
func DialFunc(host string, port int) (DialContextFunc, error) {
	if host == "" {
		return nil, nil
	}
	d, err := NewSOCKS5Dialer(host, port)
	if err != nil {
		return nil, err
	}
	return d.DialContext, nil
}
