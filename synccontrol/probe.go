package synccontrol

import (
	"context"
	"net"
	"time"
)

// Probe reports whether the remote service is worth trying
type Probe interface {
	Online(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe
type ProbeFunc func(ctx context.Context) bool

// Online calls f
func (f ProbeFunc) Online(ctx context.Context) bool {
	return f(ctx)
}

// TCPProbe dials Address; an empty address is always online
type TCPProbe struct {
	Address string
	Timeout time.Duration
}

// Online reports whether a TCP connection to Address can be opened
func (p TCPProbe) Online(ctx context.Context) bool {
	if p.Address == "" {
		return true
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
