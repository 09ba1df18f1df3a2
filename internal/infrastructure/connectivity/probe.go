package connectivity

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

const defaultProbeTimeout = 2 * time.Second

// DialProber reports online when a TCP connection to address can be opened
// within timeout.
type DialProber struct {
	address string
	timeout time.Duration
	dialer  *net.Dialer
}

func NewDialProber(address string, timeout time.Duration) *DialProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &DialProber{
		address: address,
		timeout: timeout,
		dialer:  &net.Dialer{},
	}
}

func (p *DialProber) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Static always returns the value last passed to Set.
type Static struct {
	online atomic.Bool
}

func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) IsOnline(context.Context) bool {
	return s.online.Load()
}

func (s *Static) Set(online bool) {
	s.online.Store(online)
}
