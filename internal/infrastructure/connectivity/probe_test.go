package connectivity_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/infrastructure/connectivity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialProber_Online(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	prober := connectivity.NewDialProber(ln.Addr().String(), time.Second)
	assert.True(t, prober.IsOnline(context.Background()))
}

func TestDialProber_Offline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	prober := connectivity.NewDialProber(addr, 200*time.Millisecond)
	assert.False(t, prober.IsOnline(context.Background()))
}

func TestDialProber_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := connectivity.NewDialProber("127.0.0.1:1", time.Second)
	assert.False(t, prober.IsOnline(ctx))
}

func TestStatic(t *testing.T) {
	s := connectivity.NewStatic(true)
	assert.True(t, s.IsOnline(context.Background()))

	s.Set(false)
	assert.False(t, s.IsOnline(context.Background()))
}
