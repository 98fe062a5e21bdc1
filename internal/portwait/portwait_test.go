package portwait

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedPort returns a port nothing is listening on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestWaitUntilOpenListening(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	accepted := make(chan struct{})
	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
			close(accepted)
		}
	}()

	err = WaitUntilOpen(context.Background(), l.Addr().(*net.TCPAddr).Port, 0)
	require.NoError(t, err)

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("probe connection never reached the listener")
	}
}

func TestWaitUntilOpenZeroAttempts(t *testing.T) {
	port := closedPort(t)

	start := time.Now()
	err := WaitUntilOpen(context.Background(), port, 0)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, errors.Is(err, syscall.ECONNREFUSED), "expected connection refused, got %v", err)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 1, timeoutErr.Attempts)
	assert.Less(t, elapsed, DefaultDelay)
}

func TestWaitUntilOpenRetriesUntilListening(t *testing.T) {
	var dials int32
	w := &Waiter{
		Host:  DefaultHost,
		Delay: time.Millisecond,
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if atomic.AddInt32(&dials, 1) < 4 {
				return nil, syscall.ECONNREFUSED
			}
			client, server := net.Pipe()
			server.Close()
			return client, nil
		},
	}

	err := w.WaitUntilOpen(context.Background(), 8000, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 4, atomic.LoadInt32(&dials))
}

func TestWaitUntilOpenExhaustsBudget(t *testing.T) {
	var dials int32
	dialErr := errors.New("connection refused")
	w := &Waiter{
		Host:  DefaultHost,
		Delay: time.Millisecond,
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			atomic.AddInt32(&dials, 1)
			return nil, dialErr
		},
	}

	err := w.WaitUntilOpen(context.Background(), 8000, 3)
	require.ErrorIs(t, err, dialErr)
	assert.EqualValues(t, 4, atomic.LoadInt32(&dials))
	assert.Contains(t, err.Error(), "127.0.0.1:8000")
}

func TestWaitUntilOpenContextCanceled(t *testing.T) {
	w := &Waiter{
		Host:  DefaultHost,
		Delay: time.Hour,
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, syscall.ECONNREFUSED
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := w.WaitUntilOpen(ctx, 8000, 400)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeout(err))
}
