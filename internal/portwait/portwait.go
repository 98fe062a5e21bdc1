// Package portwait polls a loopback TCP port until something accepts
// connections on it.
package portwait

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultHost is the loopback address probed.
	DefaultHost = "127.0.0.1"
	// DefaultDelay is the fixed pause between two connect attempts.
	DefaultDelay = 50 * time.Millisecond
)

// TimeoutError is returned once the attempt budget is exhausted.
type TimeoutError struct {
	Addr     string
	Attempts int   // dials performed
	Err      error // last dial error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("port %s did not open after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a readiness timeout.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// DialFunc opens a probe connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Waiter probes a port with a flat interval between attempts.
type Waiter struct {
	Host  string
	Delay time.Duration
	Dial  DialFunc
}

// New returns a Waiter probing DefaultHost every DefaultDelay.
func New() *Waiter {
	var d net.Dialer
	return &Waiter{
		Host:  DefaultHost,
		Delay: DefaultDelay,
		Dial:  d.DialContext,
	}
}

// WaitUntilOpen dials host:port until a connection succeeds. The first dial
// is not counted against maxAttempts, so maxAttempts=0 means exactly one dial
// with no delay. The probe connection is closed immediately.
func (w *Waiter) WaitUntilOpen(ctx context.Context, port, maxAttempts int) error {
	addr := net.JoinHostPort(w.Host, strconv.Itoa(port))

	var lastErr error
	for attempt := 0; ; attempt++ {
		// Check context cancellation before each attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := w.Dial(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err

		if attempt >= maxAttempts {
			return &TimeoutError{Addr: addr, Attempts: attempt + 1, Err: lastErr}
		}

		timer := time.NewTimer(w.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitUntilOpen probes 127.0.0.1:port with the default delay.
func WaitUntilOpen(ctx context.Context, port, maxAttempts int) error {
	return New().WaitUntilOpen(ctx, port, maxAttempts)
}
