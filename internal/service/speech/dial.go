package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DialOptions controls how speech WebSocket connections are established.
type DialOptions struct {
	HandshakeTimeout time.Duration
	Attempts         int
	Backoff          time.Duration
}

// DefaultDialOptions returns the options used by the speech clients.
func DefaultDialOptions() DialOptions {
	return DialOptions{
		HandshakeTimeout: 30 * time.Second,
		Attempts:         3,
		Backoff:          time.Second,
	}
}

// dialWithRetry connects to url, retrying network failures and 5xx/429
// handshakes with a linear backoff. Other handshake rejections fail at once.
func dialWithRetry(ctx context.Context, opts DialOptions, tag, url string, header http.Header) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err == nil {
			if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
				log.Printf("[%s] connected, logid %s", tag, logID)
			}
			return conn, nil
		}

		lastErr = describeDialError(resp, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryableDial(resp, err) || i == attempts-1 {
			break
		}

		log.Printf("[%s] dial attempt %d failed: %v", tag, i+1, lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * opts.Backoff):
		}
	}

	return nil, fmt.Errorf("failed to connect to %s: %w", tag, lastErr)
}

func retryableDial(resp *http.Response, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
}

func describeDialError(resp *http.Response, err error) error {
	if resp == nil {
		return err
	}
	return fmt.Errorf("%w (status %s)", err, resp.Status)
}

// closeOnDone closes conn when ctx ends so blocked reads return. The returned
// func releases the watcher.
func closeOnDone(ctx context.Context, conn *websocket.Conn) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
