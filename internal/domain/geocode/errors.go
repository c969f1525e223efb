package geocode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

var (
	// ErrNotConfigured means the provider has no credentials. A standing
	// condition, not a fault: callers switch to the fallback provider.
	ErrNotConfigured = errors.New("geocode provider not configured")

	// ErrAuthFailed means the backend rejected our credentials.
	ErrAuthFailed = errors.New("geocode provider auth failed")

	// ErrNoAddress means reverse lookup succeeded but found no address.
	ErrNoAddress = errors.New("no address found")
)

func classifyRequestError(ctx context.Context, provider string, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("%s timeout: %w", provider, err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("%s network error: %w", provider, err)
	}
	return fmt.Errorf("%s request error: %w", provider, err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	return false
}
