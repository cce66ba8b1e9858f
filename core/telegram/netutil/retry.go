// Package netutil classifies Telegram API failures for the retrying callers.
package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"
)

// maxRetryAfter caps how long a flood wait may delay a single retry.
const maxRetryAfter = 30 * time.Second

// ShouldRetry reports whether err is a transient failure of the Telegram API
// or the network path to it. Context cancellation is never retried.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= http.StatusInternalServerError
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Backoff returns the wait before retry number attempt (starting at 1).
// A flood wait from Telegram wins over the linear backoff.
func Backoff(err error, attempt int, base time.Duration) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return min(time.Duration(flood.RetryAfter)*time.Second, maxRetryAfter)
	}
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}
