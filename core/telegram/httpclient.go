package telegram

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/songbot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
	// headerSlack is added on top of the long-poll timeout before response headers are due.
	headerSlack = 10 * time.Second
)

// HTTPClientOptions tunes BuildHTTPClient.
type HTTPClientOptions struct {
	// LongPoll is the getUpdates timeout the server may hold a request for.
	LongPoll time.Duration
	// Upload bounds a whole request, including media uploads.
	Upload time.Duration
}

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// Response headers are due shortly after the long-poll window; the total
// request time is bounded by the upload limit so large files can be sent.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	if opts.LongPoll <= 0 {
		opts.LongPoll = defaultLongPollTimeout
	}
	if opts.Upload <= 0 {
		opts.Upload = 5 * time.Minute
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: opts.LongPoll + headerSlack,
		ExpectContinueTimeout: 1 * time.Second,
	}

	retry := &retryTransport{
		base:       transport,
		maxRetries: defaultRetryAttempts,
		backoff:    defaultRetryBackoff,
	}

	return &http.Client{
		Timeout:   opts.Upload,
		Transport: retry,
	}
}

// retryTransport repeats requests that failed with a transient network error.
// Requests whose body cannot be rewound are tried once.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.maxRetries && netutil.ShouldRetry(err); attempt++ {
		next, ok := rewind(req)
		if !ok {
			break
		}
		if waitErr := sleep(req.Context(), netutil.Backoff(err, attempt, t.backoff)); waitErr != nil {
			return nil, waitErr
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

// rewind clones req with a fresh body, or reports false for a streamed body.
func rewind(req *http.Request) (*http.Request, bool) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	next.Body = body
	return next, true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
