package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/m3rciful/mergebot/core/telegram/netutil"
)

// Transport tuning for Bot API calls.
const (
	dialTimeout      = 5 * time.Second
	keepAlive        = 30 * time.Second
	tlsTimeout       = 5 * time.Second
	idleConnTimeout  = 30 * time.Second
	headerTimeout    = 5 * time.Second
	minClientTimeout = 30 * time.Second
	pollTimeoutSlack = 15 * time.Second

	transportRetries = 3
	transportBackoff = 2 * time.Second
)

// BuildHTTPClient returns the client used by the bot. Its overall timeout
// always outlasts a long poll of pollTimeout.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: headerTimeout + pollTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   max(minClientTimeout, pollTimeout+pollTimeoutSlack),
		Transport: &retryTransport{base: base, retries: transportRetries, interval: transportBackoff},
	}
}

// retryTransport repeats requests that failed below HTTP, such as dial errors
// and timeouts. Requests whose body cannot be replayed are tried once.
type retryTransport struct {
	base     http.RoundTripper
	retries  uint64
	interval time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	retries := t.retries
	if req.Body != nil && req.GetBody == nil {
		retries = 0
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = t.interval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, retries), req.Context())

	first := true
	return backoff.RetryWithData(func() (*http.Response, error) {
		attempt := req
		if !first {
			attempt = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, backoff.Permanent(err)
				}
				attempt.Body = body
			}
		}
		first = false

		resp, err := base.RoundTrip(attempt)
		if err != nil && !netutil.ShouldRetry(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}, policy)
}
