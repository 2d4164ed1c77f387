package remote

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const rateLimitBurst = 10

type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	return t.transport.RoundTrip(req)
}

func newRateLimitedTransport(base http.RoundTripper, perSecond float64) http.RoundTripper {
	if perSecond <= 0 {
		return base
	}

	interval := time.Duration(float64(time.Second) / perSecond)
	return &rateLimitedTransport{
		transport: base,
		limiter:   rate.NewLimiter(rate.Every(interval), rateLimitBurst),
	}
}

// queryTokenTransport adds the token as an access_token query parameter.
type queryTokenTransport struct {
	transport http.RoundTripper
	token     string
}

func (t *queryTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	q := clone.URL.Query()
	q.Set("access_token", t.token)
	clone.URL.RawQuery = q.Encode()

	return t.transport.RoundTrip(clone)
}
