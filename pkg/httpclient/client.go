package httpclient

import (
	"maps"
	"net/http"
	"strings"

	"github.com/linlay/agent-webclient/pkg/useragent"
)

type HTTPOptions struct {
	Header http.Header
}

type Opt func(*HTTPOptions)

// WithHeader adds a static header to every request. Blank values are skipped.
func WithHeader(key, value string) Opt {
	return func(o *HTTPOptions) {
		if strings.TrimSpace(value) == "" {
			return
		}
		o.Header.Set(key, value)
	}
}

func NewHTTPClient(opts ...Opt) *http.Client {
	httpOptions := HTTPOptions{
		Header: make(http.Header),
	}
	for _, opt := range opts {
		opt(&httpOptions)
	}

	return &http.Client{
		Transport: &userAgentTransport{
			agent:  useragent.Header,
			header: httpOptions.Header,
			rt:     http.DefaultTransport,
		},
	}
}

type userAgentTransport struct {
	agent  string
	header http.Header
	rt     http.RoundTripper
}

func (u *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	r2.Header.Set("User-Agent", u.agent)
	maps.Copy(r2.Header, u.header)
	return u.rt.RoundTrip(r2)
}
