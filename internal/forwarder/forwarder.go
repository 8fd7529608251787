package forwarder

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

// hop-by-hop headers are meaningful for a single connection only
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Response is a worker reply. Worker is the address that actually served the request,
// so callers never have to recover it from the reply itself.
type Response struct {
	Worker     models.WorkerAddr
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

type Forwarder struct {
	client *http.Client
}

// New builds a forwarder without a request timeout: a hung worker hangs only its caller,
// and the caller's context still cancels the call.
func New() *Forwarder {
	transport := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Forwarder{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *Forwarder) Forward(ctx context.Context, worker models.WorkerAddr, in *http.Request) (*Response, error) {
	target := url.URL{
		Scheme:   "http",
		Host:     worker.String(),
		Path:     in.URL.Path,
		RawPath:  in.URL.RawPath,
		RawQuery: in.URL.RawQuery,
	}
	var body io.Reader
	if in.Body != nil && in.Body != http.NoBody {
		body = in.Body
	}
	out, err := http.NewRequestWithContext(ctx, in.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to form request to worker %s: %w", worker, err)
	}
	out.Header = in.Header.Clone()
	removeHopHeaders(out.Header)
	out.ContentLength = in.ContentLength
	if in.RemoteAddr != "" {
		if clientIP, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
			out.Header.Set("X-Forwarded-For", clientIP)
		}
	}

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("request to worker %s failed: %w", worker, err)
	}
	removeHopHeaders(resp.Header)
	return &Response{
		Worker:     worker,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
