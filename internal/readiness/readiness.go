package readiness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type Settings struct {
	Path     string
	Timeout  time.Duration
	Attempts uint
	Delay    time.Duration
}

// HTTPProbe waits until a freshly booted worker answers its info endpoint.
type HTTPProbe struct {
	client   *http.Client
	path     string
	attempts uint
	delay    time.Duration
}

func NewHTTPProbe(settings Settings) *HTTPProbe {
	if settings.Path == "" {
		settings.Path = "/info"
	}
	if settings.Timeout == 0 {
		settings.Timeout = 5 * time.Second
	}
	if settings.Attempts == 0 {
		settings.Attempts = 30
	}
	if settings.Delay == 0 {
		settings.Delay = 2 * time.Second
	}
	return &HTTPProbe{
		client: &http.Client{
			Timeout: settings.Timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
		path:     settings.Path,
		attempts: settings.Attempts,
		delay:    settings.Delay,
	}
}

func (p *HTTPProbe) WaitReady(ctx context.Context, addr models.WorkerAddr) error {
	target := url.URL{
		Scheme: "http",
		Host:   addr.String(),
		Path:   p.path,
	}
	return retry.Do(
		func() error {
			return p.check(ctx, target.String())
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (p *HTTPProbe) check(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to form probe request: %w", err))
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request do error: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	log.Debug().Msgf("[readiness]: %s answered with status %d", target, resp.StatusCode)
	return fmt.Errorf("worker is not ready: status %d", resp.StatusCode)
}
