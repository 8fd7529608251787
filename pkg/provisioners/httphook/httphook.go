package httphook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

const (
	provisionPath = "/provision"
	terminatePath = "/terminate"
	requestIDHdr  = "X-Request-Id"
)

var errNoCapacity = errors.New("backend has no capacity")

type Settings struct {
	URL           string            `json:"url"`
	Timeout       time.Duration     `json:"timeout"`
	Attempts      uint              `json:"attempts"`
	RetryDelay    time.Duration     `json:"retry_delay"`
	Headers       map[string]string `json:"headers"`
	TLSSkipVerify bool              `json:"tls_skip_verify"`
}

type workerDto struct {
	Address string `json:"address"`
}

// Provisioner delegates worker lifecycle to an external HTTP service.
type Provisioner struct {
	client   *http.Client
	base     *url.URL
	headers  map[string]string
	attempts uint
	delay    time.Duration
}

func New(settings *Settings) (*Provisioner, error) {
	base, err := url.Parse(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hook url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported hook url scheme %q", base.Scheme)
	}
	if settings.Timeout == 0 {
		settings.Timeout = 5 * time.Minute
	}
	if settings.Attempts == 0 {
		settings.Attempts = 3
	}
	if settings.RetryDelay == 0 {
		settings.RetryDelay = time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if base.Scheme == "https" {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: settings.TLSSkipVerify,
		}
	}
	return &Provisioner{
		client: &http.Client{
			Timeout:   settings.Timeout,
			Transport: transport,
		},
		base:     base,
		headers:  settings.Headers,
		attempts: settings.Attempts,
		delay:    settings.RetryDelay,
	}, nil
}

func (p *Provisioner) Provision(ctx context.Context) (models.WorkerAddr, bool) {
	reqID, err := uuid.GenerateUUID()
	if err != nil {
		log.Error().Err(err).Msg("[httphook]: failed to generate request id")
		return "", false
	}
	addr, err := retry.DoWithData(
		func() (models.WorkerAddr, error) {
			return p.provisionOnce(ctx, reqID)
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errNoCapacity)
		}),
	)
	if errors.Is(err, errNoCapacity) {
		log.Info().Msgf("[httphook]: request %s: no capacity", reqID)
		return "", false
	}
	if err != nil {
		log.Error().Err(err).Msgf("[httphook]: request %s: provisioning failed", reqID)
		return "", false
	}
	return addr, true
}

func (p *Provisioner) provisionOnce(ctx context.Context, reqID string) (models.WorkerAddr, error) {
	resp, err := p.post(ctx, provisionPath, reqID, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusServiceUnavailable {
		return "", errNoCapacity
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("provision hook answered with status %d", resp.StatusCode)
	}
	dto := workerDto{}
	err = json.NewDecoder(resp.Body).Decode(&dto)
	if err != nil {
		return "", fmt.Errorf("failed to decode provision response: %w", err)
	}
	if dto.Address == "" {
		return "", errNoCapacity
	}
	return models.WorkerAddr(dto.Address), nil
}

func (p *Provisioner) Terminate(ctx context.Context, addr models.WorkerAddr) error {
	reqID, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Errorf("failed to generate request id: %w", err)
	}
	body, err := json.Marshal(workerDto{Address: addr.String()})
	if err != nil {
		return fmt.Errorf("failed to encode terminate request: %w", err)
	}
	return retry.Do(
		func() error {
			resp, err := p.post(ctx, terminatePath, reqID, body)
			if err != nil {
				return err
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode/100 != 2 {
				return fmt.Errorf("terminate hook answered with status %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.LastErrorOnly(true),
	)
}

func (p *Provisioner) post(ctx context.Context, path string, reqID string, body []byte) (*http.Response, error) {
	target := p.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to form hook request: %w", err)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHdr, reqID)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request do error: %w", err)
	}
	return resp, nil
}
