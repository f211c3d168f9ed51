// Package host implements the Host capability set (subscribe, send,
// next_event, list_strategies) on top of net/http polling: one ticker per
// subscribed fingerprint, with every result fanned into a single channel.
package host

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelquant/stratrunner/internal/domain"
	"github.com/kestrelquant/stratrunner/internal/runtime"
)

// Poller is a Host implementation that polls registered requests on a
// timer and executes on-demand sends against a shared *http.Client,
// fanning every resulting event into a single buffered channel the
// Executor drains.
type Poller struct {
	client *http.Client
	logger *slog.Logger

	events chan runtime.Event

	mu      sync.Mutex
	stopped map[runtime.Fingerprint]chan struct{}

	strategies func() []string

	// limiter, when set, is consulted before every outbound request (both
	// polled and on-demand) so a misbehaving strategy cannot flood an
	// exchange. Nil disables throttling.
	limiter domain.RateLimiter
}

// NewPoller builds a Poller. strategies is called by ListStrategies — pass
// (*runtime.Registry).Names.
func NewPoller(client *http.Client, logger *slog.Logger, strategies func() []string) *Poller {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Poller{
		client:     client,
		logger:     logger,
		events:     make(chan runtime.Event, 256),
		stopped:    make(map[runtime.Fingerprint]chan struct{}),
		strategies: strategies,
	}
}

// SetRateLimiter installs a shared rate limiter consulted before every
// outbound request, keyed by (url, env_suffix). Must be called before
// Subscribe/SubmitSend are first used.
func (p *Poller) SetRateLimiter(rl domain.RateLimiter) {
	p.limiter = rl
}

// ListStrategies satisfies the host's strategy-discovery capability.
func (p *Poller) ListStrategies() []string {
	return p.strategies()
}

// Subscribe requests periodic polling of req every periodMs. Idempotent on
// req's fingerprint: re-subscribing the same (url, env_suffix) is a
// no-op.
func (p *Poller) Subscribe(req domain.Request, periodMs int64) error {
	fp := runtime.Fingerprint{URL: req.URL, EnvSuffix: req.EnvSuffix}

	p.mu.Lock()
	if _, exists := p.stopped[fp]; exists {
		p.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	p.stopped[fp] = stop
	p.mu.Unlock()

	go p.pollLoop(fp, req, time.Duration(periodMs)*time.Millisecond, stop)
	return nil
}

func (p *Poller) pollLoop(fp runtime.Fingerprint, req domain.Request, period time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			resp := p.execute(req)
			p.events <- runtime.Event{
				Kind:      runtime.EventFetcherResponse,
				URL:       fp.URL,
				EnvSuffix: fp.EnvSuffix,
				Status:    resp.Status,
				Content:   resp.Content,
				Error:     resp.Error,
				Terminate: resp.Terminate,
				Restart:   resp.Restart,
			}
		case <-stop:
			return
		}
	}
}

// Unsubscribe stops polling a previously subscribed fingerprint.
func (p *Poller) Unsubscribe(fp runtime.Fingerprint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stop, ok := p.stopped[fp]; ok {
		close(stop)
		delete(p.stopped, fp)
	}
}

// SubmitSend fires req once, asynchronously, and reports its result as a
// SendResponse event correlated by the returned token.
func (p *Poller) SubmitSend(strategy string, payload any) (string, error) {
	req, ok := payload.(domain.Request)
	if !ok {
		return "", &invalidPayloadError{strategy: strategy}
	}
	token := uuid.NewString()
	go func() {
		resp := p.execute(req)
		p.events <- runtime.Event{
			Kind:      runtime.EventSendResponse,
			Token:     token,
			URL:       resp.URL,
			EnvSuffix: resp.EnvSuffix,
			Status:    resp.Status,
			Content:   resp.Content,
			Error:     resp.Error,
		}
	}()
	return token, nil
}

// NextEvent blocks until an event is available or ctx is cancelled.
func (p *Poller) NextEvent(ctx context.Context) (runtime.Event, error) {
	select {
	case ev := <-p.events:
		return ev, nil
	case <-ctx.Done():
		return runtime.Event{}, ctx.Err()
	}
}

// PushSignal injects a Signal event that delivers terminate/restart to the
// Executor through NextEvent.
func (p *Poller) PushSignal(terminate, restart bool) {
	p.events <- runtime.Event{Kind: runtime.EventSignal, Terminate: terminate, Restart: restart}
}

func (p *Poller) execute(req domain.Request) domain.ResponsePayload {
	if p.limiter != nil {
		key := req.URL + "|" + req.EnvSuffix
		if err := p.limiter.Wait(context.Background(), key); err != nil {
			if p.logger != nil {
				p.logger.Warn("host request throttled", slog.String("url", req.URL), slog.Any("error", err))
			}
			return domain.ResponsePayload{URL: req.URL, EnvSuffix: req.EnvSuffix, Error: true, Content: err.Error()}
		}
	}

	httpReq, err := http.NewRequest(strings.ToUpper(string(req.Method)), req.URL, bodyReader(req.Body))
	if err != nil {
		return domain.ResponsePayload{URL: req.URL, EnvSuffix: req.EnvSuffix, Error: true, Content: err.Error()}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("host request failed", slog.String("url", req.URL), slog.Any("error", err))
		}
		return domain.ResponsePayload{URL: req.URL, EnvSuffix: req.EnvSuffix, Error: true, Content: err.Error()}
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ResponsePayload{URL: req.URL, EnvSuffix: req.EnvSuffix, Status: uint16(resp.StatusCode), Error: true, Content: err.Error()}
	}

	return domain.ResponsePayload{
		URL:       req.URL,
		EnvSuffix: req.EnvSuffix,
		Status:    uint16(resp.StatusCode),
		Content:   string(content),
		Error:     resp.StatusCode >= 400,
	}
}

func bodyReader(body string) io.Reader {
	if body == "" {
		return nil
	}
	return bytes.NewBufferString(body)
}

type invalidPayloadError struct{ strategy string }

func (e *invalidPayloadError) Error() string {
	return "host: strategy " + e.strategy + " sent a non-domain.Request payload"
}
