package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"datalens-core/internal/domain/entity"
)

const (
	maxErrorBodyBytes = 2048
	windowRetention   = 30 * time.Minute
)

// BackoffPolicy computes retry delays. Delay is pure so schedules can be
// asserted in tests without sleeping.
type BackoffPolicy struct {
	Base       time.Duration
	Factor     float64
	Cap        time.Duration
	MaxRetries int
	Jitter     func() float64 // [0,1); nil means math/rand
}

func (p BackoffPolicy) Delay(attempt int) time.Duration {
	backoff := float64(p.Base)
	for i := 0; i < attempt; i++ {
		backoff *= p.Factor
	}
	j := rand.Float64
	if p.Jitter != nil {
		j = p.Jitter
	}
	d := time.Duration(backoff + (j()*0.2)*backoff)
	if d > p.Cap {
		d = p.Cap
	}
	return d
}

// TransportConfig tunes the throttle and retry behavior of one Transport.
type TransportConfig struct {
	BaseURL    string
	APIKey     string
	APIVersion string

	ReadSpacing  time.Duration // min gap before a GET
	WriteSpacing time.Duration // min gap before a mutating verb
	PerMinuteCap int           // rolling-window admission limit
	MaxInFlight  int

	Backoff BackoffPolicy
}

// DefaultTransportConfig mirrors the production tuning.
func DefaultTransportConfig(baseURL, apiKey string) TransportConfig {
	return TransportConfig{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		APIVersion:   "2024-05-01-preview",
		ReadSpacing:  250 * time.Millisecond,
		WriteSpacing: 500 * time.Millisecond,
		PerMinuteCap: 40,
		MaxInFlight:  2,
		Backoff: BackoffPolicy{
			Base:       time.Second,
			Factor:     2,
			Cap:        30 * time.Second,
			MaxRetries: 5,
		},
	}
}

// Transport executes one logical remote call with throttling, bounded
// concurrency and rate-limit-aware retries. All other layers reach the
// remote API through it.
type Transport struct {
	cfg   TransportConfig
	hc    *http.Client
	log   *slog.Logger
	slots chan struct{}
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu         sync.Mutex
	lastCall   time.Time
	window     []time.Time
	totalCalls int
	startedAt  time.Time
}

func NewTransport(cfg TransportConfig, log *slog.Logger) *Transport {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 2
	}
	t := &Transport{
		cfg:   cfg,
		hc:    &http.Client{Timeout: 120 * time.Second},
		log:   log,
		slots: make(chan struct{}, cfg.MaxInFlight),
		sleep: sleepCtx,
		now:   time.Now,
	}
	t.startedAt = t.now()
	return t
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send issues a JSON request and returns the raw response body.
func (t *Transport) Send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}
	return t.do(ctx, method, func() (*http.Request, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, t.endpoint(path), rd)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
}

// SendMultipart uploads one file with accompanying form fields.
func (t *Transport) SendMultipart(ctx context.Context, path string, fields map[string]string, fileName string, data []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	body := buf.Bytes()
	contentType := w.FormDataContentType()

	return t.do(ctx, http.MethodPost, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(path), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

func (t *Transport) endpoint(path string) string {
	return t.cfg.BaseURL + path + "?api-version=" + t.cfg.APIVersion
}

// do runs the admission/throttle/retry loop around one logical call. The
// request is rebuilt per attempt so the body reader is fresh.
func (t *Transport) do(ctx context.Context, method string, build func() (*http.Request, error)) (json.RawMessage, error) {
	select {
	case t.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.slots }()

	var lastWait time.Duration
	var lastNetErr error
	for attempt := 0; ; attempt++ {
		if err := t.sleep(ctx, t.throttleDelay(method)); err != nil {
			return nil, err
		}
		t.recordCall()

		req, err := build()
		if err != nil {
			return nil, err
		}
		req.Header.Set("api-key", t.cfg.APIKey)

		resp, err := t.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastNetErr = err
			if attempt >= t.cfg.Backoff.MaxRetries {
				return nil, &entity.NetworkError{Err: lastNetErr}
			}
			wait := t.cfg.Backoff.Delay(attempt)
			t.log.Warn("transient network failure, retrying",
				"attempt", attempt+1, "wait", wait, "error", err)
			if err := t.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp)
			if wait <= 0 {
				wait = t.cfg.Backoff.Delay(attempt)
			}
			lastWait = wait
			drain(resp)
			if attempt >= t.cfg.Backoff.MaxRetries {
				return nil, &entity.RateLimitError{Wait: lastWait}
			}
			t.log.Warn("rate limited by remote api, backing off",
				"attempt", attempt+1, "wait", wait)
			if err := t.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := errorMessage(resp)
			resp.Body.Close()
			return nil, &entity.RemoteAPIError{Status: resp.StatusCode, Message: msg}
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &entity.NetworkError{Err: err}
		}
		return raw, nil
	}
}

// throttleDelay returns how long the caller must wait before the next call
// to honor inter-request spacing and the rolling per-minute cap.
func (t *Transport) throttleDelay(method string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	spacing := t.cfg.WriteSpacing
	if method == http.MethodGet {
		spacing = t.cfg.ReadSpacing
	}

	var wait time.Duration
	if !t.lastCall.IsZero() {
		if gap := now.Sub(t.lastCall); gap < spacing {
			wait = spacing - gap
		}
	}

	t.pruneWindowLocked(now)
	if t.cfg.PerMinuteCap > 0 {
		cutoff := now.Add(-time.Minute)
		recent := 0
		var oldest time.Time
		for _, ts := range t.window {
			if ts.After(cutoff) {
				if recent == 0 {
					oldest = ts
				}
				recent++
			}
		}
		if recent >= t.cfg.PerMinuteCap {
			if w := oldest.Add(time.Minute).Sub(now); w > wait {
				wait = w
			}
		}
	}
	return wait
}

func (t *Transport) recordCall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.lastCall = now
	t.window = append(t.window, now)
	t.totalCalls++
	t.pruneWindowLocked(now)
}

func (t *Transport) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-windowRetention)
	i := 0
	for i < len(t.window) && !t.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		t.window = append(t.window[:0], t.window[i:]...)
	}
}

// Stats reports cumulative usage since construction or the last reset.
func (t *Transport) Stats() entity.CallStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := t.now().Sub(t.startedAt).Seconds()
	perMin := 0.0
	if elapsed > 0 {
		perMin = float64(t.totalCalls) / (elapsed / 60)
	}
	return entity.CallStats{
		TotalCalls:             t.totalCalls,
		SessionDurationSeconds: elapsed,
		CallsPerMinute:         perMin,
	}
}

// ResetStats clears counters and the admission window.
func (t *Transport) ResetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalCalls = 0
	t.window = t.window[:0]
	t.lastCall = time.Time{}
	t.startedAt = t.now()
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(raw) > 0 {
		return string(raw)
	}
	return resp.Status
}
