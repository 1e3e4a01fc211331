// Package httpclient provides the shared provider transport: a bounded
// connection pool that retries rate-limit and server errors with backoff.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type ClientConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	JitterRange    [2]int // Min/max jitter in milliseconds
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	UserAgent      string
}

// ClientPool is safe for concurrent use by every provider worker.
type ClientPool struct {
	config    ClientConfig
	semaphore chan struct{}
	client    *http.Client
	mu        sync.RWMutex
	stats     ClientStats
}

type ClientStats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	RetriedRequests int64
	TotalLatency    time.Duration
}

func NewClientPool(config ClientConfig) *ClientPool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	return &ClientPool{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrency),
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}
}

// Do sends req, retrying transient network errors and 429/5xx responses up
// to MaxRetries times. When retries run out on a retryable status the last
// response is returned so callers can inspect it.
func (cp *ClientPool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	select {
	case cp.semaphore <- struct{}{}:
		defer func() { <-cp.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if cp.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", cp.config.UserAgent)
	}

	if err := cp.applyJitter(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= cp.config.MaxRetries; attempt++ {
		if attempt > 0 {
			cp.incrementStat("retried")

			backoff := cp.calculateBackoff(attempt)
			log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", req.URL.Redacted()).
				Msg("Retrying HTTP request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		start := time.Now()
		resp, err := cp.client.Do(req.WithContext(ctx))
		cp.recordLatency(time.Since(start))

		if err != nil {
			lastErr = err
			if ctx.Err() == nil && isRetryableError(err) {
				continue
			}
			break
		}

		if isRetryableStatus(resp.StatusCode) && attempt < cp.config.MaxRetries {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			continue
		}

		cp.incrementStat("success")
		return resp, nil
	}

	cp.incrementStat("failed")
	return nil, lastErr
}

func (cp *ClientPool) applyJitter(ctx context.Context) error {
	if cp.config.JitterRange[0] >= cp.config.JitterRange[1] {
		return nil
	}

	min := cp.config.JitterRange[0]
	max := cp.config.JitterRange[1]
	jitter := time.Duration(rand.Intn(max-min)+min) * time.Millisecond

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cp *ClientPool) calculateBackoff(attempt int) time.Duration {
	backoff := cp.config.BackoffBase * time.Duration(1<<uint(attempt-1))
	if cp.config.BackoffMax > 0 && backoff > cp.config.BackoffMax {
		backoff = cp.config.BackoffMax
	}

	// Add up to 10% jitter to backoff
	jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
	return backoff + jitter
}

func (cp *ClientPool) GetStats() ClientStats {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.stats
}

func (cp *ClientPool) incrementStat(statType string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	switch statType {
	case "success":
		cp.stats.TotalRequests++
		cp.stats.SuccessRequests++
	case "failed":
		cp.stats.TotalRequests++
		cp.stats.FailedRequests++
	case "retried":
		cp.stats.RetriedRequests++
	}
}

func (cp *ClientPool) recordLatency(duration time.Duration) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.stats.TotalLatency += duration
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"connection refused",
		"connection reset",
		"temporary failure",
		"network is unreachable",
		"eof",
	} {
		if strings.Contains(msg, retryable) {
			return true
		}
	}
	return false
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
