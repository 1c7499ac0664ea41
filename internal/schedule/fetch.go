package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// FetchError wraps any network, HTTP, or decode failure while fetching the
// schedule. The caller surfaces it as "no data available" and retries on the
// next scheduled fetch.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "schedule fetch: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves today's schedule from the attendance service.
type Fetcher struct {
	base      string
	studentID int
	client    *http.Client
	log       *zap.Logger
}

// NewFetcher creates a Fetcher against the given base URL
// (e.g. "http://192.168.4.12:8080/api").
func NewFetcher(base string, studentID int, client *http.Client, log *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{base: base, studentID: studentID, client: client, log: log}
}

// FetchToday GETs /students/{id}/schedule/today, retrying transient failures
// (network errors and 5xx) with exponential backoff. Non-retryable failures
// and exhausted retries come back as *FetchError.
func (f *Fetcher) FetchToday(ctx context.Context) (*DailySchedule, error) {
	url := fmt.Sprintf("%s/students/%d/schedule/today", f.base, f.studentID)

	var sched *DailySchedule
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			f.log.Warn("schedule fetch attempt failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			err := fmt.Errorf("server status %d", resp.StatusCode)
			f.log.Warn("schedule fetch attempt failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		var d DailySchedule
		if err := json.Unmarshal(body, &d); err != nil {
			return fmt.Errorf("decode schedule: %w", err)
		}
		sched = &d
		return nil
	})
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	return sched, nil
}

// Provider combines the cache and the fetcher into the fetch-or-reuse rule:
// a cached schedule fetched today is used as-is, anything else triggers a
// fetch, and a successful fetch refreshes the cache.
type Provider struct {
	cache   *Cache
	fetcher *Fetcher
	log     *zap.Logger
}

// NewProvider wires a Provider from its parts.
func NewProvider(cache *Cache, fetcher *Fetcher, log *zap.Logger) *Provider {
	return &Provider{cache: cache, fetcher: fetcher, log: log}
}

// GetDaily returns today's schedule, preferring a same-day cached copy.
func (p *Provider) GetDaily(ctx context.Context, now time.Time) (*DailySchedule, error) {
	today := DateString(now)

	cached, fetchedOn, err := p.cache.Load()
	if err == nil && fetchedOn == today {
		p.log.Info("using cached schedule", zap.String("fetched_on", fetchedOn))
		return cached, nil
	}
	if err != nil && err != ErrCacheMiss {
		p.log.Warn("schedule cache unreadable", zap.Error(err))
	}

	return p.Refresh(ctx, now)
}

// Refresh always fetches from the service, bypassing the same-day cache, and
// updates the cache on success. Used by the periodic refresh tick and after
// a confirmed status sync, so local state converges on server truth.
func (p *Provider) Refresh(ctx context.Context, now time.Time) (*DailySchedule, error) {
	sched, err := p.fetcher.FetchToday(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Save(sched, DateString(now)); err != nil {
		p.log.Warn("failed to cache fetched schedule", zap.Error(err))
	}
	return sched, nil
}
