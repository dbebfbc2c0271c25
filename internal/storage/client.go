// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tomtom215/setlist/internal/cache"
	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
)

const (
	opListChildren = "list_children"
	opGetEntry     = "get_entry"
	opDownload     = "download"

	// maxRetryAfter caps a server-provided Retry-After hint.
	maxRetryAfter = time.Minute

	// sharedCallTimeout bounds a listing or metadata fetch shared by
	// concurrent callers.
	sharedCallTimeout = 2 * time.Minute
)

// RetryPolicy controls retries of throttled and 5xx provider responses.
type RetryPolicy struct {
	MaxAttempts         int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	RandomizationFactor float64
}

// DefaultRetryPolicy is 5 attempts, 500ms doubling, capped at 8s, 50% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         5,
		BaseDelay:           500 * time.Millisecond,
		MaxDelay:            8 * time.Second,
		RandomizationFactor: 0.5,
	}
}

// Options configures a Client.
type Options struct {
	// QuotaPer100s sizes the shared token bucket: QuotaPer100s/100 tokens
	// per second.
	QuotaPer100s int
	Burst        int
	Retry        RetryPolicy
	// CacheTTL for listings and metadata. Zero disables caching.
	CacheTTL time.Duration
	// BreakerName labels circuit breaker metrics.
	BreakerName string
}

// Client is the process-wide storage client. It is safe for concurrent use;
// every caller shares one limiter, one cache and one breaker.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	cache    *cache.Cache
	cacheTTL time.Duration
	flight   singleflight.Group
	breaker  *breaker
	retry    RetryPolicy
}

// NewClient wraps provider with rate limiting, retries, caching and a
// circuit breaker.
func NewClient(provider Provider, opts Options) *Client {
	if opts.QuotaPer100s <= 0 {
		opts.QuotaPer100s = 1000
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.BreakerName == "" {
		opts.BreakerName = "storage-api"
	}

	return &Client{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(float64(opts.QuotaPer100s)/100.0), opts.Burst),
		cache:    cache.New(opts.CacheTTL),
		cacheTTL: opts.CacheTTL,
		breaker:  newBreaker(opts.BreakerName),
		retry:    opts.Retry,
	}
}

// NewClientFromConfig builds a Drive-backed client from configuration. A nil
// tokens falls back to the static access token in cfg.
func NewClientFromConfig(cfg *config.StorageConfig, tokens TokenSource) *Client {
	if tokens == nil {
		tokens = StaticToken(cfg.AccessToken)
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	provider := NewDriveProvider(cfg.BaseURL, tokens, httpClient, cfg.PageSize)

	return NewClient(provider, Options{
		QuotaPer100s: cfg.QuotaPer100s,
		Burst:        cfg.Burst,
		Retry: RetryPolicy{
			MaxAttempts:         cfg.MaxAttempts,
			BaseDelay:           cfg.BackoffBase,
			MaxDelay:            cfg.BackoffMax,
			RandomizationFactor: 0.5,
		},
		CacheTTL: cfg.CacheTTL,
	})
}

// ListChildren returns the direct children of folderID. Each page of the
// listing is a separate limited and retried request. Results are cached for
// the configured TTL and concurrent misses share one listing. The returned
// slice is owned by the caller.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Entry, error) {
	key := "list:" + folderID
	if v, ok := c.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("listing").Inc()
		return cloneEntries(v.([]Entry)), nil
	}
	metrics.CacheMisses.WithLabelValues("listing").Inc()

	v, err := c.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		var (
			entries []Entry
			token   string
		)
		for {
			res, err := c.call(ctx, opListChildren, func(ctx context.Context) (interface{}, error) {
				page, next, err := c.provider.ListChildrenPage(ctx, folderID, token)
				return listPage{entries: page, next: next}, err
			})
			if err != nil {
				return nil, err
			}
			page, _ := res.(listPage)
			entries = append(entries, page.entries...)
			if page.next == "" {
				break
			}
			token = page.next
		}
		c.store(key, entries)
		return entries, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", folderID, err)
	}
	return cloneEntries(v.([]Entry)), nil
}

// GetEntryMetadata returns metadata for a single entry, cached like
// ListChildren.
func (c *Client) GetEntryMetadata(ctx context.Context, id string) (Entry, error) {
	key := "meta:" + id
	if v, ok := c.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("metadata").Inc()
		return cloneEntry(v.(Entry)), nil
	}
	metrics.CacheMisses.WithLabelValues("metadata").Inc()

	v, err := c.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		res, err := c.call(ctx, opGetEntry, func(ctx context.Context) (interface{}, error) {
			return c.provider.GetEntry(ctx, id)
		})
		if err != nil {
			return nil, err
		}
		entry, _ := res.(Entry)
		c.store(key, entry)
		return entry, nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("get metadata for %s: %w", id, err)
	}
	return cloneEntry(v.(Entry)), nil
}

// listPage is one provider page passed through call.
type listPage struct {
	entries []Entry
	next    string
}

// shared runs fn once for all concurrent callers of key. fn runs on a
// context detached from any one caller and bounded by sharedCallTimeout, so
// a caller that gives up does not fail the others. Each caller stops
// waiting when its own ctx ends.
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(fctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// DownloadBytes opens a content stream. It is rate limited and retried
// until the stream opens but never cached. The caller closes the reader.
func (c *Client) DownloadBytes(ctx context.Context, id string) (io.ReadCloser, error) {
	res, err := c.call(ctx, opDownload, func(ctx context.Context) (interface{}, error) {
		return c.provider.Download(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	rc, ok := res.(io.ReadCloser)
	if !ok {
		return nil, fmt.Errorf("download %s: unexpected result type %T", id, res)
	}
	return rc, nil
}

// InvalidateFolder drops the cached listing of folderID.
func (c *Client) InvalidateFolder(folderID string) {
	c.cache.Delete("list:" + folderID)
}

// InvalidateAll drops every cached listing and metadata entry.
func (c *Client) InvalidateAll() {
	c.cache.Clear()
}

// BreakerState reports the circuit breaker state for health checks.
func (c *Client) BreakerState() string {
	return stateToString(c.breaker.state())
}

// CacheStats exposes cache statistics.
func (c *Client) CacheStats() cache.Stats {
	return c.cache.GetStats()
}

// Close stops the cache sweeper.
func (c *Client) Close() {
	c.cache.Close()
}

func (c *Client) store(key string, value interface{}) {
	if c.cacheTTL > 0 {
		c.cache.Set(key, value)
	}
}

// call runs one logical operation: each attempt waits on the shared limiter
// and goes through the breaker; throttled and 5xx outcomes are retried with
// exponential backoff until the attempt ceiling.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()

	var (
		result   interface{}
		attempts int
		hint     time.Duration
	)

	attempt := func() error {
		attempts++

		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
		}
		metrics.StorageLimiterWait.Observe(time.Since(waitStart).Seconds())

		res, err := c.breaker.execute(func() (interface{}, error) {
			return fn(ctx)
		})
		if err == nil {
			result = res
			return nil
		}
		if isBreakerRejection(err) {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrProviderUnavailable, err))
		}

		var pe *ProviderError
		if errors.As(err, &pe) && pe.RetryAfter > 0 {
			hint = min(pe.RetryAfter, maxRetryAfter)
		}
		if retryable(err) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, next time.Duration) {
		metrics.StorageRetries.WithLabelValues(op).Inc()
		logging.Warn().
			Str("operation", op).
			Int("attempt", attempts).
			Dur("retry_delay", next).
			Err(err).
			Msg("Storage request throttled or failed, retrying")
	}

	err := backoff.RetryNotify(attempt, c.newBackOff(ctx, &hint), notify)
	if err != nil && errors.Is(err, ErrThrottled) {
		err = fmt.Errorf("%w after %d attempts: %w", ErrRateLimitExceeded, attempts, err)
	}

	metrics.RecordStorageCall(op, resultLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) newBackOff(ctx context.Context, hint *time.Duration) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retry.BaseDelay
	exp.Multiplier = 2
	exp.MaxInterval = c.retry.MaxDelay
	exp.RandomizationFactor = c.retry.RandomizationFactor
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(c.retry.MaxAttempts-1))
	b = &retryAfterBackOff{BackOff: b, hint: hint}
	return backoff.WithContext(b, ctx)
}

// retryAfterBackOff waits at least as long as the provider asked.
type retryAfterBackOff struct {
	backoff.BackOff
	hint *time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if *b.hint > next {
		next = *b.hint
	}
	*b.hint = 0
	return next
}

func cloneEntry(e Entry) Entry {
	if e.Parents != nil {
		e.Parents = append([]string(nil), e.Parents...)
	}
	return e
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = cloneEntry(e)
	}
	return out
}
