package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"stacingest/internal"
	"stacingest/ports"
)

// ResolverOptions sizes the descriptor cache. FetchTimeout bounds a shared
// fetch once it no longer follows any single caller's context.
type ResolverOptions struct {
	CacheSize    int
	CacheTTL     time.Duration
	FetchTimeout time.Duration
}

// Resolver fetches extension schemas and caches parsed descriptors by URL.
// Concurrent resolutions of one URL share a single fetch.
type Resolver struct {
	fetcher ports.SchemaFetcher
	cache   *expirable.LRU[string, Descriptor]
	group   singleflight.Group
	timeout time.Duration
	logger  *internal.Logger
}

// NewResolver creates a resolver backed by fetcher
func NewResolver(fetcher ports.SchemaFetcher, opts ResolverOptions, logger *internal.Logger) *Resolver {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 15 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Resolver{
		fetcher: fetcher,
		timeout: opts.FetchTimeout,
		cache:   expirable.NewLRU[string, Descriptor](opts.CacheSize, nil, opts.CacheTTL),
		logger:  logger,
	}
}

// Resolve returns the descriptor for url. Errors wrap ErrFetch, ErrParse or
// ErrNoFields.
func (r *Resolver) Resolve(ctx context.Context, url string) (Descriptor, error) {
	if d, ok := r.cache.Get(url); ok {
		r.logger.Trace("[Resolver] cache hit for %s", url)
		return d, nil
	}

	// The shared fetch is detached from the caller that started it.
	ch := r.group.DoChan(url, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		body, err := r.fetcher.FetchSchema(fetchCtx, url)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
		}
		d, err := Parse(url, body)
		if err != nil {
			return Descriptor{}, err
		}
		r.cache.Add(url, d)
		return d, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Descriptor{}, fmt.Errorf("%w: %s: %v", ErrFetch, url, ctx.Err())
	case res = <-ch:
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		if errors.Is(err, ErrNoFields) {
			r.logger.Warn("[Resolver] %v", err)
		} else {
			r.logger.Error("[Resolver] %v", err)
		}
		return Descriptor{}, err
	}

	d := v.(Descriptor)
	r.logger.Debug("[Resolver] resolved %s (%q, %d fields, shared=%v)", url, d.Title, len(d.Fields), shared)
	return d, nil
}

// Forget drops url from the cache
func (r *Resolver) Forget(url string) {
	r.cache.Remove(url)
}

// Cached returns the number of cached descriptors
func (r *Resolver) Cached() int {
	return r.cache.Len()
}
