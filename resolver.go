package voiceinfo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxSlugLen = 200

var slugPattern = regexp.MustCompile(`^[\p{L}\p{N}_~-][\p{L}\p{N}._~-]*$`)

// ValidSlug reports whether slug is a non-empty single path segment.
func ValidSlug(slug string) bool {
	return slug != "" && len(slug) <= maxSlugLen && slugPattern.MatchString(slug)
}

// Resolver returns posts by slug, serving live cache entries and fetching
// misses from the content API once per slug at a time.
type Resolver struct {
	cache   ResponseCache
	source  PostSource
	group   singleflight.Group
	logger  *zap.Logger
	metrics *Metrics
}

// NewResolver creates a Resolver. logger and metrics may be nil.
func NewResolver(cache ResponseCache, source PostSource, logger *zap.Logger, metrics *Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cache:   cache,
		source:  source,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve returns the post for slug. Errors are ErrInvalidInput, ErrNotFound
// or an *UpstreamError; nothing is retried.
func (r *Resolver) Resolve(ctx context.Context, slug, token string) (Post, error) {
	if !ValidSlug(slug) {
		return Post{}, ErrInvalidInput
	}
	if post, ok := lookup(r.cache, slug); ok {
		r.metrics.ObserveCacheLookup(true)
		return post, nil
	}
	r.metrics.ObserveCacheLookup(false)

	ch := r.group.DoChan(slug, func() (any, error) {
		// A fetch that finished while this call was queued has already filled the cache.
		if post, ok := lookup(r.cache, slug); ok {
			return post, nil
		}
		// The fetch is shared by every waiter, so it must outlive the caller
		// that started it. The source applies its own timeout.
		return r.fetch(context.WithoutCancel(ctx), slug, token)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Post{}, res.Err
		}
		return res.Val.(Post), nil
	case <-ctx.Done():
		return Post{}, &UpstreamError{
			Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:     ctx.Err(),
		}
	}
}

// Cached reports whether slug has a live cache entry, so resolving it needs
// no upstream call.
func (r *Resolver) Cached(slug string) bool {
	_, ok := lookup(r.cache, slug)
	return ok
}

func (r *Resolver) fetch(ctx context.Context, slug, token string) (Post, error) {
	start := time.Now()
	post, err := r.source.FetchPost(ctx, slug, token)
	elapsed := time.Since(start)
	log := r.logger.With(zap.String("slug", slug), zap.Duration("elapsed", elapsed))

	if err == nil {
		r.cache.Set(slug, post)
		r.metrics.ObserveUpstream("ok", elapsed)
		log.Debug("post fetched")
		return post, nil
	}
	if errors.Is(err, ErrNotFound) {
		r.metrics.ObserveUpstream("not_found", elapsed)
		log.Debug("post not found upstream")
		return Post{}, ErrNotFound
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		upErr = &UpstreamError{
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	outcome := "error"
	if upErr.Timeout {
		outcome = "timeout"
	}
	r.metrics.ObserveUpstream(outcome, elapsed)
	log.Warn("post fetch failed", zap.Int("status", upErr.Status), zap.Error(upErr))
	return Post{}, upErr
}
