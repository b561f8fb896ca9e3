package voiceinfo

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultImageProbeTimeout  = 2 * time.Second
	DefaultImageProbeBudget   = 4 * time.Second
	DefaultMaxImageCandidates = 4

	DefaultImageWidth  = 1200
	DefaultImageHeight = 630

	dimensionProbeBytes = 64 << 10 // 64KiB
)

// ImageChecker decides whether a URL points at a reachable image.
type ImageChecker interface {
	Validate(ctx context.Context, rawURL string) ImageValidationResult
}

// ImageValidator checks candidate image URLs with a HEAD request.
type ImageValidator struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
	metrics *Metrics
}

// NewImageValidator creates an ImageValidator. A nil client uses a default
// pooled client.
func NewImageValidator(client *http.Client, timeout time.Duration, logger *zap.Logger, metrics *Metrics) *ImageValidator {
	if client == nil {
		client = newHTTPClient()
	}
	if timeout <= 0 {
		timeout = DefaultImageProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageValidator{client: client, timeout: timeout, logger: logger, metrics: metrics}
}

// IsValidImage reports whether rawURL answers a HEAD with a 2xx image/* response.
func (v *ImageValidator) IsValidImage(ctx context.Context, rawURL string) bool {
	return v.Validate(ctx, rawURL).Valid
}

// Validate never returns an error; every failure becomes an invalid result
// with a reason.
func (v *ImageValidator) Validate(ctx context.Context, rawURL string) ImageValidationResult {
	res := ImageValidationResult{URL: rawURL}
	if reason := checkImageURL(rawURL); reason != "" {
		res.Reason = reason
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		res.Reason = "bad request: " + err.Error()
		v.metrics.ObserveImageProbe(false)
		return res
	}
	resp, err := v.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			res.Reason = "timeout"
		} else {
			res.Reason = "unreachable: " + err.Error()
		}
		v.metrics.ObserveImageProbe(false)
		v.logger.Debug("image probe failed", zap.String("url", rawURL), zap.Error(err))
		return res
	}
	resp.Body.Close()

	switch ct := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type"))); {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		res.Reason = fmt.Sprintf("status %d", resp.StatusCode)
	case !strings.HasPrefix(ct, "image/"):
		res.Reason = "content type " + quoteOrEmpty(ct)
	default:
		res.Valid = true
	}
	v.metrics.ObserveImageProbe(res.Valid)
	return res
}

// checkImageURL returns why rawURL can be rejected without a network call,
// or "" when it is worth probing.
func checkImageURL(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return "empty url"
	}
	if strings.ContainsAny(rawURL, " \t\r\n") {
		return "url contains whitespace"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "malformed url"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "unsupported scheme"
	}
	if u.Host == "" || u.Hostname() == "" {
		return "missing host"
	}
	return ""
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "missing"
	}
	return fmt.Sprintf("%q", s)
}

// ResolvedImage is the image chosen for a share document.
type ResolvedImage struct {
	URL    string
	Width  int
	Height int
}

// ImageResolverConfig tunes candidate selection.
type ImageResolverConfig struct {
	DefaultImage    string
	MaxCandidates   int
	Budget          time.Duration
	Parallel        bool
	ProbeDimensions bool
}

// ImageResolver picks the first valid image among a post's candidates.
type ImageResolver struct {
	checker ImageChecker
	client  *http.Client
	cfg     ImageResolverConfig
	logger  *zap.Logger
}

// NewImageResolver creates an ImageResolver. client is only used for the
// optional dimension probe.
func NewImageResolver(checker ImageChecker, client *http.Client, cfg ImageResolverConfig, logger *zap.Logger) *ImageResolver {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxImageCandidates
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultImageProbeBudget
	}
	if client == nil {
		client = newHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageResolver{checker: checker, client: client, cfg: cfg, logger: logger}
}

// Resolve returns the first valid candidate in order, or the default image
// when there is none. All probes share one overall deadline.
func (r *ImageResolver) Resolve(ctx context.Context, post Post) ResolvedImage {
	fallback := ResolvedImage{URL: r.cfg.DefaultImage, Width: DefaultImageWidth, Height: DefaultImageHeight}

	candidates := imageCandidates(post, r.cfg.MaxCandidates)
	if len(candidates) == 0 {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	var chosen string
	if r.cfg.Parallel {
		chosen = r.firstValidParallel(ctx, candidates)
	} else {
		chosen = r.firstValidSerial(ctx, candidates)
	}
	if chosen == "" {
		r.logger.Debug("no valid image candidate", zap.String("slug", post.Slug), zap.Int("candidates", len(candidates)))
		return fallback
	}

	img := ResolvedImage{URL: chosen, Width: DefaultImageWidth, Height: DefaultImageHeight}
	if r.cfg.ProbeDimensions {
		if w, h, err := r.probeDimensions(ctx, chosen); err == nil {
			img.Width, img.Height = w, h
		} else {
			r.logger.Debug("image dimension probe failed", zap.String("url", chosen), zap.Error(err))
		}
	}
	return img
}

func (r *ImageResolver) firstValidSerial(ctx context.Context, candidates []string) string {
	for _, u := range candidates {
		if ctx.Err() != nil {
			return ""
		}
		if r.checker.Validate(ctx, u).Valid {
			return u
		}
	}
	return ""
}

// errImageChosen stops the remaining checks once the winner is known.
var errImageChosen = errors.New("image chosen")

// firstValidParallel checks every candidate at once but still returns the
// earliest valid one in candidate order. Checks still running are cancelled
// as soon as every candidate ahead of a valid one has failed.
func (r *ImageResolver) firstValidParallel(ctx context.Context, candidates []string) string {
	const (
		pending = iota
		invalid
		valid
	)
	var (
		mu     sync.Mutex
		states = make([]int, len(candidates))
		chosen string
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range candidates {
		g.Go(func() error {
			ok := r.checker.Validate(gctx, u).Valid

			mu.Lock()
			defer mu.Unlock()
			if chosen != "" {
				return nil
			}
			states[i] = invalid
			if ok {
				states[i] = valid
			}
			for j, st := range states {
				switch st {
				case pending:
					return nil
				case valid:
					chosen = candidates[j]
					return errImageChosen
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return chosen
}

// probeDimensions reads the head of the image and decodes only its header.
func (r *ImageResolver) probeDimensions(ctx context.Context, rawURL string) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", dimensionProbeBytes-1))

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	cfg, _, err := image.DecodeConfig(io.LimitReader(resp.Body, dimensionProbeBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// imageCandidates returns the post's image URLs in order, without blanks or
// duplicates, capped at limit.
func imageCandidates(post Post, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, u := range post.ImageCandidates() {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out
}
