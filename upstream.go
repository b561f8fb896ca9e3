package voiceinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultUpstreamTimeout bounds a single post fetch from the content API.
const DefaultUpstreamTimeout = 3 * time.Second

const maxUpstreamBody = 2 << 20 // 2MB

//go:generate mockgen -source=upstream.go -destination=mock_post_source_test.go -package=voiceinfo

// PostSource loads a post by slug from the content API.
type PostSource interface {
	FetchPost(ctx context.Context, slug, token string) (Post, error)
}

// APIClient is the PostSource backed by the content API's
// GET /api/Post/slug/{slug} endpoint.
type APIClient struct {
	baseURL   string
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewAPIClient creates an APIClient for baseURL. A nil client uses a default
// pooled client; the timeout is applied per call through the request context.
func NewAPIClient(baseURL string, client *http.Client, timeout time.Duration) *APIClient {
	if client == nil {
		client = newHTTPClient()
	}
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &APIClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		client:    client,
		timeout:   timeout,
		userAgent: "VoiceInfoEdge/1.0",
	}
}

func (a *APIClient) postURL(slug string) string {
	return a.baseURL + "/api/Post/slug/" + url.PathEscape(slug)
}

// FetchPost performs a single GET with no retries. The bearer token is
// forwarded when present but never required.
func (a *APIClient) FetchPost(ctx context.Context, slug, token string) (Post, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.postURL(slug), nil)
	if err != nil {
		return Post{}, &UpstreamError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Post{}, &UpstreamError{
			Timeout: errors.Is(err, context.DeadlineExceeded) || isTimeout(err),
			Err:     fmt.Errorf("execute request: %w", err),
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Post{}, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Post{}, &UpstreamError{Status: resp.StatusCode}
	}

	var env postEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUpstreamBody)).Decode(&env); err != nil {
		return Post{}, &UpstreamError{
			Status:  resp.StatusCode,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     fmt.Errorf("decode response: %w", err),
		}
	}
	if env.Data == nil {
		return Post{}, &UpstreamError{Status: resp.StatusCode, Err: errors.New("response has no data")}
	}
	post := *env.Data
	if post.Slug == "" {
		post.Slug = slug
	}
	return post, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   2 * time.Second,
			ResponseHeaderTimeout: 5 * time.Second,
		},
	}
}
