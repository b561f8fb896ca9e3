package voiceinfo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Qazim-tec/VoiceInfoBlog-sub000/analytics"
)

const (
	facebookUA = "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)"
	browserUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

type testApp struct {
	*App
	src     *MockPostSource
	checker *fakeChecker
}

func newTestApp(t *testing.T, cfg SiteConfig, validImages ...string) *testApp {
	t.Helper()
	src := NewMockPostSource(gomock.NewController(t))
	checker := newFakeChecker(validImages...)
	app, err := New(cfg, WithPostSource(src), WithImageChecker(checker), WithClock(newFakeClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return &testApp{App: app, src: src, checker: checker}
}

func (ta *testApp) do(method, target, ua string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	rec := httptest.NewRecorder()
	ta.Handler().ServeHTTP(rec, req)
	return rec
}

func fallbackCount(m *Metrics, reason string) float64 {
	return testutil.ToFloat64(m.fallbacks.WithLabelValues(reason))
}

func helloPost() Post {
	return Post{
		Slug:             "x",
		Title:            "Hello World",
		Excerpt:          "A greeting",
		FeaturedImageURL: "https://img/1.png",
		CreatedAt:        Timestamp{time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
}

func TestCrawlerGetsShareDocument(t *testing.T) {
	ta := newTestApp(t, testSiteConfig(), "https://img/1.png")
	ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(helloPost(), nil)

	rec := ta.do(http.MethodGet, "/post/x", facebookUA)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, shareCacheControl, rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	body := rec.Body.String()
	assert.Contains(t, body, `<meta property="og:title" content="Hello World" />`)
	assert.Contains(t, body, `<meta property="og:image" content="https://img/1.png" />`)
	assert.Contains(t, body, `<meta property="og:type" content="article" />`)
	assert.Contains(t, body, `<meta property="og:url" content="https://voiceinfo.example/post/x" />`)
	assert.Contains(t, body, `<meta name="twitter:card" content="summary_large_image" />`)
}

func TestCrawlerGetsDefaultImageWhenCandidatesFail(t *testing.T) {
	ta := newTestApp(t, testSiteConfig())
	ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(helloPost(), nil)

	rec := ta.do(http.MethodGet, "/post/x", facebookUA)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`<meta property="og:image" content="https://voiceinfo.example/og-default.jpg" />`)
	assert.Equal(t, []string{"https://img/1.png"}, ta.checker.Probed())
}

func TestBrowserGetsShellWithoutUpstreamCall(t *testing.T) {
	ta := newTestApp(t, testSiteConfig())

	for _, ua := range []string{browserUA, ""} {
		rec := ta.do(http.MethodGet, "/post/x", ua)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, shellCacheControl, rec.Header().Get("Cache-Control"))
		assert.Contains(t, rec.Body.String(), `<div id="root"></div>`)
		assert.NotContains(t, rec.Body.String(), "og:title")
	}
	assert.Empty(t, ta.checker.Probed())
}

func TestMissingSlugIsBadRequest(t *testing.T) {
	ta := newTestApp(t, testSiteConfig())

	for _, target := range []string{"/post/", "/post", "/api/post/", "/api/post", "/post/a/b", "/api/post/..", "/post/%2e%2e"} {
		rec := ta.do(http.MethodGet, target, facebookUA)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "<meta", target)
	}
}

func TestUpstreamFailuresServeFallback(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"upstream error", &UpstreamError{Status: http.StatusInternalServerError}, "upstream_error"},
		{"upstream timeout", &UpstreamError{Timeout: true}, "upstream_timeout"},
		{"not found", ErrNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, testSiteConfig())
			ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(Post{}, tt.err)

			rec := ta.do(http.MethodGet, "/post/x", facebookUA)

			require.Equal(t, http.StatusOK, rec.Code)
			body := rec.Body.String()
			assert.Contains(t, body, `<meta property="og:type" content="website" />`)
			assert.Contains(t, body, `<meta property="og:title" content="VoiceInfo" />`)
			assert.Contains(t, body, `<meta property="og:url" content="https://voiceinfo.example/" />`)
			assert.Contains(t, body, `<meta property="og:image" content="https://voiceinfo.example/og-default.jpg" />`)
			assert.Equal(t, 1.0, fallbackCount(ta.Metrics, tt.reason))
		})
	}
}

func TestFailedFetchIsNotCached(t *testing.T) {
	ta := newTestApp(t, testSiteConfig(), "https://img/1.png")
	gomock.InOrder(
		ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(Post{}, &UpstreamError{Status: 503}),
		ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(helloPost(), nil),
	)

	first := ta.do(http.MethodGet, "/post/x", facebookUA)
	assert.Contains(t, first.Body.String(), `content="website"`)

	second := ta.do(http.MethodGet, "/post/x", facebookUA)
	assert.Contains(t, second.Body.String(), `<meta property="og:title" content="Hello World" />`)

	// Served from cache from here on.
	third := ta.do(http.MethodGet, "/post/x", facebookUA)
	assert.Equal(t, second.Body.String(), third.Body.String())
}

func TestAPIPostAnswersEveryAgent(t *testing.T) {
	ta := newTestApp(t, testSiteConfig(), "https://img/1.png")
	ta.src.EXPECT().FetchPost(gomock.Any(), "x", "tok").Return(helloPost(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/post/x", nil)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	ta.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<meta property="og:title" content="Hello World" />`)
}

func TestEncodedSlugIsDecoded(t *testing.T) {
	ta := newTestApp(t, testSiteConfig())
	post := helloPost()
	post.Slug = "café"
	ta.src.EXPECT().FetchPost(gomock.Any(), "café", "").Return(post, nil)

	rec := ta.do(http.MethodGet, "/post/caf%C3%A9", facebookUA)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `https://voiceinfo.example/post/caf%C3%A9`)
}

func TestHeadRequestsShareTheGetRoutes(t *testing.T) {
	ta := newTestApp(t, testSiteConfig(), "https://img/1.png")
	ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(helloPost(), nil)

	rec := ta.do(http.MethodHead, "/post/x", facebookUA)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, shareCacheControl, rec.Header().Get("Cache-Control"))

	rec = ta.do(http.MethodHead, "/about", browserUA)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOtherPathsServeShell(t *testing.T) {
	ta := newTestApp(t, testSiteConfig())

	for _, target := range []string{"/", "/about", "/category/news", "/post-archive"} {
		rec := ta.do(http.MethodGet, target, facebookUA)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `<div id="root"></div>`, target)
		assert.Equal(t, shellCacheControl, rec.Header().Get("Cache-Control"), target)
	}

	rec := ta.do(http.MethodPost, "/post/x", facebookUA)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCustomShell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>custom shell</body></html>"), 0o644))
	cfg := testSiteConfig()
	cfg.ShellPath = path
	ta := newTestApp(t, cfg)

	rec := ta.do(http.MethodGet, "/", browserUA)
	assert.Equal(t, "<html><body>custom shell</body></html>", rec.Body.String())

	cfg.ShellPath = filepath.Join(t.TempDir(), "missing.html")
	_, err := New(cfg, WithPostSource(ta.src))
	require.Error(t, err)
}

func TestCrawlerRateLimitServesFallbackWithoutFetching(t *testing.T) {
	cfg := testSiteConfig()
	cfg.CrawlerRateLimit = 0.001
	cfg.CrawlerBurst = 1
	ta := newTestApp(t, cfg, "https://img/1.png")
	ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(helloPost(), nil).Times(1)

	first := ta.do(http.MethodGet, "/post/x", facebookUA)
	assert.Contains(t, first.Body.String(), `content="Hello World"`)

	second := ta.do(http.MethodGet, "/post/y", facebookUA)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `<meta property="og:type" content="website" />`)
	assert.Equal(t, 1.0, fallbackCount(ta.Metrics, "rate_limited"))

	// Browsers never touch the limiter.
	assert.Equal(t, http.StatusOK, ta.do(http.MethodGet, "/post/y", browserUA).Code)
}

func TestCrawlerRateLimitStillServesCachedPosts(t *testing.T) {
	cfg := testSiteConfig()
	cfg.CrawlerRateLimit = 0.001
	cfg.CrawlerBurst = 1
	ta := newTestApp(t, cfg, "https://img/1.png")
	ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(helloPost(), nil).Times(1)

	require.Contains(t, ta.do(http.MethodGet, "/post/x", facebookUA).Body.String(), `content="Hello World"`)

	// The bucket is empty now, but x needs no upstream call.
	again := ta.do(http.MethodGet, "/post/x", facebookUA)
	require.Equal(t, http.StatusOK, again.Code)
	assert.Contains(t, again.Body.String(), `<meta property="og:title" content="Hello World" />`)
	assert.Equal(t, 0.0, fallbackCount(ta.Metrics, "rate_limited"))

	uncached := ta.do(http.MethodGet, "/post/y", facebookUA)
	require.Equal(t, http.StatusOK, uncached.Code)
	assert.Contains(t, uncached.Body.String(), `<meta property="og:type" content="website" />`)
	assert.Equal(t, 1.0, fallbackCount(ta.Metrics, "rate_limited"))
}

func TestConcurrentCrawlersShareOneFetch(t *testing.T) {
	ta := newTestApp(t, testSiteConfig(), "https://img/1.png")
	post := helloPost()
	post.Slug = "hello-world"
	release := make(chan struct{})
	ta.src.EXPECT().FetchPost(gomock.Any(), "hello-world", "").DoAndReturn(
		func(context.Context, string, string) (Post, error) {
			<-release
			return post, nil
		},
	).Times(1)

	recs := make([]*httptest.ResponseRecorder, 2)
	var wg sync.WaitGroup
	for i := range recs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs[i] = ta.do(http.MethodGet, "/post/hello-world", facebookUA)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, rec := range recs {
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `<meta property="og:title" content="Hello World" />`)
		assert.Contains(t, rec.Body.String(), `<meta property="og:image" content="https://img/1.png" />`)
	}
}

func TestShareDocumentEscapesPostFields(t *testing.T) {
	ta := newTestApp(t, testSiteConfig(), "https://img/1.png")
	post := helloPost()
	post.Slug = "hello-world"
	post.Title = "<script>alert(1)</script>"
	post.Excerpt = "<p>Fish &amp; chips</p>"
	ta.src.EXPECT().FetchPost(gomock.Any(), "hello-world", "").Return(post, nil)

	rec := ta.do(http.MethodGet, "/post/hello-world", facebookUA)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "<script>alert")
	assert.Contains(t, body, `<meta property="og:title" content="&lt;script&gt;alert(1)&lt;/script&gt;" />`)
	assert.Contains(t, body, `\u003cscript\u003ealert(1)\u003c/script\u003e`)
	assert.Contains(t, body, `content="Fish &amp; chips"`)
	assert.NotContains(t, body, "&amp;amp;")
	assert.Contains(t, body, `<meta property="og:url" content="https://voiceinfo.example/post/hello-world" />`)
}

func TestHealthAndMetrics(t *testing.T) {
	ta := newTestApp(t, testSiteConfig())
	ta.src.EXPECT().FetchPost(gomock.Any(), "gone", "").Return(Post{}, ErrNotFound)

	rec := ta.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ta.do(http.MethodGet, "/post/gone", facebookUA)

	rec = ta.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `edge_fallback_documents_total{reason="not_found"} 1`)
	assert.Contains(t, body, `edge_requests_total{agent="crawler",route="post"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestSecurityHeaders(t *testing.T) {
	ta := newTestApp(t, testSiteConfig())

	rec := ta.do(http.MethodGet, "/", browserUA)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestNewRequiresUpstream(t *testing.T) {
	cfg := testSiteConfig()
	cfg.APIBaseURL = ""
	_, err := New(cfg)
	require.ErrorContains(t, err, "api_base_url")

	cfg.APIBaseURL = "api.voiceinfo.example"
	_, err = New(cfg)
	require.ErrorContains(t, err, "api_base_url")

	cfg.APIBaseURL = "https://api.voiceinfo.example"
	app, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &APIClient{}, app.source)
	require.NoError(t, app.Close())
}

func TestCrawlerStatsEndpoint(t *testing.T) {
	cfg := testSiteConfig()
	cfg.AnalyticsEnabled = true
	cfg.AnalyticsDatabasePath = filepath.Join(t.TempDir(), "analytics.db")
	cfg.StatsAPIKey = "s3cret"
	ta := newTestApp(t, cfg, "https://img/1.png")
	gomock.InOrder(
		ta.src.EXPECT().FetchPost(gomock.Any(), "x", "").Return(helloPost(), nil),
		ta.src.EXPECT().FetchPost(gomock.Any(), "gone", "").Return(Post{}, ErrNotFound),
	)

	ta.do(http.MethodGet, "/post/x", facebookUA)
	ta.do(http.MethodGet, "/post/gone", "Twitterbot/1.0")
	ta.do(http.MethodGet, "/post/", facebookUA)
	ta.do(http.MethodGet, "/post/x", browserUA)

	rec := ta.do(http.MethodGet, "/internal/crawler-stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/internal/crawler-stats?period=today", nil)
	req.Header.Set(analytics.APIKeyHeader, "s3cret")
	rec = httptest.NewRecorder()
	ta.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats analytics.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "today", stats.PeriodName)
	assert.Equal(t, 3, stats.TotalVisits)
	assert.Contains(t, stats.Outcomes, analytics.DimensionStat{Name: "post", Count: 1})
	assert.Contains(t, stats.Outcomes, analytics.DimensionStat{Name: "fallback", Count: 1})
	assert.Contains(t, stats.Outcomes, analytics.DimensionStat{Name: "bad_request", Count: 1})
	assert.Contains(t, stats.TopBots, analytics.DimensionStat{Name: "Facebook", Count: 2})

	req = httptest.NewRequest(http.MethodGet, "/internal/crawler-visits?limit=1", nil)
	req.Header.Set(analytics.APIKeyHeader, "s3cret")
	rec = httptest.NewRecorder()
	ta.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, strings.Count(rec.Body.String(), `"bot_name"`))
}

func TestAnalyticsWithoutKeyHasNoStatsRoute(t *testing.T) {
	cfg := testSiteConfig()
	cfg.AnalyticsEnabled = true
	cfg.AnalyticsDatabasePath = filepath.Join(t.TempDir(), "analytics.db")
	ta := newTestApp(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/internal/crawler-stats", nil)
	req.Header.Set(analytics.APIKeyHeader, "anything")
	rec := httptest.NewRecorder()
	ta.Handler().ServeHTTP(rec, req)

	// Falls through to the shell.
	assert.Contains(t, rec.Body.String(), `<div id="root"></div>`)
}
