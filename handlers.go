package voiceinfo

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Qazim-tec/VoiceInfoBlog-sub000/analytics"
	"github.com/Qazim-tec/VoiceInfoBlog-sub000/crawler"
	"github.com/Qazim-tec/VoiceInfoBlog-sub000/views"
)

const (
	shareCacheControl = "public, max-age=300"
	shellCacheControl = "no-cache"
)

var readMethods = []string{http.MethodGet, http.MethodHead}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Match(readMethods, "/healthz", handleHealth)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: a.Registry,
	}))

	e.Match(readMethods, "/post", a.handlePost)
	e.Match(readMethods, "/post/*", a.handlePost)
	e.Match(readMethods, "/api/post", a.handleAPIPost)
	e.Match(readMethods, "/api/post/*", a.handleAPIPost)

	if a.analyticsHandler != nil {
		a.analyticsHandler.RegisterRoutes(e.Group("/internal"))
	}

	if a.Config.StaticDir != "" {
		e.Static("/assets", a.Config.StaticDir)
	}

	e.Match(readMethods, "/", a.handleShell)
	e.Match(readMethods, "/*", a.handleShell)
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handlePost sends crawlers the share document and browsers the SPA shell.
func (a *App) handlePost(c echo.Context) error {
	ua := c.Request().UserAgent()
	if !crawler.IsCrawler(ua) {
		a.Metrics.ObserveRequest("post", "browser")
		return a.serveShell(c)
	}
	a.Metrics.ObserveRequest("post", "crawler")
	return a.serveShareDocument(c, ua)
}

// handleAPIPost always answers with the share document.
func (a *App) handleAPIPost(c echo.Context) error {
	ua := c.Request().UserAgent()
	a.Metrics.ObserveRequest("api_post", agentKind(ua))
	return a.serveShareDocument(c, ua)
}

func (a *App) handleShell(c echo.Context) error {
	a.Metrics.ObserveRequest("shell", agentKind(c.Request().UserAgent()))
	return a.serveShell(c)
}

func (a *App) serveShell(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, shellCacheControl)
	return c.Blob(http.StatusOK, echo.MIMETextHTMLCharsetUTF8, a.shell)
}

// serveShareDocument resolves the post named by the path and renders its
// preview. Every failure past slug validation degrades to the fallback
// document with status 200.
func (a *App) serveShareDocument(c echo.Context, ua string) error {
	ctx := c.Request().Context()

	slug, ok := slugParam(c)
	if !ok {
		a.recordVisit(c, ua, slug, analytics.OutcomeBadRequest)
		return c.String(http.StatusBadRequest, "missing or invalid post slug")
	}

	// The limiter guards the content API, so cached posts skip it.
	if a.limiter != nil && !a.Resolver.Cached(slug) && !a.limiter.Allow(c.RealIP()) {
		return a.serveFallback(c, ua, slug, "rate_limited", analytics.OutcomeRateLimited)
	}

	post, err := a.Resolver.Resolve(ctx, slug, bearerToken(c))
	switch {
	case errors.Is(err, ErrInvalidInput):
		a.recordVisit(c, ua, slug, analytics.OutcomeBadRequest)
		return c.String(http.StatusBadRequest, "missing or invalid post slug")
	case errors.Is(err, ErrNotFound):
		return a.serveFallback(c, ua, slug, "not_found", analytics.OutcomeFallback)
	case errors.Is(err, ErrUpstreamTimeout):
		return a.serveFallback(c, ua, slug, "upstream_timeout", analytics.OutcomeFallback)
	case err != nil:
		return a.serveFallback(c, ua, slug, "upstream_error", analytics.OutcomeFallback)
	}

	img := a.Images.Resolve(ctx, post)
	doc := BuildShareDocument(a.Config, post, img)
	a.recordVisit(c, ua, slug, analytics.OutcomePost)
	return a.renderShare(c, doc)
}

func (a *App) serveFallback(c echo.Context, ua, slug, reason string, outcome analytics.Outcome) error {
	a.Metrics.ObserveFallback(reason)
	a.logger.Debug("serving fallback document",
		zap.String("slug", slug),
		zap.String("reason", reason),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
	)
	a.recordVisit(c, ua, slug, outcome)
	return a.renderShare(c, FallbackShareDocument(a.Config))
}

func (a *App) renderShare(c echo.Context, doc views.ShareDocument) error {
	return renderPage(c, http.StatusOK, shareCacheControl, views.SharePage(doc))
}

// recordVisit logs the share request to analytics when enabled. Failures are
// logged and never affect the response.
func (a *App) recordVisit(c echo.Context, ua, slug string, outcome analytics.Outcome) {
	if a.analyticsStore == nil {
		return
	}
	name := crawler.Name(ua)
	if name == "" {
		name = "Other"
	}
	err := a.analyticsStore.Record(c.Request().Context(), c.RealIP(), analytics.CrawlerVisit{
		BotName:   name,
		UserAgent: ua,
		Path:      c.Request().URL.Path,
		Slug:      slug,
		Outcome:   outcome,
	})
	if err != nil {
		a.logger.Warn("record crawler visit", zap.Error(err))
	}
}

// slugParam extracts the slug from the wildcard segment. It reports false
// when the slug is missing or spans more than one path segment.
func slugParam(c echo.Context) (string, bool) {
	raw := c.Param("*")
	if strings.Contains(raw, "%") {
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return raw, false
		}
		raw = unescaped
	}
	slug := strings.TrimSuffix(raw, "/")
	if slug == "" || strings.Contains(slug, "/") {
		return slug, false
	}
	return slug, ValidSlug(slug)
}

func agentKind(ua string) string {
	if crawler.IsCrawler(ua) {
		return "crawler"
	}
	return "browser"
}
