// Package voiceinfo is the share-preview edge for the VoiceInfo blog. It sits
// in front of the single-page app, answers link-preview crawlers with a
// server-rendered OpenGraph/Twitter card document for the requested post,
// and hands everyone else the SPA shell untouched.
//
// Post data comes from the blog's content API; the edge only reads it,
// caches it briefly and never fails a crawler with an error page.
package voiceinfo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Qazim-tec/VoiceInfoBlog-sub000/analytics"
)

// App is the edge application. It wires together the resolver, cache, image
// validation, analytics, middleware and routes.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Resolver *Resolver
	Images   *ImageResolver
	Metrics  *Metrics
	Registry *prometheus.Registry

	logger     *zap.Logger
	source     PostSource
	checker    ImageChecker
	cache      ResponseCache
	clock      Clock
	httpClient *http.Client
	shell      []byte

	limiter          *CrawlerLimiter
	analyticsStore   *analytics.Store
	analyticsHandler *analytics.Handler
	stopCleanup      func()
}

// New creates an App from cfg. Missing collaborators are built from the config.
func New(cfg SiteConfig, opts ...Option) (*App, error) {
	cfg.setDefaults()

	a := &App{
		Config:   cfg,
		Echo:     echo.New(),
		Registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.httpClient == nil {
		a.httpClient = newHTTPClient()
	}

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = NewMetrics(a.Registry)

	if a.source == nil {
		if cfg.APIBaseURL == "" {
			return nil, errors.New("voiceinfo: api_base_url is required")
		}
		if err := checkAbsoluteURL("api_base_url", cfg.APIBaseURL); err != nil {
			return nil, fmt.Errorf("voiceinfo: %w", err)
		}
		a.source = NewAPIClient(cfg.APIBaseURL, a.httpClient, cfg.UpstreamTimeout)
	}
	if a.cache == nil {
		a.cache = NewMemoryCache(cfg.CacheTTL, a.clock)
	}
	if a.checker == nil {
		a.checker = NewImageValidator(a.httpClient, cfg.ImageProbeTimeout, a.logger.Named("images"), a.Metrics)
	}

	a.Resolver = NewResolver(a.cache, a.source, a.logger.Named("resolver"), a.Metrics)
	a.Images = NewImageResolver(a.checker, a.httpClient, ImageResolverConfig{
		DefaultImage:    cfg.DefaultImage,
		MaxCandidates:   cfg.MaxImageCandidates,
		Budget:          cfg.ImageProbeBudget,
		Parallel:        cfg.ParallelImageProbes,
		ProbeDimensions: cfg.ProbeImageDimensions,
	}, a.logger.Named("images"))

	shell, err := loadShell(cfg.ShellPath)
	if err != nil {
		return nil, fmt.Errorf("voiceinfo: %w", err)
	}
	a.shell = shell

	if cfg.CrawlerRateLimit > 0 {
		a.limiter = NewCrawlerLimiter(cfg.CrawlerRateLimit, cfg.CrawlerBurst)
	}

	if cfg.AnalyticsEnabled {
		store, err := analytics.NewStore(cfg.AnalyticsDatabasePath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("voiceinfo: init analytics: %w", err)
		}
		a.analyticsStore = store
		a.stopCleanup = store.StartCleanupScheduler(cfg.AnalyticsRetentionDays, 24*time.Hour, a.logger.Named("analytics"))
		if cfg.StatsAPIKey != "" {
			a.analyticsHandler = analytics.NewHandler(store, cfg.StatsAPIKey, a.logger.Named("analytics"))
		}
	}

	a.setupMiddleware()
	a.setupRoutes()
	return a, nil
}

func loadShell(path string) ([]byte, error) {
	if path == "" {
		b, err := fs.ReadFile(EmbeddedAssets, "embedded/index.html")
		if err != nil {
			return nil, fmt.Errorf("read embedded shell: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shell %s: %w", path, err)
	}
	return b, nil
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler {
	return a.Echo
}

// Start serves on the configured address until Shutdown is called.
func (a *App) Start() error {
	a.logger.Info("edge listening",
		zap.String("addr", a.Config.Addr),
		zap.String("api_base_url", a.Config.APIBaseURL),
		zap.Bool("analytics", a.analyticsStore != nil),
	)
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases background workers and the analytics database. Call this
// when the app is shutting down.
func (a *App) Close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.analyticsHandler != nil {
		a.analyticsHandler.Close()
		a.analyticsHandler = nil
	}
	if a.stopCleanup != nil {
		a.stopCleanup()
		a.stopCleanup = nil
	}
	if a.analyticsStore != nil {
		err := a.analyticsStore.Close()
		a.analyticsStore = nil
		return err
	}
	return nil
}
