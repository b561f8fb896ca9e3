package voiceinfo

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	minExcerptLength     = 160
	maxExcerptLength     = 220
	defaultExcerptLength = 200
)

// SiteConfig holds all configuration for the edge.
type SiteConfig struct {
	Name         string `mapstructure:"site_name"`        // default "VoiceInfo"
	URL          string `mapstructure:"site_url"`         // canonical site root
	Description  string `mapstructure:"site_description"` // fallback description
	DefaultImage string `mapstructure:"default_image"`    // used when no candidate validates
	TwitterSite  string `mapstructure:"twitter_site"`     // @handle
	Locale       string `mapstructure:"locale"`           // default "en_US"

	Addr string `mapstructure:"addr"` // listen address (default ":8080")
	Port string `mapstructure:"port"` // PORT, used when Addr is empty

	APIBaseURL      string        `mapstructure:"api_base_url"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`

	ImageProbeTimeout    time.Duration `mapstructure:"image_probe_timeout"`
	ImageProbeBudget     time.Duration `mapstructure:"image_probe_budget"`
	MaxImageCandidates   int           `mapstructure:"max_image_candidates"`
	ParallelImageProbes  bool          `mapstructure:"parallel_image_probes"`
	ProbeImageDimensions bool          `mapstructure:"probe_image_dimensions"`

	ExcerptLength int `mapstructure:"excerpt_length"`

	ShellPath string `mapstructure:"shell_path"` // SPA index.html; embedded shell when empty
	StaticDir string `mapstructure:"static_dir"` // served under /assets when set

	AnalyticsEnabled       bool   `mapstructure:"analytics_enabled"`
	AnalyticsDatabasePath  string `mapstructure:"analytics_database_path"`
	AnalyticsRetentionDays int    `mapstructure:"analytics_retention_days"`
	StatsAPIKey            string `mapstructure:"stats_api_key"`

	CrawlerRateLimit float64 `mapstructure:"crawler_rate_limit"` // requests per second per IP, 0 disables
	CrawlerBurst     int     `mapstructure:"crawler_burst"`

	LogDevelopment bool `mapstructure:"log_development"`
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "VoiceInfo"
	}
	if c.URL == "" {
		c.URL = "http://localhost:8080"
	}
	c.URL = strings.TrimSuffix(c.URL, "/")
	if c.Description == "" {
		c.Description = "News, stories and opinion from " + c.Name + "."
	}
	if c.DefaultImage == "" {
		c.DefaultImage = c.URL + "/og-default.jpg"
	}
	if c.Locale == "" {
		c.Locale = "en_US"
	}
	if c.Addr == "" {
		if c.Port != "" {
			c.Addr = ":" + c.Port
		} else {
			c.Addr = ":8080"
		}
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.ImageProbeTimeout <= 0 {
		c.ImageProbeTimeout = DefaultImageProbeTimeout
	}
	if c.ImageProbeBudget <= 0 {
		c.ImageProbeBudget = DefaultImageProbeBudget
	}
	if c.MaxImageCandidates <= 0 {
		c.MaxImageCandidates = DefaultMaxImageCandidates
	}
	switch {
	case c.ExcerptLength == 0:
		c.ExcerptLength = defaultExcerptLength
	case c.ExcerptLength < minExcerptLength:
		c.ExcerptLength = minExcerptLength
	case c.ExcerptLength > maxExcerptLength:
		c.ExcerptLength = maxExcerptLength
	}
	if c.AnalyticsDatabasePath == "" {
		c.AnalyticsDatabasePath = "data/analytics.db"
	}
	if c.AnalyticsRetentionDays <= 0 {
		c.AnalyticsRetentionDays = 365
	}
	if c.CrawlerRateLimit > 0 && c.CrawlerBurst <= 0 {
		c.CrawlerBurst = int(c.CrawlerRateLimit * 2)
		if c.CrawlerBurst < 1 {
			c.CrawlerBurst = 1
		}
	}
}

// Validate enforces required values.
func (c SiteConfig) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api_base_url is required")
	}
	if err := checkAbsoluteURL("api_base_url", c.APIBaseURL); err != nil {
		return err
	}
	if err := checkAbsoluteURL("site_url", c.URL); err != nil {
		return err
	}
	if err := checkAbsoluteURL("default_image", c.DefaultImage); err != nil {
		return err
	}
	if c.CrawlerRateLimit < 0 {
		return errors.New("crawler_rate_limit must be >= 0")
	}
	return nil
}

func checkAbsoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}

// LoadConfig builds a SiteConfig from a .env file, EDGE_* environment
// variables and an optional config file at path.
func LoadConfig(path string) (SiteConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return SiteConfig{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("EDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setViperDefaults(v)

	// Unprefixed names the hosting platform sets.
	if err := v.BindEnv("api_base_url", "EDGE_API_BASE_URL", "API_BASE_URL"); err != nil {
		return SiteConfig{}, fmt.Errorf("bind api_base_url: %w", err)
	}
	if err := v.BindEnv("port", "EDGE_PORT", "PORT"); err != nil {
		return SiteConfig{}, fmt.Errorf("bind port: %w", err)
	}
	if err := v.BindEnv("addr"); err != nil {
		return SiteConfig{}, fmt.Errorf("bind addr: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return SiteConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg SiteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return SiteConfig{}, err
	}
	return cfg, nil
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("site_name", "VoiceInfo")
	v.SetDefault("site_url", "http://localhost:8080")
	v.SetDefault("site_description", "")
	v.SetDefault("default_image", "")
	v.SetDefault("twitter_site", "")
	v.SetDefault("locale", "en_US")
	v.SetDefault("upstream_timeout", DefaultUpstreamTimeout)
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("image_probe_timeout", DefaultImageProbeTimeout)
	v.SetDefault("image_probe_budget", DefaultImageProbeBudget)
	v.SetDefault("max_image_candidates", DefaultMaxImageCandidates)
	v.SetDefault("parallel_image_probes", false)
	v.SetDefault("probe_image_dimensions", false)
	v.SetDefault("excerpt_length", defaultExcerptLength)
	v.SetDefault("shell_path", "")
	v.SetDefault("static_dir", "")
	v.SetDefault("analytics_enabled", false)
	v.SetDefault("analytics_database_path", "data/analytics.db")
	v.SetDefault("analytics_retention_days", 365)
	v.SetDefault("stats_api_key", "")
	v.SetDefault("crawler_rate_limit", 5.0)
	v.SetDefault("crawler_burst", 10)
	v.SetDefault("log_development", false)
}

// Option configures additional App behavior.
type Option func(*App)

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithPostSource replaces the content API client.
func WithPostSource(src PostSource) Option {
	return func(a *App) {
		a.source = src
	}
}

// WithImageChecker replaces the HEAD-based image validator.
func WithImageChecker(checker ImageChecker) Option {
	return func(a *App) {
		a.checker = checker
	}
}

// WithCache replaces the in-memory response cache.
func WithCache(cache ResponseCache) Option {
	return func(a *App) {
		a.cache = cache
	}
}

// WithClock sets the clock used by the default cache.
func WithClock(clock Clock) Option {
	return func(a *App) {
		a.clock = clock
	}
}

// WithHTTPClient sets the client used for upstream and image requests.
func WithHTTPClient(client *http.Client) Option {
	return func(a *App) {
		a.httpClient = client
	}
}
