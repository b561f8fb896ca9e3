package analytics

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// APIKeyHeader carries the stats API key.
const APIKeyHeader = "X-API-Key"

const (
	maxKeyFailures   = 10
	keyFailureWindow = time.Minute
	maxRecentVisits  = 200
)

// Handler serves crawler analytics as JSON to holders of the stats API key.
type Handler struct {
	store    *Store
	apiKey   string
	logger   *zap.Logger
	failures *failureLimiter
	now      func() time.Time
}

// NewHandler creates a new analytics handler. Clients are locked out for a
// minute after 10 wrong keys.
func NewHandler(store *Store, apiKey string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:    store,
		apiKey:   apiKey,
		logger:   logger,
		failures: newFailureLimiter(maxKeyFailures, keyFailureWindow),
		now:      time.Now,
	}
}

// Close stops the handler's background cleanup.
func (h *Handler) Close() {
	h.failures.stop()
}

// StatsResponse wraps Stats with the resolved period.
type StatsResponse struct {
	*Stats
	PeriodName string `json:"period_name"`
	PeriodDays int    `json:"period_days"`
	Monthly    bool   `json:"monthly"`
}

// GetStats returns crawler statistics for ?period=today|week|month|year.
func (h *Handler) GetStats(c echo.Context) error {
	name, days, monthly := parsePeriod(c.QueryParam("period"))
	from, to := calcTimeRange(h.now().UTC(), days)

	stats, err := h.store.Stats(c.Request().Context(), from, to, monthly)
	if err != nil {
		h.logger.Error("failed to get crawler stats", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, StatsResponse{
		Stats:      stats,
		PeriodName: name,
		PeriodDays: days,
		Monthly:    monthly,
	})
}

// GetVisits returns the most recent crawler visits, newest first.
func (h *Handler) GetVisits(c echo.Context) error {
	limit := 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = min(v, maxRecentVisits)
	}
	visits, err := h.store.Visits(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("failed to list crawler visits", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if visits == nil {
		visits = []CrawlerVisit{}
	}
	return c.JSON(http.StatusOK, visits)
}

// RequireAPIKey rejects requests that do not present the configured key.
func (h *Handler) RequireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		if h.failures.blocked(ip) {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		}
		got := c.Request().Header.Get(APIKeyHeader)
		if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) != 1 {
			h.failures.fail(ip)
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		return next(c)
	}
}

// RegisterRoutes mounts the stats endpoints on g behind the API key check.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.Use(h.RequireAPIKey)
	g.GET("/crawler-stats", h.GetStats)
	g.GET("/crawler-visits", h.GetVisits)
}

// parsePeriod maps the period query parameter to a day count.
func parsePeriod(period string) (string, int, bool) {
	switch period {
	case "today":
		return period, 1, false
	case "month":
		return period, 30, false
	case "year":
		return period, 365, true
	default:
		return "week", 7, false
	}
}

// calcTimeRange returns whole UTC days covering the last days days, including today.
func calcTimeRange(now time.Time, days int) (time.Time, time.Time) {
	to := now.Add(24 * time.Hour).Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -days)
	return from, to
}
