// Package analytics keeps a privacy-preserving log of crawler visits to share
// documents and aggregates it for the stats endpoint.
package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Outcome describes which document a crawler received.
type Outcome string

const (
	OutcomePost        Outcome = "post"
	OutcomeFallback    Outcome = "fallback"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeBadRequest  Outcome = "bad_request"
)

// CrawlerVisit represents a single crawler request for a share document.
type CrawlerVisit struct {
	ID        int64     `json:"-"`
	BotName   string    `json:"bot_name"`   // e.g. "Facebook"
	IPHash    string    `json:"-"`          // salted hash, never the raw address
	UserAgent string    `json:"user_agent"` // truncated to maxUserAgentLen
	Path      string    `json:"path"`
	Slug      string    `json:"slug"`
	Outcome   Outcome   `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats holds aggregated crawler analytics.
type Stats struct {
	Period      string          `json:"period"`
	TotalVisits int             `json:"total_visits"`
	TopBots     []DimensionStat `json:"top_bots"`
	TopPaths    []PageStat      `json:"top_paths"`
	Outcomes    []DimensionStat `json:"outcomes"`
	DailyVisits []DailyView     `json:"daily_visits"`
}

// PageStat represents visits per path.
type PageStat struct {
	Path  string `json:"path"`
	Views int    `json:"views"`
}

// DimensionStat represents a breakdown by one dimension.
type DimensionStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DailyView represents visits per day (or per month for a yearly period).
type DailyView struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

const (
	maxUserAgentLen = 512
	maxPathLen      = 2048
)

// hashIP creates a salted SHA-256 hash of an IP address.
func hashIP(salt, ip string) string {
	h := sha256.New()
	h.Write([]byte(salt + ip))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
