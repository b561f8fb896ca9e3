package analytics

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically, so range filters can compare TEXT columns.
const timeLayout = "2006-01-02T15:04:05Z"

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 1

// Store provides database operations for crawler analytics.
type Store struct {
	db   *sql.DB
	salt string
	now  func() time.Time
}

// NewStore opens (or creates) the analytics database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create analytics dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.initSalt(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS crawler_visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bot_name TEXT NOT NULL,
			ip_hash TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			path TEXT NOT NULL,
			slug TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_crawler_visits_timestamp ON crawler_visits(timestamp);
		CREATE INDEX IF NOT EXISTS idx_crawler_visits_bot ON crawler_visits(bot_name);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

func (s *Store) migrate() error {
	verStr, err := s.GetSetting("schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	version := 0
	if verStr != "" {
		version, err = strconv.Atoi(verStr)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	return s.SetSetting("schema_version", strconv.Itoa(currentSchemaVersion))
}

// initSalt loads the per-installation salt for IP hashing, generating it on first use.
func (s *Store) initSalt() error {
	v, err := s.GetSetting("hash_salt")
	if err != nil {
		return fmt.Errorf("read hash salt: %w", err)
	}
	if v == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
		v = hex.EncodeToString(b)
		if err := s.SetSetting("hash_salt", v); err != nil {
			return fmt.Errorf("store hash salt: %w", err)
		}
	}
	s.salt = v
	return nil
}

// GetSetting retrieves a setting value by key. Returns empty string if not found.
func (s *Store) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetSetting stores a setting value by key (upsert).
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Record stores a crawler visit. The raw ip is hashed and discarded.
func (s *Store) Record(ctx context.Context, ip string, v CrawlerVisit) error {
	if v.Timestamp.IsZero() {
		v.Timestamp = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawler_visits (bot_name, ip_hash, user_agent, path, slug, outcome, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.BotName,
		hashIP(s.salt, ip),
		clip(v.UserAgent, maxUserAgentLen),
		clip(v.Path, maxPathLen),
		v.Slug,
		string(v.Outcome),
		v.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert crawler visit: %w", err)
	}
	return nil
}

// Visits returns the most recent visits, newest first.
func (s *Store) Visits(ctx context.Context, limit int) ([]CrawlerVisit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_name, ip_hash, user_agent, path, slug, outcome, timestamp
		FROM crawler_visits ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var out []CrawlerVisit
	for rows.Next() {
		var v CrawlerVisit
		var outcome, ts string
		if err := rows.Scan(&v.ID, &v.BotName, &v.IPHash, &v.UserAgent, &v.Path, &v.Slug, &outcome, &ts); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.Outcome = Outcome(outcome)
		v.Timestamp, _ = time.Parse(timeLayout, ts)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Stats returns aggregated crawler statistics for [from, to). With monthly
// set the time series is grouped by month instead of by day.
func (s *Store) Stats(ctx context.Context, from, to time.Time, monthly bool) (*Stats, error) {
	f, t := from.UTC().Format(timeLayout), to.UTC().Format(timeLayout)
	stats := &Stats{
		Period:      from.Format("2006-01-02") + " to " + to.Format("2006-01-02"),
		TopBots:     []DimensionStat{},
		TopPaths:    []PageStat{},
		Outcomes:    []DimensionStat{},
		DailyVisits: []DailyView{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM crawler_visits WHERE timestamp >= ? AND timestamp < ?`, f, t).Scan(&stats.TotalVisits)
	if err != nil {
		return nil, fmt.Errorf("count crawler visits: %w", err)
	}

	if stats.TopBots, err = s.dimension(ctx, "bot_name", f, t); err != nil {
		return nil, fmt.Errorf("top bots: %w", err)
	}
	if stats.Outcomes, err = s.dimension(ctx, "outcome", f, t); err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}

	paths, err := s.dimension(ctx, "path", f, t)
	if err != nil {
		return nil, fmt.Errorf("top paths: %w", err)
	}
	for _, p := range paths {
		stats.TopPaths = append(stats.TopPaths, PageStat{Path: p.Name, Views: p.Count})
	}

	width := 10 // YYYY-MM-DD
	if monthly {
		width = 7 // YYYY-MM
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(timestamp, 1, ?) AS d, COUNT(*)
		FROM crawler_visits WHERE timestamp >= ? AND timestamp < ?
		GROUP BY d ORDER BY d`, width, f, t)
	if err != nil {
		return nil, fmt.Errorf("crawler visits per day: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dv DailyView
		if err := rows.Scan(&dv.Date, &dv.Views); err != nil {
			return nil, fmt.Errorf("scan daily visits: %w", err)
		}
		stats.DailyVisits = append(stats.DailyVisits, dv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("crawler visits per day: %w", err)
	}
	return stats, nil
}

// dimension counts visits grouped by column. column is never user input.
func (s *Store) dimension(ctx context.Context, column, from, to string) ([]DimensionStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*) AS c
		FROM crawler_visits WHERE timestamp >= ? AND timestamp < ?
		GROUP BY `+column+` ORDER BY c DESC, `+column+` LIMIT 10`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DimensionStat{}
	for rows.Next() {
		var d DimensionStat
		if err := rows.Scan(&d.Name, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Cleanup removes visits older than the retention period and reports how many were deleted.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM crawler_visits WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup crawler_visits: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StartCleanupScheduler runs periodic cleanup of old data. Returns a stop function.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				n, err := s.Cleanup(context.Background(), retentionDays)
				if err != nil {
					logger.Error("analytics cleanup failed", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("analytics cleanup", zap.Int64("deleted", n))
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
