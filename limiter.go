package voiceinfo

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CrawlerLimiter rate-limits share-document requests per client IP. Crawler
// detection trusts the User-Agent, so this keeps a spoofing client from
// turning the edge into an upstream amplifier.
type CrawlerLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	limit   rate.Limit
	burst   int
	stop    chan struct{}
	once    sync.Once
}

// NewCrawlerLimiter creates a CrawlerLimiter allowing rps requests per second
// with the given burst, and starts its idle-bucket sweeper.
func NewCrawlerLimiter(rps float64, burst int) *CrawlerLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &CrawlerLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.cleanup(time.Minute)
	return l
}

func (l *CrawlerLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (l *CrawlerLimiter) sweep(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	l.mu.Lock()
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
	l.mu.Unlock()
}

// Allow reports whether ip may make another request now and consumes a token if so.
func (l *CrawlerLimiter) Allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *CrawlerLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
