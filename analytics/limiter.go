package analytics

import (
	"sync"
	"time"
)

// failureLimiter counts failed API key attempts per client in a sliding window.
type failureLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	done   chan struct{}
	once   sync.Once
}

func newFailureLimiter(max int, window time.Duration) *failureLimiter {
	fl := &failureLimiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		done:   make(chan struct{}),
	}
	go fl.cleanup()
	return fl
}

// blocked reports whether key has used up its failures for the current window.
func (fl *failureLimiter) blocked(key string) bool {
	cutoff := time.Now().Add(-fl.window)

	fl.mu.Lock()
	defer fl.mu.Unlock()

	kept := prune(fl.hits[key], cutoff)
	if len(kept) == 0 {
		delete(fl.hits, key)
	} else {
		fl.hits[key] = kept
	}
	return len(kept) >= fl.max
}

// fail records a failed attempt for key.
func (fl *failureLimiter) fail(key string) {
	fl.mu.Lock()
	fl.hits[key] = append(fl.hits[key], time.Now())
	fl.mu.Unlock()
}

func (fl *failureLimiter) stop() {
	fl.once.Do(func() { close(fl.done) })
}

func (fl *failureLimiter) cleanup() {
	ticker := time.NewTicker(fl.window)
	defer ticker.Stop()
	for {
		select {
		case <-fl.done:
			return
		case now := <-ticker.C:
			cutoff := now.Add(-fl.window)
			fl.mu.Lock()
			for key, hits := range fl.hits {
				if kept := prune(hits, cutoff); len(kept) == 0 {
					delete(fl.hits, key)
				} else {
					fl.hits[key] = kept
				}
			}
			fl.mu.Unlock()
		}
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
