// Package counter provides sliding window counter stores backing the rate
// limit engine. The Redis store is the production backend; the in-memory
// store serves single-process deployments, tests, and degraded mode.
package counter

import (
	"context"
	"sync"
	"time"

	"quotagate/internal/ratelimit/models"
)

// MemoryStore implements CounterStore with an in-process sliding window.
// Not distributed; counters are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow

	// now is swappable in tests.
	now func() time.Time
}

// slidingWindow tracks request timestamps. Evaluating the count over the
// trailing window (rather than fixed buckets) prevents boundary bursts from
// doubling the effective rate.
type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

// NewMemory creates an empty in-memory counter store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
}

// Allow checks if a request is allowed and consumes one slot if so.
func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sw := s.getOrCreate(key, window)
	sw.expire(now)

	if len(sw.timestamps)+1 <= limit {
		sw.timestamps = append(sw.timestamps, now)
		return &models.Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - len(sw.timestamps),
			ResetAt:   sw.timestamps[0].Add(window),
		}, nil
	}

	resetAt := now.Add(window)
	if len(sw.timestamps) > 0 {
		resetAt = sw.timestamps[0].Add(window)
	}
	return &models.Result{
		Allowed:   false,
		Limit:     limit,
		Remaining: 0,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the counter for a key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Count returns the current request count within the window.
func (s *MemoryStore) Count(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw := s.windows[key]
	if sw == nil {
		return 0, nil
	}
	sw.expire(s.now())
	return len(sw.timestamps), nil
}

// expire drops timestamps that fell out of the trailing window.
func (sw *slidingWindow) expire(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

// getOrCreate must be called while holding s.mu.
func (s *MemoryStore) getOrCreate(key string, window time.Duration) *slidingWindow {
	if sw := s.windows[key]; sw != nil {
		return sw
	}
	sw := &slidingWindow{window: window}
	s.windows[key] = sw
	return sw
}
