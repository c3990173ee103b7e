package network

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// RateLimitTracker remembers rate-limit windows per endpoint pattern. A pattern is an exact
// path or a glob where '*' matches any run of characters, e.g. "/auth/*".
// Expired windows are evicted lazily on lookup. It is safe for concurrent use.
type RateLimitTracker struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time // injectable clock for tests
}

type rateLimitEntry struct {
	until time.Time
	glob  *regexp.Regexp // nil for exact patterns
}

// NewRateLimitTracker creates an empty tracker. now defaults to time.Now.
func NewRateLimitTracker(now func() time.Time) *RateLimitTracker {
	if now == nil {
		now = time.Now
	}
	return &RateLimitTracker{
		entries: make(map[string]*rateLimitEntry),
		now:     now,
	}
}

// Limit marks pattern as rate-limited for d. A later, longer window wins over a shorter one.
func (t *RateLimitTracker) Limit(pattern string, d time.Duration) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || d <= 0 {
		return
	}

	until := t.now().Add(d)

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[pattern]; ok {
		if until.After(existing.until) {
			existing.until = until
		}
		return
	}

	entry := &rateLimitEntry{until: until}
	if strings.Contains(pattern, "*") {
		entry.glob = compileGlob(pattern)
	}
	t.entries[pattern] = entry
}

// IsRateLimited reports whether endpoint is inside an active window. Exact matches are
// consulted first, then glob patterns.
func (t *RateLimitTracker) IsRateLimited(endpoint string) bool {
	return t.Remaining(endpoint) > 0
}

// Remaining returns how long endpoint stays limited; zero when it is not limited.
func (t *RateLimitTracker) Remaining(endpoint string) time.Duration {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[endpoint]; ok {
		if d := entry.until.Sub(now); d > 0 {
			return d
		}
		delete(t.entries, endpoint)
	}

	var longest time.Duration
	for pattern, entry := range t.entries {
		if entry.glob == nil || !entry.glob.MatchString(endpoint) {
			continue
		}
		d := entry.until.Sub(now)
		if d <= 0 {
			delete(t.entries, pattern)
			continue
		}
		if d > longest {
			longest = d
		}
	}
	return longest
}

// Clear removes every window.
func (t *RateLimitTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.entries)
}

// Len returns the number of stored windows, including expired ones not yet evicted.
func (t *RateLimitTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func compileGlob(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}
