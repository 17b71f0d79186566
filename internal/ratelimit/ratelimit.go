// Package ratelimit implements the in-memory fixed-window limiters:
// a per-(endpoint, client IP) submission limiter and a per-email login
// failure limiter. State is process-local; replicas limit independently.
package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// window is one fixed counting window for a single key.
type window struct {
	count    int
	start    time.Time
	lastSeen time.Time
}

// Result is the outcome of a limiter check.
type Result struct {
	Allowed    bool
	Remaining  int // requests left in the current window
	RetryAfter int // whole seconds until the window resets; 0 when allowed
}

// SubmissionLimiter counts submissions per (endpoint, client IP) pair in
// fixed windows. Every Check consumes one slot, allowed or not; a rejected
// burst keeps the window full.
type SubmissionLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	stop    chan struct{}
	// now is replaceable in tests.
	now func() time.Time
}

// NewSubmissionLimiter creates the limiter and starts background cleanup.
func NewSubmissionLimiter() *SubmissionLimiter {
	l := &SubmissionLimiter{
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go l.cleanup(5 * time.Minute)
	return l
}

// Check records one submission attempt for the endpoint/IP pair and reports
// whether it fits inside the endpoint's limit for the given window length.
func (l *SubmissionLimiter) Check(endpointID uuid.UUID, ip string, limit, windowSecs int) Result {
	key := endpointID.String() + "|" + ip
	return l.hit(key, limit, time.Duration(windowSecs)*time.Second)
}

func (l *SubmissionLimiter) hit(key string, limit int, length time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= length {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.lastSeen = now
	w.count++

	if w.count <= limit {
		return Result{Allowed: true, Remaining: limit - w.count}
	}
	return Result{RetryAfter: retryAfterSecs(w.start, length, now)}
}

// cleanup evicts keys idle for ten minutes.
func (l *SubmissionLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-10 * time.Minute)
			for key, w := range l.windows {
				if w.lastSeen.Before(cutoff) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop shuts down the background cleanup goroutine.
func (l *SubmissionLimiter) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// Login limiter defaults: 5 failures per 15 minutes per email.
const (
	DefaultLoginMaxFailures = 5
	DefaultLoginWindow      = 15 * time.Minute
)

// LoginLimiter tracks authentication failures per email address.
// Check only inspects state; RecordFailure is the sole counter, so a stream
// of successful logins never locks an account out.
type LoginLimiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	maxFailures int
	length      time.Duration
	stop        chan struct{}
	now         func() time.Time
}

// NewLoginLimiter creates a login limiter with the given budget.
// Zero values select the defaults.
func NewLoginLimiter(maxFailures int, length time.Duration) *LoginLimiter {
	if maxFailures <= 0 {
		maxFailures = DefaultLoginMaxFailures
	}
	if length <= 0 {
		length = DefaultLoginWindow
	}
	l := &LoginLimiter{
		windows:     make(map[string]*window),
		maxFailures: maxFailures,
		length:      length,
		stop:        make(chan struct{}),
		now:         time.Now,
	}
	go l.cleanup(5 * time.Minute)
	return l
}

// Check reports whether a login attempt for email may proceed. It never
// mutates the failure count.
func (l *LoginLimiter) Check(email string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[normalizeEmail(email)]
	if !ok || now.Sub(w.start) >= l.length {
		return Result{Allowed: true, Remaining: l.maxFailures}
	}
	if w.count < l.maxFailures {
		return Result{Allowed: true, Remaining: l.maxFailures - w.count}
	}
	return Result{RetryAfter: retryAfterSecs(w.start, l.length, now)}
}

// RecordFailure counts one failed login for email.
func (l *LoginLimiter) RecordFailure(email string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := normalizeEmail(email)
	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.length {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.lastSeen = now
	w.count++
}

// Reset clears the failure count for email, typically after a successful
// login.
func (l *LoginLimiter) Reset(email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, normalizeEmail(email))
}

func (l *LoginLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-l.length)
			for key, w := range l.windows {
				if w.lastSeen.Before(cutoff) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop shuts down the background cleanup goroutine.
func (l *LoginLimiter) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// retryAfterSecs returns whole seconds until the window resets, rounded up,
// minimum 1.
func retryAfterSecs(start time.Time, length time.Duration, now time.Time) int {
	remaining := start.Add(length).Sub(now)
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// String implements fmt.Stringer for log output.
func (r Result) String() string {
	if r.Allowed {
		return fmt.Sprintf("allowed (remaining %d)", r.Remaining)
	}
	return fmt.Sprintf("limited (retry after %ds)", r.RetryAfter)
}
