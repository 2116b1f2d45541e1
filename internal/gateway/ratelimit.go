package gateway

import (
	"sync"
	"time"
)

// RateLimits are the independent per-minute caps for the three scopes.
type RateLimits struct {
	PerUser    int
	PerChannel int
	Global     int
}

func DefaultRateLimits() RateLimits {
	return RateLimits{PerUser: 10, PerChannel: 20, Global: 100}
}

const globalScopeKey = "global"

// RateLimiter keeps a sliding one-minute window of admission timestamps per
// scope key. Checks and the window append happen under one lock so arrival
// order is strict within a scope; the lock is never held across I/O.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	limits RateLimits
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(limits RateLimits) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		limits:  limits,
		window:  time.Minute,
		now:     time.Now,
	}
}

// Allow checks the user, channel and global windows in that order and
// appends the current timestamp to each window it passes. The first
// exceeded cap rejects; windows already appended to stay appended, matching
// the at-least-once accounting the gateway promises.
func (l *RateLimiter) Allow(userID, channelID string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if userID != "" && !l.admit("user:"+userID, l.limits.PerUser, now, cutoff) {
		return false
	}
	if channelID != "" && !l.admit("channel:"+channelID, l.limits.PerChannel, now, cutoff) {
		return false
	}
	return l.admit(globalScopeKey, l.limits.Global, now, cutoff)
}

// admit filters the window to the trailing minute, enforces the cap, and
// records the new timestamp. Caller holds l.mu.
func (l *RateLimiter) admit(key string, cap int, now, cutoff time.Time) bool {
	recent := l.windows[key][:0:len(l.windows[key])]
	for _, ts := range l.windows[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) >= cap {
		l.windows[key] = recent
		return false
	}
	l.windows[key] = append(recent, now)
	return true
}

// WindowLen reports how many admissions are recorded for a scope key within
// the trailing window.
func (l *RateLimiter) WindowLen(key string) int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, ts := range l.windows[key] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// ActiveWindows reports how many scope keys currently hold entries.
func (l *RateLimiter) ActiveWindows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Prune drops timestamps older than the window and removes empty scopes.
// After a pass no window holds a timestamp older than now minus one minute.
func (l *RateLimiter) Prune() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, window := range l.windows {
		recent := window[:0:len(window)]
		for _, ts := range window {
			if ts.After(cutoff) {
				recent = append(recent, ts)
			}
		}
		if len(recent) == 0 {
			delete(l.windows, key)
			continue
		}
		l.windows[key] = recent
	}
}
