package auth

import (
	"fmt"
	"sync"
	"time"

	dErrors "nucleus/pkg/domain-errors"
)

// Lockout throttles API key guessing. Failures are counted per moderator name
// and client address; once a key reaches the threshold within the window it
// is locked for the lock duration, whether or not later attempts are correct.
type Lockout struct {
	threshold    int
	window       time.Duration
	lockDuration time.Duration
	now          func() time.Time

	mu      sync.Mutex
	records map[string]*lockoutRecord
}

type lockoutRecord struct {
	failures    int
	firstFailAt time.Time
	lockedUntil time.Time
}

type LockoutOption func(*Lockout)

func WithLockoutThreshold(n int) LockoutOption {
	return func(l *Lockout) {
		if n > 0 {
			l.threshold = n
		}
	}
}

func WithLockoutWindow(d time.Duration) LockoutOption {
	return func(l *Lockout) {
		if d > 0 {
			l.window = d
		}
	}
}

func WithLockDuration(d time.Duration) LockoutOption {
	return func(l *Lockout) {
		if d > 0 {
			l.lockDuration = d
		}
	}
}

func WithLockoutClock(now func() time.Time) LockoutOption {
	return func(l *Lockout) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLockout defaults to five failures per fifteen minutes and a fifteen
// minute lock.
func NewLockout(opts ...LockoutOption) *Lockout {
	l := &Lockout{
		threshold:    5,
		window:       15 * time.Minute,
		lockDuration: 15 * time.Minute,
		now:          time.Now,
		records:      make(map[string]*lockoutRecord),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func lockoutKey(name, ip string) string {
	return name + "|" + ip
}

// Check returns a CodeRateLimited error while the pair is locked.
func (l *Lockout) Check(name, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[lockoutKey(name, ip)]
	if !ok {
		return nil
	}
	now := l.now()
	if now.Before(rec.lockedUntil) {
		retryAfter := rec.lockedUntil.Sub(now).Round(time.Second)
		return dErrors.New(dErrors.CodeRateLimited, fmt.Sprintf("too many failed attempts, retry in %s", retryAfter))
	}
	return nil
}

// RecordFailure counts a failed attempt and reports whether it locked the pair.
func (l *Lockout) RecordFailure(name, ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.pruneLocked(now)

	key := lockoutKey(name, ip)
	rec, ok := l.records[key]
	if !ok || now.Sub(rec.firstFailAt) >= l.window {
		rec = &lockoutRecord{firstFailAt: now}
		l.records[key] = rec
	}
	rec.failures++
	if rec.failures >= l.threshold {
		rec.lockedUntil = now.Add(l.lockDuration)
		rec.failures = 0
		rec.firstFailAt = now
		return true
	}
	return false
}

// Clear forgets failures after a successful authentication.
func (l *Lockout) Clear(name, ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, lockoutKey(name, ip))
}

// pruneLocked drops records whose window and lock have both passed.
func (l *Lockout) pruneLocked(now time.Time) {
	for key, rec := range l.records {
		if now.Sub(rec.firstFailAt) >= l.window && !now.Before(rec.lockedUntil) {
			delete(l.records, key)
		}
	}
}
