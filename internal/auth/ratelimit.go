// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RateLimitOptions configures the password-grant rate limiter. The limiter is
// disabled when any value is <= 0.
type RateLimitOptions struct {
	MaxAttempts   int
	WindowSeconds int
	BlockSeconds  int
}

// Enabled reports whether the limiter is active.
func (o RateLimitOptions) Enabled() bool {
	return o.MaxAttempts > 0 && o.WindowSeconds > 0 && o.BlockSeconds > 0
}

// rateLimitBucket tracks attempts for one key. Attempts is a counting window
// that escalates into a hard cool-down, not a leaky bucket.
type rateLimitBucket struct {
	attempts     []time.Time
	blockedUntil *time.Time
}

// PasswordGrantLimiter guards password-grant attempts per logical key.
// State is process-local; a restart clears all buckets.
//
// A single mutex guards the whole bucket map; contention is low and each
// operation is O(window size).
type PasswordGrantLimiter struct {
	mu      sync.Mutex
	opts    RateLimitOptions
	buckets map[string]*rateLimitBucket
}

// NewPasswordGrantLimiter creates a limiter with the given options.
func NewPasswordGrantLimiter(opts RateLimitOptions) *PasswordGrantLimiter {
	return &PasswordGrantLimiter{
		opts:    opts,
		buckets: make(map[string]*rateLimitBucket),
	}
}

// IsBlocked reports whether any of the keys is currently blocked. A block on
// one signal (e.g. a shared IP) blocks the request even if the other buckets
// are still open.
func (l *PasswordGrantLimiter) IsBlocked(keys []string, now time.Time) bool {
	if !l.opts.Enabled() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	blocked := false
	for _, key := range keys {
		bucket := l.bucket(key)
		l.prune(bucket, now)
		if bucket.blockedUntil != nil && bucket.blockedUntil.After(now) {
			blocked = true
		}
		l.persist(key, bucket)
	}
	return blocked
}

// RecordFailure appends an attempt to each key's window. Once a bucket
// reaches MaxAttempts its attempt list is cleared and the key enters a hard
// cool-down of BlockSeconds. Failures recorded against an already-blocked
// bucket are dropped.
func (l *PasswordGrantLimiter) RecordFailure(keys []string, now time.Time) {
	if !l.opts.Enabled() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range keys {
		bucket := l.bucket(key)
		l.prune(bucket, now)

		if bucket.blockedUntil != nil && bucket.blockedUntil.After(now) {
			l.persist(key, bucket)
			continue
		}

		bucket.attempts = append(bucket.attempts, now)
		if len(bucket.attempts) >= l.opts.MaxAttempts {
			blockedUntil := now.Add(time.Duration(l.opts.BlockSeconds) * time.Second)
			bucket.blockedUntil = &blockedUntil
			bucket.attempts = bucket.attempts[:0]
		}

		l.persist(key, bucket)
	}
}

// RecordSuccess clears all failure history for the keys unconditionally: a
// good login resets the identity and IP signals alike.
func (l *PasswordGrantLimiter) RecordSuccess(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range keys {
		delete(l.buckets, key)
	}
}

// bucket returns the bucket for key, creating it lazily.
func (l *PasswordGrantLimiter) bucket(key string) *rateLimitBucket {
	if b, ok := l.buckets[key]; ok {
		return b
	}
	return &rateLimitBucket{}
}

// prune drops attempts outside the trailing window and clears expired blocks.
func (l *PasswordGrantLimiter) prune(bucket *rateLimitBucket, now time.Time) {
	if bucket.blockedUntil != nil && !bucket.blockedUntil.After(now) {
		bucket.blockedUntil = nil
	}

	cutoff := now.Add(-time.Duration(l.opts.WindowSeconds) * time.Second)
	kept := bucket.attempts[:0]
	for _, at := range bucket.attempts {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	bucket.attempts = kept
}

// persist stores the bucket, deleting it when empty.
func (l *PasswordGrantLimiter) persist(key string, bucket *rateLimitBucket) {
	if len(bucket.attempts) == 0 && bucket.blockedUntil == nil {
		delete(l.buckets, key)
		return
	}
	l.buckets[key] = bucket
}

// PasswordGrantRateLimitKeys derives the three throttle keys for a login
// attempt: IP, email, and their composite. Signals are lower-cased and
// trimmed; a missing IP becomes the literal "unknown".
func PasswordGrantRateLimitKeys(ip, email string) []string {
	normalizedIP := strings.ToLower(strings.TrimSpace(ip))
	if normalizedIP == "" {
		normalizedIP = "unknown"
	}
	normalizedEmail := NormalizeEmail(email)

	return []string{
		fmt.Sprintf("ip:%s", normalizedIP),
		fmt.Sprintf("email:%s", normalizedEmail),
		fmt.Sprintf("ip_email:%s:%s", normalizedIP, normalizedEmail),
	}
}
