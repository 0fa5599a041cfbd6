package core

// bulk_limiter.go caps how many bulk imports run at once.
//
// Each accepted bulk entry takes the service writer lock, so parallel imports
// only queue behind each other while holding request goroutines and parsed
// payloads in memory. The limiter bounds that queue: a caller waits up to
// maxWait for a slot, then fails with ErrTooManyBulkImports.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyBulkImports is returned when every bulk slot stays busy for the
// whole wait window. Clients should retry after a short delay.
var ErrTooManyBulkImports = errors.New("too many concurrent bulk imports, please try again later")

const (
	// DefaultMaxConcurrentBulk is used when the configured limit is not positive.
	DefaultMaxConcurrentBulk = 2

	// DefaultBulkWaitTime is used when the configured wait is not positive.
	DefaultBulkWaitTime = 10 * time.Second
)

// BulkLimiter is a counting semaphore for bulk imports.
type BulkLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.Mutex
	active int
}

// NewBulkLimiter allows at most maxConcurrent imports at once.
func NewBulkLimiter(maxConcurrent int, maxWait time.Duration) *BulkLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBulk
	}
	if maxWait <= 0 {
		maxWait = DefaultBulkWaitTime
	}
	return &BulkLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait. The caller must Release it.
func (l *BulkLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyBulkImports
	}
}

// Release returns a slot taken by Acquire.
func (l *BulkLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.slots
}

// ActiveCount returns the number of imports holding a slot.
func (l *BulkLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// MaxConcurrent returns the slot count.
func (l *BulkLimiter) MaxConcurrent() int { return cap(l.slots) }

// WaitForDrain blocks until no import holds a slot or ctx is done.
// Used during shutdown so in-flight imports finish their current entries.
func (l *BulkLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BulkLimiterStatus is a point-in-time view of the limiter.
type BulkLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the limiter state for health output.
func (l *BulkLimiter) Status() BulkLimiterStatus {
	active := l.ActiveCount()
	return BulkLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
