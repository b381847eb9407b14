package peer

import (
	"sync"
	"time"
)

// connectAttempt tracks inbound connection attempts from one remote node
// within a sliding window.
type connectAttempt struct {
	timestamps []time.Time
}

// connectRateLimiter throttles repeated inbound connection attempts per key,
// so a misbehaving peer cannot force repeated Pending-state churn before the
// local user has acted. Manager uses one limiter with two kinds of key: the
// remote transport address before the handshake, and the proven node id
// after it. Adapted from the teacher's internal/auth.rateLimiter
// (sliding-window failed-login throttling by IP), retargeted from login
// failures to raw connection attempts.
type connectRateLimiter struct {
	mu         sync.Mutex
	attempts   map[string]*connectAttempt
	maxAttempts int
	windowSize time.Duration
}

func newConnectRateLimiter(maxAttempts int, windowSize time.Duration) *connectRateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if windowSize <= 0 {
		windowSize = 15 * time.Minute
	}
	rl := &connectRateLimiter{
		attempts:    make(map[string]*connectAttempt),
		maxAttempts: maxAttempts,
		windowSize:  windowSize,
	}
	go rl.cleanup()
	return rl
}

// allow records this attempt and reports whether the node id is still
// within its allowance.
func (rl *connectRateLimiter) allow(nodeID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.attempts[nodeID]
	if !exists {
		entry = &connectAttempt{}
		rl.attempts[nodeID] = entry
	}

	rl.pruneOld(entry)
	if len(entry.timestamps) >= rl.maxAttempts {
		return false
	}
	entry.timestamps = append(entry.timestamps, time.Now())
	return true
}

func (rl *connectRateLimiter) pruneOld(entry *connectAttempt) {
	cutoff := time.Now().Add(-rl.windowSize)
	n := 0
	for _, t := range entry.timestamps {
		if t.After(cutoff) {
			entry.timestamps[n] = t
			n++
		}
	}
	entry.timestamps = entry.timestamps[:n]
}

func (rl *connectRateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for key, entry := range rl.attempts {
			rl.pruneOld(entry)
			if len(entry.timestamps) == 0 {
				delete(rl.attempts, key)
			}
		}
		rl.mu.Unlock()
	}
}
