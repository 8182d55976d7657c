package broker

import (
	"sync"
	"time"
)

// RateLimiter tracks per-sender message counts in fixed one-minute windows.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	senders map[string]*senderWindow
}

type senderWindow struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limit:   perMinute,
		senders: make(map[string]*senderWindow),
	}
}

// Allow reports whether userID may publish another message this minute.
func (rl *RateLimiter) Allow(userID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.senders[userID]
	if !exists {
		rl.senders[userID] = &senderWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= time.Minute {
		window.count = 1
		window.windowStart = now
		return true
	}

	if window.count >= rl.limit {
		return false
	}

	window.count++
	return true
}

// Cleanup drops sender entries idle for over five minutes. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, window := range rl.senders {
		if now.Sub(window.windowStart) > 5*time.Minute {
			delete(rl.senders, userID)
		}
	}
}
