package telegram

import (
	"sync"
	"time"
)

// RateLimiter coalesces rapid repeat clicks: the same user hitting the same
// action twice inside the window gets the second click swallowed.
type RateLimiter struct {
	mu       sync.Mutex
	lastCall map[int64]map[string]time.Time
	window   time.Duration
}

func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{
		lastCall: make(map[int64]map[string]time.Time),
		window:   window,
	}
}

func (r *RateLimiter) IsLimited(userID int64, action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	actions, ok := r.lastCall[userID]
	if !ok {
		actions = make(map[string]time.Time)
		r.lastCall[userID] = actions
	}

	if last, ok := actions[action]; ok && now.Sub(last) < r.window {
		return true
	}
	actions[action] = now
	return false
}
