// Package ratelimit implements a per-client dual sliding-window request
// limiter: an independent per-minute and per-hour budget. State is process
// local and rebuilt from scratch on restart.
package ratelimit

import (
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// DefaultPerMinute and DefaultPerHour match the documented request budgets.
const (
	DefaultPerMinute = 60
	DefaultPerHour   = 1000
)

type clientWindows struct {
	minute []time.Time
	hour   []time.Time
}

// Limiter tracks request timestamps per client id. A single mutex guards all
// clients; cardinality is expected to stay low and the critical section is a
// couple of slice operations.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	clients   map[string]*clientWindows
}

// NewLimiter builds a limiter with the given window budgets. Non-positive
// budgets fall back to the defaults.
func NewLimiter(perMinute, perHour int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perHour <= 0 {
		perHour = DefaultPerHour
	}
	return &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		clients:   make(map[string]*clientWindows),
	}
}

// CheckAndRecord purges expired entries for the client, then either records
// the request in both windows and allows it, or rejects it reporting how long
// until the oldest entry in the binding window slides out.
func (l *Limiter) CheckAndRecord(clientID string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.clients[clientID]
	if w == nil {
		w = &clientWindows{}
		l.clients[clientID] = w
	}

	w.minute = prune(w.minute, now.Add(-minuteWindow))
	w.hour = prune(w.hour, now.Add(-hourWindow))

	if len(w.minute) >= l.perMinute {
		return false, w.minute[0].Add(minuteWindow).Sub(now)
	}
	if len(w.hour) >= l.perHour {
		return false, w.hour[0].Add(hourWindow).Sub(now)
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return true, 0
}

// Allow is CheckAndRecord against the wall clock.
func (l *Limiter) Allow(clientID string) (bool, time.Duration) {
	return l.CheckAndRecord(clientID, time.Now())
}

// prune drops entries at or before cutoff. Entries are appended in time
// order, so the first retained index bounds the rest.
func prune(entries []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	return append(entries[:0], entries[i:]...)
}
