package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// throttleCleanupThreshold is the map size above which idle players are pruned.
	throttleCleanupThreshold = 1000
	throttleMaxIdle          = 10 * time.Minute
)

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// throttle keeps one token bucket per player for the submission route.
// A nil throttle allows everything.
type throttle struct {
	mu      sync.Mutex
	players map[string]*throttleEntry
	r       rate.Limit
	b       int
	now     func() time.Time
}

func newThrottle(perSecond float64, burst int) *throttle {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &throttle{
		players: make(map[string]*throttleEntry),
		r:       rate.Limit(perSecond),
		b:       burst,
		now:     time.Now,
	}
}

// allow consumes one token for playerID.
func (t *throttle) allow(playerID string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if len(t.players) > throttleCleanupThreshold {
		cutoff := now.Add(-throttleMaxIdle)
		for id, e := range t.players {
			if e.lastSeen.Before(cutoff) {
				delete(t.players, id)
			}
		}
	}

	e, ok := t.players[playerID]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.r, t.b)}
		t.players[playerID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
