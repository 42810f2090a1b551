package battlebot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	warned   bool
}

// participantLimiter applies a token bucket per participant. A throttled
// participant is told to slow down once per throttling streak.
type participantLimiter struct {
	perSecond rate.Limit
	burst     int
	clockNow  func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func newParticipantLimiter(cfg RateLimitConfig, clock func() time.Time) *participantLimiter {
	if cfg.EventsPerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &participantLimiter{
		perSecond: rate.Limit(cfg.EventsPerMinute / 60.0),
		burst:     burst,
		clockNow:  clock,
		visitors:  make(map[string]*visitor),
	}
}

// Allow reports whether the participant may proceed and, when it may not,
// whether this is the first rejection of the current streak.
func (l *participantLimiter) Allow(participantID string) (allowed, notify bool) {
	if l == nil {
		return true, false
	}
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
	v, ok := l.visitors[participantID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[participantID] = v
	}
	v.lastSeen = now
	if v.limiter.AllowN(now, 1) {
		v.warned = false
		return true, false
	}
	if v.warned {
		return false, false
	}
	v.warned = true
	return false, true
}

func (l *participantLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < visitorIdleTTL {
		return
	}
	l.lastSweep = now
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) >= visitorIdleTTL {
			delete(l.visitors, id)
		}
	}
}
