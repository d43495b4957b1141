package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// rateClass is a named request budget. Team scoped classes count each
// (team, user) pair separately, so a burst of chat in one team leaves the
// caller's budget in every other team untouched.
type rateClass struct {
	name      string
	limit     int
	window    time.Duration
	teamScope bool
}

var (
	rateRead   = rateClass{name: "read", limit: 240, window: time.Minute}
	rateWrite  = rateClass{name: "write", limit: 60, window: time.Minute}
	rateChat   = rateClass{name: "chat", limit: 120, window: time.Minute, teamScope: true}
	rateUpload = rateClass{name: "upload", limit: 30, window: time.Minute, teamScope: true}
	rateStream = rateClass{name: "stream", limit: 30, window: 30 * time.Second, teamScope: true}
)

// key builds the limiter key for a caller. Anonymous callers fall back to
// their address.
func (c rateClass) key(req *http.Request, teamID string) string {
	var who string
	if actor, ok := actorFromContext(req.Context()); ok && actor.UserID != "" {
		who = "user:" + actor.UserID
	} else {
		who = "ip:" + remoteHost(req)
	}
	if c.teamScope && teamID != "" {
		return c.name + ":team:" + teamID + ":" + who
	}
	return c.name + ":" + who
}

const windowSweepEvery = 5 * time.Minute

// windowCounter keeps fixed window counters in process; use it for single
// replicas. Expired windows are swept lazily from Allow.
type windowCounter struct {
	mu        sync.Mutex
	windows   map[string]rateDecision
	nextSweep time.Time
	now       func() time.Time
}

// NewMemoryRateLimiter returns the in-process limiter.
func NewMemoryRateLimiter() RateLimiter {
	return &windowCounter{windows: make(map[string]rateDecision), now: time.Now}
}

func (wc *windowCounter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := wc.now()
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if now.After(wc.nextSweep) {
		for k, w := range wc.windows {
			if now.After(w.windowEnd) {
				delete(wc.windows, k)
			}
		}
		wc.nextSweep = now.Add(windowSweepEvery)
	}

	w, ok := wc.windows[key]
	if !ok || now.After(w.windowEnd) {
		w = rateDecision{windowEnd: now.Add(window)}
	}
	if w.count >= limit {
		return rateDecision{allowed: false, count: w.count, windowEnd: w.windowEnd}
	}
	w.count++
	w.allowed = true
	wc.windows[key] = w
	return w
}

func (wc *windowCounter) Close() {}

// limited charges class for the request before calling next. teamID is
// ignored by classes that are not team scoped.
func (r *Router) limited(route string, class rateClass, teamID string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if class.limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		decision := r.limiter.Allow(class.key(req, teamID), class.limit, class.window)
		r.applyRateHeaders(w, class.limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route, class.name)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded for "+class.name)
			return
		}
		next(w, req)
	}
}

// authLimited authenticates before charging a caller-wide class.
func (r *Router) authLimited(route string, class rateClass, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.limited(route, class, "", next))
}

// serveLimited charges class inside an already authenticated route.
func (r *Router) serveLimited(route string, class rateClass, teamID string, w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
	r.limited(route, class, teamID, next)(w, req)
}

func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
