package stub

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// idle client buckets are swept once this many are tracked
	throttleSweepSize = 1024
	throttleIdleAfter = 10 * time.Minute
)

// throttle keeps one token bucket per client address, mimicking the
// per-account request quota of the managed service
type throttle struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newThrottle(rps float64, burst int) *throttle {
	t := &throttle{clients: make(map[string]*throttleEntry)}
	t.setLimit(rps, burst)
	return t
}

// setLimit replaces the quota. Existing buckets are discarded.
func (t *throttle) setLimit(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = rate.Limit(rps)
	t.burst = burst
	t.clients = make(map[string]*throttleEntry)
}

// allow reports whether client may issue a request at now.
// A non-positive limit disables throttling.
func (t *throttle) allow(client string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit <= 0 {
		return true
	}

	entry, ok := t.clients[client]
	if !ok {
		if len(t.clients) >= throttleSweepSize {
			t.sweep(now.Add(-throttleIdleAfter))
		}
		entry = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops buckets not used since cutoff. Callers hold mu.
func (t *throttle) sweep(cutoff time.Time) int {
	removed := 0
	for client, entry := range t.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(t.clients, client)
			removed++
		}
	}
	return removed
}

// throttleMiddleware answers 429 ThrottlingException once a client exceeds its quota
func (s *Server) throttleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := remoteHost(r)
		if !s.throttle.allow(client, time.Now()) {
			s.logger.Debug("Request throttled",
				zap.String("request_id", getRequestID(r.Context())),
				zap.String("client", client),
			)
			writeError(w, http.StatusTooManyRequests, "ThrottlingException", "Rate exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
