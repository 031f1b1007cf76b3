package channelpipeline

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys bounds the limiter map against memory exhaustion from
// attackers rotating channel/sender keys, mirroring the teacher's
// WebhookRateLimiter bounded-map defense (internal/channels/ratelimit.go)
// generalized here to golang.org/x/time/rate's token bucket instead of a
// hand-rolled fixed-window counter.
const maxTrackedKeys = 4096

const (
	webhookRateLimit = 5 // events/sec sustained per key
	webhookBurst     = 10
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// WebhookRateLimiter bounds inbound webhook throughput per key; the
// pipeline keys it by channelId. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func NewWebhookRateLimiter() *WebhookRateLimiter {
	return &WebhookRateLimiter{entries: make(map[string]*limiterEntry)}
}

// Allow reports whether the key is within its rate limit, creating a fresh
// token bucket on first sight. Evicts stale entries opportunistically when
// approaching the tracked-key cap.
func (r *WebhookRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.lastSeenAt) >= time.Hour {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(webhookRateLimit), webhookBurst)}
		r.entries[key] = e
	}
	e.lastSeenAt = now
	return e.limiter.Allow()
}
