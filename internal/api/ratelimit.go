package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/snarg/transcriptor/internal/metrics"
)

// Rate limit buckets. Every API request counts against exactly one.
const (
	BucketTranscribe = "transcribe"
	BucketUpload     = "upload"
	BucketGeneral    = "general"
)

// RateLimit allows each client limit requests per window, refilling
// continuously. Clients are keyed by IP.
type RateLimit struct {
	bucket string
	limit  int
	every  rate.Limit
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimit
	lastSweep time.Time
}

type clientLimit struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimit creates a limiter for one bucket.
func NewRateLimit(bucket string, limit int, window time.Duration) *RateLimit {
	if limit < 1 {
		limit = 1
	}
	return &RateLimit{
		bucket:  bucket,
		limit:   limit,
		every:   rate.Every(window / time.Duration(limit)),
		window:  window,
		now:     time.Now,
		clients: make(map[string]*clientLimit),
	}
}

// RateLimiter returns middleware enforcing limit requests per window per client.
func RateLimiter(bucket string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return NewRateLimit(bucket, limit, window).Middleware
}

func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := rl.now()
		lim := rl.limiter(clientIP(r), now)

		res := lim.ReserveN(now, 1)
		if delay := res.DelayFrom(now); delay > 0 {
			res.CancelAt(now)
			reset := now.Add(delay).UnixMilli()
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			metrics.RateLimitedTotal.WithLabelValues(rl.bucket).Inc()
			WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":     "Rate limit exceeded",
				"resetTime": reset,
			})
			return
		}

		tokens := lim.TokensAt(now)
		remaining := int(math.Floor(tokens))
		if remaining < 0 {
			remaining = 0
		}
		// Time until the bucket is full again.
		refill := time.Duration((float64(rl.limit) - tokens) / float64(rl.every) * float64(time.Second))
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(refill).UnixMilli(), 10))
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Idle clients have a full bucket again after one window, so forgetting
	// them changes nothing.
	if now.Sub(rl.lastSweep) > rl.window {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > rl.window {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimit{lim: rate.NewLimiter(rl.every, rl.limit)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.lim
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
