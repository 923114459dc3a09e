package server

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL         = 10 * time.Minute
	limiterCleanupInterval = time.Minute
)

// RateLimitRecorder is notified whenever a request is rejected
type RateLimitRecorder interface {
	RecordRateLimited(route string)
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientRateLimiter keeps a token bucket per client IP. Idle buckets are dropped in the background.
type ClientRateLimiter struct {
	limit          rate.Limit
	burst          int
	trustedProxies []netip.Prefix
	lock           sync.Mutex
	clients        map[string]*clientLimiter
	stopCh         chan struct{}
	once           sync.Once
}

type LimiterOption func(*ClientRateLimiter)

// WithTrustedProxies lets requests arriving from these networks name the client in X-Forwarded-For
func WithTrustedProxies(proxies []netip.Prefix) LimiterOption {
	return func(rl *ClientRateLimiter) {
		rl.trustedProxies = proxies
	}
}

// ParseTrustedProxies accepts bare IPs and CIDRs
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	proxies := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, errors.Wrapf(err, "[ParseTrustedProxies] %q", entry)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "[ParseTrustedProxies] %q", entry)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

// NewClientRateLimiter allows perSecond requests per client with the given burst.
// A non-positive perSecond disables limiting.
func NewClientRateLimiter(perSecond float64, burst int, options ...LimiterOption) *ClientRateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	rl := &ClientRateLimiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range options {
		opt(rl)
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from client may proceed now
func (rl *ClientRateLimiter) Allow(client string) bool {
	rl.lock.Lock()
	cl, ok := rl.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = cl
	}
	cl.lastAccess = time.Now()
	rl.lock.Unlock()

	return cl.limiter.Allow()
}

// Middleware rejects requests over the limit with 429
func (rl *ClientRateLimiter) Middleware(recorder RateLimitRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := rl.clientIP(r)
			if rl.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if recorder != nil {
				recorder.RecordRateLimited(route)
			}
			log.Warn().Str("client_ip", ip).Str("route", route).Msg("rate limit exceeded")

			if rl.limit != rate.Inf && rl.limit > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(1/float64(rl.limit))+1))
			}
			writeJSONError(w, http.StatusTooManyRequests, "too many requests, please try again later", "")
		})
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *ClientRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// Len returns the number of tracked clients
func (rl *ClientRateLimiter) Len() int {
	rl.lock.Lock()
	defer rl.lock.Unlock()
	return len(rl.clients)
}

func (rl *ClientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now().Add(-limiterIdleTTL))
		}
	}
}

func (rl *ClientRateLimiter) evictIdle(cutoff time.Time) {
	rl.lock.Lock()
	defer rl.lock.Unlock()
	for client, cl := range rl.clients {
		if cl.lastAccess.Before(cutoff) {
			delete(rl.clients, client)
		}
	}
}

// clientIP is the peer address unless the peer is a trusted proxy. Then the right-most
// X-Forwarded-For hop that is not itself a trusted proxy names the client.
func (rl *ClientRateLimiter) clientIP(r *http.Request) string {
	client, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		client = r.RemoteAddr
	}
	if !rl.isTrustedProxy(client) {
		return client
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !rl.isTrustedProxy(hop) {
			return hop
		}
		client = hop
	}
	return client
}

func (rl *ClientRateLimiter) isTrustedProxy(host string) bool {
	if len(rl.trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range rl.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
