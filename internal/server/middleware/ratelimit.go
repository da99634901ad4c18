package middleware

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	xrate "golang.org/x/time/rate"

	"github.com/pacerhq/pacer/internal/metrics"
)

// DefaultMaxClients bounds the number of client buckets kept in memory.
const DefaultMaxClients = 10000

// IngressLimiter applies a token bucket per client address. Buckets for the
// least recently seen clients are dropped once MaxClients is reached.
type IngressLimiter struct {
	limit xrate.Limit
	burst int

	mu      sync.Mutex
	clients *lru.Cache[string, *xrate.Limiter]
}

// NewIngressLimiter creates a limiter allowing rps requests per second per
// client with the given burst.
func NewIngressLimiter(rps float64, burst, maxClients int) (*IngressLimiter, error) {
	if rps <= 0 {
		return nil, errors.New("rate limit rps must be positive")
	}
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	clients, err := lru.New[string, *xrate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &IngressLimiter{
		limit:   xrate.Limit(rps),
		burst:   burst,
		clients: clients,
	}, nil
}

// Allow reports whether client may make a request now.
func (l *IngressLimiter) Allow(client string) bool {
	l.mu.Lock()
	limiter, ok := l.clients.Get(client)
	if !ok {
		limiter = xrate.NewLimiter(l.limit, l.burst)
		l.clients.Add(client, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Clients returns the number of tracked client buckets.
func (l *IngressLimiter) Clients() int {
	return l.clients.Len()
}

// Middleware rejects requests over the client's budget with 429.
func (l *IngressLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/float64(l.limit)))))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Allow(clientAddr(r)) {
			next.ServeHTTP(w, r)
			return
		}

		route := EndpointPattern(r)
		metrics.RecordIngressRejected(route)

		envelope := gferrors.NewErrorEnvelope("RATE_LIMITED", "too many requests").
			WithCorrelationID(GetRequestID(r.Context()))
		envelope, _ = envelope.WithContext(map[string]interface{}{
			"route": route,
		})
		w.Header().Set("Retry-After", retryAfter)
		writeErrorResponse(w, envelope, http.StatusTooManyRequests)
	})
}

type peerAddrContextKey struct{}

// PeerAddr records the socket peer address before anything rewrites
// RemoteAddr from forwarding headers. It must run ahead of chi's RealIP.
func PeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrContextKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientAddr is the host the limiter keys on: the recorded peer when
// PeerAddr ran, RemoteAddr otherwise.
func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if peer, ok := r.Context().Value(peerAddrContextKey{}).(string); ok {
		addr = peer
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
