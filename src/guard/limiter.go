package guard

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies token buckets per peer and globally to every inbound
// message before it reaches the failure detector or the dissemination
// engine. Messages over the budget are dropped and counted, never queued.
type RateLimiter struct {
	sync.Mutex

	limit rate.Limit
	burst int

	global  *rate.Limiter
	perPeer map[string]*rate.Limiter
}

// NewRateLimiter returns a limiter allowing msgsPerSec sustained messages
// per peer with the given burst, and ten times that globally. A
// non-positive msgsPerSec disables limiting.
func NewRateLimiter(msgsPerSec float64, burst int) *RateLimiter {
	if msgsPerSec <= 0 {
		return &RateLimiter{}
	}

	return &RateLimiter{
		limit:   rate.Limit(msgsPerSec),
		burst:   burst,
		global:  rate.NewLimiter(rate.Limit(msgsPerSec*10), burst*10),
		perPeer: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a message from the given peer may be processed, and
// counts the drop otherwise.
func (r *RateLimiter) Allow(from string) bool {
	if r.global == nil {
		return true
	}

	r.Lock()
	peer, ok := r.perPeer[from]
	if !ok {
		peer = rate.NewLimiter(r.limit, r.burst)
		r.perPeer[from] = peer
	}
	r.Unlock()

	if !peer.Allow() {
		DroppedMessages.WithLabelValues(ReasonPeerLimit).Inc()
		return false
	}

	if !r.global.Allow() {
		DroppedMessages.WithLabelValues(ReasonRateLimit).Inc()
		return false
	}

	return true
}

// Forget drops the bucket of a purged member so the peer map does not grow
// without bound.
func (r *RateLimiter) Forget(addr string) {
	if r.perPeer == nil {
		return
	}

	r.Lock()
	delete(r.perPeer, addr)
	r.Unlock()
}
