package broadcast

import (
	"math"
	"sort"

	"github.com/gossipnetworks/gossamer/src/membership"
)

// Queue holds membership updates waiting to be piggybacked on probe traffic.
// Each update is retransmitted a bounded number of times, a multiple of
// log2(N), which keeps the total gossip overhead bounded while still giving
// every update high-probability full coverage. A newer update for an address
// invalidates the queued one.
//
// Like the Tree, the Queue lives inside the node's mutation boundary and is
// not safe for concurrent use.
type Queue struct {
	retransmitMult int
	numNodes       func() int
	updates        map[string]*limitedUpdate
}

type limitedUpdate struct {
	update    membership.Update
	transmits int
}

// NewQueue ...
func NewQueue(retransmitMult int, numNodes func() int) *Queue {
	return &Queue{
		retransmitMult: retransmitMult,
		numNodes:       numNodes,
		updates:        make(map[string]*limitedUpdate),
	}
}

// Enqueue adds an update to the queue. An update already queued for the same
// address is replaced outright; the merge rule upstream guarantees the new
// one supersedes it.
func (q *Queue) Enqueue(u membership.Update) {
	q.updates[u.Addr] = &limitedUpdate{update: u}
}

// Gossip returns up to limit updates to piggyback on an outgoing message,
// preferring the least-transmitted ones, and retires updates whose
// retransmit budget is exhausted.
func (q *Queue) Gossip(limit int) []membership.Update {
	if len(q.updates) == 0 || limit <= 0 {
		return nil
	}

	budget := retransmitLimit(q.retransmitMult, q.numNodes())

	pending := make([]*limitedUpdate, 0, len(q.updates))
	for _, lu := range q.updates {
		pending = append(pending, lu)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].transmits != pending[j].transmits {
			return pending[i].transmits < pending[j].transmits
		}
		return pending[i].update.Addr < pending[j].update.Addr
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]membership.Update, len(pending))
	for i, lu := range pending {
		out[i] = lu.update
		lu.transmits++
		if lu.transmits >= budget {
			delete(q.updates, lu.update.Addr)
		}
	}

	return out
}

// Len returns the number of queued updates.
func (q *Queue) Len() int {
	return len(q.updates)
}

// retransmitLimit gives the per-update retransmit budget for a cluster of n
// nodes.
func retransmitLimit(mult, n int) int {
	limit := mult * int(math.Ceil(math.Log2(float64(n+1))))
	if limit < mult {
		limit = mult
	}
	return limit
}
