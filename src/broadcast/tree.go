package broadcast

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/gossipnetworks/gossamer/src/crypto"
	"github.com/sirupsen/logrus"
)

// Tree is the state of the self-healing broadcast tree: the eager/lazy
// partition of the peers and the cache of seen messages. Peers are held by
// address only and resolved through the Transport; the node runtime
// serializes all access behind its lock and performs the actual sends
// outside of it.
type Tree struct {
	localAddr string
	fanout    int

	eager map[string]bool
	lazy  map[string]bool

	seen map[string]*seenMessage
	seq  uint64

	clock  common.Clock
	logger *logrus.Entry
}

type seenMessage struct {
	payload  []byte
	storedAt time.Time
}

// Delivery tells the node what to do after handing a push to the tree. The
// tree never touches the network itself.
type Delivery struct {
	// Deliver is true when the payload was unseen and should be handed to
	// the application exactly once.
	Deliver bool

	// Eager and Lazy are the peers to forward the full payload,
	// respectively the id-only notice, to.
	Eager []string
	Lazy  []string

	// PrunedSender is true when the push was redundant and the sender was
	// demoted from eager to lazy.
	PrunedSender bool
}

// NewTree ...
func NewTree(localAddr string, fanout int, clock common.Clock, logger *logrus.Entry) *Tree {
	return &Tree{
		localAddr: localAddr,
		fanout:    fanout,
		eager:     make(map[string]bool),
		lazy:      make(map[string]bool),
		seen:      make(map[string]*seenMessage),
		clock:     clock,
		logger:    logger.WithField("component", "broadcast"),
	}
}

// AddPeer registers a peer, eager up to the fan-out bound, lazy beyond it.
func (t *Tree) AddPeer(addr string) {
	if addr == t.localAddr || t.eager[addr] || t.lazy[addr] {
		return
	}

	if len(t.eager) < t.fanout {
		t.eager[addr] = true
	} else {
		t.lazy[addr] = true
	}

	t.logger.WithFields(logrus.Fields{
		"peer":  addr,
		"eager": t.eager[addr],
	}).Debug("AddPeer")
}

// RemovePeer forgets a dead or purged peer.
func (t *Tree) RemovePeer(addr string) {
	delete(t.eager, addr)
	delete(t.lazy, addr)
}

// HasPeer reports whether the peer is in either set.
func (t *Tree) HasPeer(addr string) bool {
	return t.eager[addr] || t.lazy[addr]
}

// EagerPeers returns the eager set minus exclude, in deterministic order.
func (t *Tree) EagerPeers(exclude string) []string {
	return sortedKeys(t.eager, exclude)
}

// LazyPeers returns the lazy set minus exclude, in deterministic order.
func (t *Tree) LazyPeers(exclude string) []string {
	return sortedKeys(t.lazy, exclude)
}

func sortedKeys(set map[string]bool, exclude string) []string {
	keys := make([]string, 0, len(set))
	for addr := range set {
		if addr != exclude {
			keys = append(keys, addr)
		}
	}
	sort.Strings(keys)
	return keys
}

// Broadcast stores a locally-originated payload and returns its message id.
// The node pushes the full payload to the returned eager peers and the id to
// the lazy peers.
func (t *Tree) Broadcast(payload []byte) (msgID string, d Delivery) {
	t.seq++
	msgID = messageID(t.localAddr, t.seq, payload)

	t.store(msgID, payload)

	return msgID, Delivery{
		Eager: t.EagerPeers(""),
		Lazy:  t.LazyPeers(""),
	}
}

// OnEagerPush handles a full payload received from a peer. An unseen id is
// stored and forwarded; a seen id means the sender's path carries no new
// information, so the sender is pruned to lazy.
func (t *Tree) OnEagerPush(from, msgID string, payload []byte) Delivery {
	if _, ok := t.seen[msgID]; ok {
		return Delivery{PrunedSender: t.moveToLazy(from)}
	}

	t.store(msgID, payload)

	// The sender just proved itself a useful parent.
	t.moveToEager(from)

	return Delivery{
		Deliver: true,
		Eager:   t.EagerPeers(from),
		Lazy:    t.LazyPeers(from),
	}
}

// OnLazyPush handles an id-only notice. An unseen id grafts the sender back
// into the eager set, healing the tree, and tells the node to pull the full
// payload from it.
func (t *Tree) OnLazyPush(from, msgID string) (graft bool) {
	if _, ok := t.seen[msgID]; ok {
		return false
	}

	t.moveToEager(from)

	t.logger.WithFields(logrus.Fields{
		"from":   from,
		"msg_id": msgID,
	}).Debug("Graft")

	return true
}

// Payload looks up a cached payload for a pull request.
func (t *Tree) Payload(msgID string) ([]byte, bool) {
	m, ok := t.seen[msgID]
	if !ok {
		return nil, false
	}
	return m.payload, true
}

// Seen reports whether the id is in the cache.
func (t *Tree) Seen(msgID string) bool {
	_, ok := t.seen[msgID]
	return ok
}

// Sweep expires cached messages older than maxAge and returns how many were
// dropped.
func (t *Tree) Sweep(maxAge time.Duration) int {
	now := t.clock.Now()

	dropped := 0
	for id, m := range t.seen {
		if now.Sub(m.storedAt) >= maxAge {
			delete(t.seen, id)
			dropped++
		}
	}

	return dropped
}

func (t *Tree) store(msgID string, payload []byte) {
	t.seen[msgID] = &seenMessage{
		payload:  payload,
		storedAt: t.clock.Now(),
	}
}

// moveToLazy demotes a peer from eager to lazy and reports whether anything
// moved.
func (t *Tree) moveToLazy(addr string) bool {
	if addr == t.localAddr || !t.eager[addr] {
		return false
	}

	delete(t.eager, addr)
	t.lazy[addr] = true

	t.logger.WithField("peer", addr).Debug("Prune")

	return true
}

// moveToEager promotes a peer from lazy to eager, registering it on the fly
// if it was unknown.
func (t *Tree) moveToEager(addr string) {
	if addr == t.localAddr {
		return
	}

	delete(t.lazy, addr)
	t.eager[addr] = true
}

func messageID(origin string, seq uint64, payload []byte) string {
	buf := make([]byte, 0, len(origin)+8+len(payload))
	buf = append(buf, origin...)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	buf = append(buf, payload...)
	return common.EncodeToString(crypto.SHA256(buf))
}
