package node

import (
	"time"

	"github.com/gossipnetworks/gossamer/src/broadcast"
	"github.com/gossipnetworks/gossamer/src/guard"
	"github.com/gossipnetworks/gossamer/src/membership"
	"github.com/sirupsen/logrus"
)

// Core is the single mutation boundary of a node: the membership table, the
// broadcast tree, the piggyback queue, and the quorum policy, mutated together
// under the node's coreLock. Core methods never perform I/O; they return the
// events and deliveries for the node to act on outside the lock.
type Core struct {
	localAddr string

	table  *membership.Table
	tree   *broadcast.Tree
	queue  *broadcast.Queue
	quorum guard.QuorumPolicy

	peerSelector PeerSelector

	// deadSurfaced remembers which Dead verdicts were already confirmed and
	// published, so a quorum reached on a later report still fires exactly one
	// event.
	deadSurfaced map[string]bool

	piggybackLimit int

	logger *logrus.Entry
}

// NewCore ...
func NewCore(localAddr string, conf *Config, logger *logrus.Entry) *Core {
	table := membership.NewTable(localAddr, conf.Clock)

	var quorum guard.QuorumPolicy = guard.AlwaysConfirm{}
	if conf.QuorumSize > 1 {
		quorum = guard.NewKQuorum(conf.QuorumSize)
	}

	return &Core{
		localAddr:      localAddr,
		table:          table,
		tree:           broadcast.NewTree(localAddr, conf.Fanout, conf.Clock, logger),
		queue:          broadcast.NewQueue(conf.RetransmitMult, table.Len),
		quorum:         quorum,
		peerSelector:   NewRoundRobinPeerSelector(localAddr),
		deadSurfaced:   make(map[string]bool),
		piggybackLimit: conf.PiggybackLimit,
		logger:         logger,
	}
}

// AddSeeds introduces the initial peer addresses as Alive members at
// incarnation 1. Stale seeds get corrected by gossip.
func (c *Core) AddSeeds(addrs []string) []MemberEvent {
	updates := make([]membership.Update, 0, len(addrs))
	for _, addr := range addrs {
		if addr == c.localAddr {
			continue
		}
		updates = append(updates, membership.Update{
			Addr:        addr,
			State:       membership.Alive,
			Incarnation: 1,
		})
	}

	return c.Apply(c.localAddr, updates)
}

// Apply feeds updates through the merge rule and returns the resulting
// events. from attributes Suspect/Dead reports to the quorum policy. Claims
// about the local member are never merged; superseding ones are refuted by
// incrementing the local incarnation and gossiping Alive back.
func (c *Core) Apply(from string, updates []membership.Update) []MemberEvent {
	var events []MemberEvent
	membersChanged := false

	for _, u := range updates {
		if u.Addr == c.localAddr {
			if e, ok := c.refute(u); ok {
				events = append(events, e)
			}
			continue
		}

		if u.State >= membership.Suspect {
			c.quorum.RecordReport(u.Addr, u.Incarnation, from)
		}

		prev, existed := c.table.Get(u.Addr)
		changed := c.table.Merge(u)

		m, _ := c.table.Get(u.Addr)

		if changed {
			membersChanged = true
			c.queue.Enqueue(u)

			switch u.State {
			case membership.Alive:
				c.tree.AddPeer(u.Addr)
				delete(c.deadSurfaced, u.Addr)
				if !existed {
					events = append(events, MemberEvent{EventJoined, m})
				} else {
					events = append(events, MemberEvent{EventAlive, m})
				}
			case membership.Suspect:
				if !existed {
					events = append(events, MemberEvent{EventJoined, m})
				}
				events = append(events, MemberEvent{EventSuspect, m})
			case membership.Dead:
				c.tree.RemovePeer(u.Addr)
			}
		}

		// A Dead verdict surfaces only once the quorum policy confirms it,
		// which may be on a later, otherwise redundant report.
		if u.State == membership.Dead &&
			m.State == membership.Dead && m.Incarnation == u.Incarnation &&
			!c.deadSurfaced[u.Addr] &&
			c.quorum.ConfirmDead(u.Addr, u.Incarnation) {

			c.deadSurfaced[u.Addr] = true

			// Dead merged straight over Alive at the same incarnation means
			// the member announced its own departure.
			typ := EventDead
			if changed && existed &&
				prev.State == membership.Alive && prev.Incarnation == u.Incarnation {
				typ = EventLeft
			}
			events = append(events, MemberEvent{typ, m})
		}
	}

	if membersChanged {
		c.refreshSelector()
	}

	return events
}

// refute handles a Suspect/Dead claim about the local member. Stale claims,
// already superseded by our current Alive incarnation, are ignored.
func (c *Core) refute(u membership.Update) (MemberEvent, bool) {
	self := c.table.Self()

	if u.State == membership.Alive || !u.Supersedes(self.State, self.Incarnation) {
		return MemberEvent{}, false
	}

	newInc := c.table.Refute(u.Incarnation)

	c.queue.Enqueue(membership.Update{
		Addr:        c.localAddr,
		State:       membership.Alive,
		Incarnation: newInc,
	})

	c.logger.WithFields(logrus.Fields{
		"claimed_state":       u.State.String(),
		"claimed_incarnation": u.Incarnation,
		"incarnation":         newInc,
	}).Debug("Refuting claim about self")

	return MemberEvent{EventAlive, c.table.Self()}, true
}

// Suspect marks addr Suspect at its current incarnation if it is Alive,
// returning the incarnation the suspicion is pinned to.
func (c *Core) Suspect(addr string) (incarnation uint64, events []MemberEvent, ok bool) {
	m, found := c.table.Get(addr)
	if !found || m.State != membership.Alive {
		return 0, nil, false
	}

	events = c.Apply(c.localAddr, []membership.Update{{
		Addr:        addr,
		State:       membership.Suspect,
		Incarnation: m.Incarnation,
	}})

	return m.Incarnation, events, true
}

// ConfirmDead promotes a still-Suspect member to Dead once its suspicion
// period lapsed. It is the idempotent check-then-act half of the suspicion
// timer: a refutation in the meantime bumps the incarnation and the promotion
// becomes a no-op.
func (c *Core) ConfirmDead(addr string, incarnation uint64) (events []MemberEvent, ok bool) {
	m, found := c.table.Get(addr)
	if !found || m.State != membership.Suspect || m.Incarnation != incarnation {
		return nil, false
	}

	events = c.Apply(c.localAddr, []membership.Update{{
		Addr:        addr,
		State:       membership.Dead,
		Incarnation: incarnation,
	}})

	return events, true
}

// Expire purges lapsed tombstones and the quorum bookkeeping that went with
// them, returning the purged addresses.
func (c *Core) Expire(tombstone time.Duration) []string {
	purged := c.table.Expire(tombstone)

	for _, addr := range purged {
		c.tree.RemovePeer(addr)
		c.quorum.Forget(addr)
		delete(c.deadSurfaced, addr)
	}

	if len(purged) > 0 {
		c.refreshSelector()
	}

	return purged
}

// Piggyback drains up to the configured number of queued updates to ride on
// an outgoing probe or ack.
func (c *Core) Piggyback() []membership.Update {
	return c.queue.Gossip(c.piggybackLimit)
}

// Self returns a copy of the local member.
func (c *Core) Self() membership.Member {
	return c.table.Self()
}

// Snapshot returns a sorted copy of the membership table.
func (c *Core) Snapshot() []membership.Member {
	return c.table.Snapshot()
}

// BuildMerkleTree hashes the current table for reconciliation.
func (c *Core) BuildMerkleTree() *membership.MerkleTree {
	return membership.BuildMerkleTree(c.table.Snapshot())
}

// refreshSelector rebuilds the probe ring from the non-Dead members.
func (c *Core) refreshSelector() {
	var addrs []string
	for _, m := range c.table.Snapshot() {
		if m.State != membership.Dead {
			addrs = append(addrs, m.Addr)
		}
	}
	c.peerSelector.UpdatePeers(addrs)
}
