package membership

import (
	"sort"
	"time"

	"github.com/gossipnetworks/gossamer/src/common"
)

// Table is the authoritative per-node view of all known members. It is pure
// data plus the merge rule; it does no I/O and is not safe for concurrent use.
// The node runtime serializes all access behind a single lock.
type Table struct {
	localAddr string
	members   map[string]*Member
	clock     common.Clock
}

// NewTable creates a Table containing only the local member, Alive at
// incarnation 1.
func NewTable(localAddr string, clock common.Clock) *Table {
	t := &Table{
		localAddr: localAddr,
		members:   make(map[string]*Member),
		clock:     clock,
	}

	t.members[localAddr] = &Member{
		Addr:        localAddr,
		State:       Alive,
		Incarnation: 1,
		LastChange:  clock.Now(),
	}

	return t
}

// LocalAddr returns the address of the local member.
func (t *Table) LocalAddr() string {
	return t.localAddr
}

// Self returns a copy of the local member.
func (t *Table) Self() Member {
	return *t.members[t.localAddr]
}

// Merge applies the precedence rule and returns whether the stored state
// changed. A member is created on first contact whatever the claimed state.
// Incarnations are non-decreasing over the table's lifetime because an update
// is only accepted when it supersedes the stored pair.
func (t *Table) Merge(u Update) bool {
	m, ok := t.members[u.Addr]
	if !ok {
		t.members[u.Addr] = &Member{
			Addr:        u.Addr,
			State:       u.State,
			Incarnation: u.Incarnation,
			LastChange:  t.clock.Now(),
		}
		return true
	}

	if !u.Supersedes(m.State, m.Incarnation) {
		return false
	}

	m.State = u.State
	m.Incarnation = u.Incarnation
	m.LastChange = t.clock.Now()

	return true
}

// Get returns a copy of the member stored under addr.
func (t *Table) Get(addr string) (Member, bool) {
	m, ok := t.members[addr]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// Snapshot returns copies of all members in deterministic order (by address)
// for reproducible hashing by the reconciler.
func (t *Table) Snapshot() []Member {
	members := make([]Member, 0, len(t.members))
	for _, m := range t.members {
		members = append(members, *m)
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].Addr < members[j].Addr
	})

	return members
}

// Len returns the number of members, tombstones included.
func (t *Table) Len() int {
	return len(t.members)
}

// Refute is called when somebody claims the local member Suspect or Dead.
// Only the local node may increment its own incarnation; the new incarnation
// is chosen to supersede the claim being refuted. Returns the new Alive
// incarnation.
func (t *Table) Refute(claimed uint64) uint64 {
	self := t.members[t.localAddr]

	next := self.Incarnation + 1
	if claimed >= next {
		next = claimed + 1
	}

	self.Incarnation = next
	self.State = Alive
	self.LastChange = t.clock.Now()

	return next
}

// Expire purges Dead members whose tombstone period has elapsed, bounding
// table growth. Returns the purged addresses. The tombstone absorbs delayed
// duplicate Dead updates, so it must outlast the gossip retransmit window.
func (t *Table) Expire(tombstone time.Duration) []string {
	now := t.clock.Now()

	var purged []string
	for addr, m := range t.members {
		if m.State != Dead || addr == t.localAddr {
			continue
		}
		if now.Sub(m.LastChange) >= tombstone {
			delete(t.members, addr)
			purged = append(purged, addr)
		}
	}

	sort.Strings(purged)

	return purged
}
