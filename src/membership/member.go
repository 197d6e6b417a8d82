package membership

import "time"

// State is the liveness of a member as seen by the local node. The numeric
// order doubles as the severity order used to break ties between updates
// carrying the same incarnation: Dead > Suspect > Alive.
type State uint8

const (
	// Alive is the initial state of every member.
	Alive State = iota
	// Suspect means the member failed a probe round and is on a suspicion
	// timer. It reverts to Alive only through a higher-incarnation refutation.
	Suspect
	// Dead is terminal, subject to tombstone expiry.
	Dead
)

// String ...
func (s State) String() string {
	switch s {
	case Alive:
		return "Alive"
	case Suspect:
		return "Suspect"
	case Dead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// Member is one row of the membership table. The address is an opaque
// identifier resolved through the Transport; members never hold references to
// one another. The table owns its Members and hands out copies only.
type Member struct {
	Addr        string
	State       State
	Incarnation uint64
	LastChange  time.Time
}

// Update returns the gossip claim corresponding to the member's current
// state.
func (m Member) Update() Update {
	return Update{
		Addr:        m.Addr,
		State:       m.State,
		Incarnation: m.Incarnation,
	}
}
