package node

import (
	"github.com/gossipnetworks/gossamer/src/membership"
)

// EventType enumerates the membership transitions surfaced to subscribers.
type EventType int

const (
	// EventJoined fires when a previously unknown member enters the table.
	EventJoined EventType = iota
	// EventAlive fires when a member reverts to Alive, typically through a
	// higher-incarnation refutation.
	EventAlive
	// EventSuspect fires when a member is marked Suspect.
	EventSuspect
	// EventDead fires when a member is marked Dead after failing its
	// suspicion period.
	EventDead
	// EventLeft fires when a member announced its own departure.
	EventLeft
)

// String ...
func (e EventType) String() string {
	switch e {
	case EventJoined:
		return "joined"
	case EventAlive:
		return "alive"
	case EventSuspect:
		return "suspect"
	case EventDead:
		return "dead"
	case EventLeft:
		return "left"
	default:
		return "unknown"
	}
}

// MemberEvent pairs a transition with a copy of the member as it stood right
// after the transition was applied.
type MemberEvent struct {
	Type   EventType
	Member membership.Member
}

// Message is a broadcast payload delivered to the application. Each id is
// delivered exactly once per node.
type Message struct {
	ID      string
	From    string
	Payload []byte
}
