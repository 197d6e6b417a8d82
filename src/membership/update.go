package membership

import (
	"encoding/binary"

	"github.com/gossipnetworks/gossamer/src/crypto"
)

// Update is the unit of gossip: a claim that a member was seen in a given
// state at a given incarnation. Updates are ephemeral; they are created on
// any accepted state change and consumed once their retransmit budget is
// exhausted.
type Update struct {
	Addr        string
	State       State
	Incarnation uint64
}

// Supersedes reports whether the update takes precedence over the stored
// (state, incarnation) pair. Precedence is (incarnation, severity)
// lexicographic, with Dead > Suspect > Alive when incarnations tie.
func (u Update) Supersedes(state State, incarnation uint64) bool {
	if u.Incarnation != incarnation {
		return u.Incarnation > incarnation
	}
	return u.State > state
}

// Digest returns a hash identifying the update's exact content. The
// anti-entropy protocol compares digests to transfer only entries that
// actually differ.
func (u Update) Digest() []byte {
	buf := make([]byte, 0, len(u.Addr)+10)
	buf = append(buf, u.Addr...)
	buf = append(buf, 0, byte(u.State))
	buf = binary.BigEndian.AppendUint64(buf, u.Incarnation)
	return crypto.SHA256(buf)
}
