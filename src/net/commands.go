package net

import (
	"github.com/gossipnetworks/gossamer/src/membership"
)

// The wire commands form a closed set; the node matches on them
// exhaustively and drops anything else as a protocol violation.

// PingRequest is the failure detector's direct probe. It carries the
// sender's incarnation and up to the configured number of piggybacked
// membership updates.
type PingRequest struct {
	From        string
	Incarnation uint64
	Piggyback   []membership.Update
}

// PingResponse is the Ack. It piggybacks updates in the reverse direction.
type PingResponse struct {
	From        string
	Incarnation uint64
	Piggyback   []membership.Update
}

// IndirectPingRequest asks the receiver to probe Target on behalf of From
// and relay the ack.
type IndirectPingRequest struct {
	From   string
	Target string
}

// IndirectPingResponse reports whether the relayed probe was acked.
type IndirectPingResponse struct {
	From      string
	Ack       bool
	Piggyback []membership.Update
}

// EagerPushRequest carries a full broadcast payload down an eager link.
type EagerPushRequest struct {
	From    string
	MsgID   string
	Payload []byte
}

// EagerPushResponse ...
type EagerPushResponse struct {
	From string
}

// LazyPushRequest announces message ids down lazy links, without payloads.
type LazyPushRequest struct {
	From   string
	MsgIDs []string
}

// LazyPushResponse ...
type LazyPushResponse struct {
	From string
}

// PullRequest asks for the full payload of a message known only by id. It is
// sent to a peer being grafted back into the eager set.
type PullRequest struct {
	From  string
	MsgID string
}

// PullResponse ...
type PullResponse struct {
	From    string
	Found   bool
	Payload []byte
}

// ReconcileHashRequest asks for merkle hashes at the given level of the
// receiver's membership tree. The reconciler walks the tree level by level,
// descending only into mismatched subtrees.
type ReconcileHashRequest struct {
	From    string
	Level   int
	Indices []int
}

// ReconcileHashResponse ...
type ReconcileHashResponse struct {
	From   string
	Hashes [][]byte
}

// ReconcileDataRequest exchanges the entries of divergent buckets. Digests
// maps addresses to entry digests on the sender's side, letting the receiver
// return only entries that actually differ; Entries pushes updates the
// receiver was found to be missing.
type ReconcileDataRequest struct {
	From    string
	Buckets []int
	Digests map[string][]byte
	Entries []membership.Update
}

// ReconcileDataResponse returns the receiver's differing entries and lists
// the addresses it wants pushed back (present on the sender, absent here).
type ReconcileDataResponse struct {
	From    string
	Entries []membership.Update
	Want    []string
}
