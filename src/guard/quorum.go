package guard

// QuorumPolicy decides when a Dead verdict is authoritative for external
// consumers. The base protocol does not require corroboration, so the
// default accepts immediately; a quorum of k demands k independently-sourced
// Suspect or Dead reports for the same incarnation first.
type QuorumPolicy interface {
	// RecordReport registers a Suspect/Dead claim about addr at the given
	// incarnation, attributed to the node the claim was learned from.
	RecordReport(addr string, incarnation uint64, from string)

	// ConfirmDead reports whether a Dead verdict for (addr, incarnation) may
	// be surfaced to subscribers.
	ConfirmDead(addr string, incarnation uint64) bool

	// Forget clears accumulated reports about addr.
	Forget(addr string)
}

// AlwaysConfirm is the default policy: every Dead verdict is authoritative.
type AlwaysConfirm struct{}

// RecordReport implements the QuorumPolicy interface.
func (AlwaysConfirm) RecordReport(string, uint64, string) {}

// ConfirmDead implements the QuorumPolicy interface.
func (AlwaysConfirm) ConfirmDead(string, uint64) bool { return true }

// Forget implements the QuorumPolicy interface.
func (AlwaysConfirm) Forget(string) {}

type reportKey struct {
	addr        string
	incarnation uint64
}

// KQuorum requires corroboration from at least k distinct sources before a
// Dead verdict is surfaced. It is consulted from within the node's mutation
// boundary and needs no locking of its own.
type KQuorum struct {
	k       int
	reports map[reportKey]map[string]bool
}

// NewKQuorum returns a KQuorum with the given threshold. A threshold of one
// or less behaves like AlwaysConfirm once the first report lands.
func NewKQuorum(k int) *KQuorum {
	return &KQuorum{
		k:       k,
		reports: make(map[reportKey]map[string]bool),
	}
}

// RecordReport implements the QuorumPolicy interface.
func (q *KQuorum) RecordReport(addr string, incarnation uint64, from string) {
	key := reportKey{addr, incarnation}
	sources, ok := q.reports[key]
	if !ok {
		sources = make(map[string]bool)
		q.reports[key] = sources
	}
	sources[from] = true
}

// ConfirmDead implements the QuorumPolicy interface.
func (q *KQuorum) ConfirmDead(addr string, incarnation uint64) bool {
	confirmed := len(q.reports[reportKey{addr, incarnation}]) >= q.k
	if confirmed {
		DeadConfirmations.Inc()
	}
	return confirmed
}

// Forget implements the QuorumPolicy interface.
func (q *KQuorum) Forget(addr string) {
	for key := range q.reports {
		if key.addr == addr {
			delete(q.reports, key)
		}
	}
}
