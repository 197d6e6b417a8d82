package membership

// Store persists last-known members so a restarting node can rejoin the
// cluster without a fresh seed list. It sits outside the node's mutation
// boundary; writes happen on the event path, never inside the table lock.
type Store interface {
	// SaveMember upserts the persisted copy of a member.
	SaveMember(Member) error

	// DeleteMember removes a purged tombstone.
	DeleteMember(addr string) error

	// Members returns every persisted member.
	Members() ([]Member, error)

	// Close releases the underlying resources.
	Close() error
}
