package membership

import (
	"sort"
	"sync"
)

// InmemStore implements the Store interface with a plain map. It is the
// default when persistence is disabled, and doubles as the test store.
type InmemStore struct {
	sync.Mutex
	members map[string]Member
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		members: make(map[string]Member),
	}
}

// SaveMember implements the Store interface.
func (s *InmemStore) SaveMember(m Member) error {
	s.Lock()
	defer s.Unlock()
	s.members[m.Addr] = m
	return nil
}

// DeleteMember implements the Store interface.
func (s *InmemStore) DeleteMember(addr string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.members, addr)
	return nil
}

// Members implements the Store interface.
func (s *InmemStore) Members() ([]Member, error) {
	s.Lock()
	defer s.Unlock()

	members := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, m)
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].Addr < members[j].Addr
	})

	return members, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
