package membership

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/dgraph-io/badger"
)

const memberPrefix = "member"

// BadgerStore persists members in a Badger database. Values are JSON encoded
// under "member:<addr>" keys; the store keeps no cache of its own since the
// Table is the in-memory authority.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore creates a store with a brand new database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithSyncWrites(false).WithLogger(nil)

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:   handle,
		path: path,
	}, nil
}

// LoadOrCreateBadgerStore loads a BadgerStore from an existing database, or
// creates a fresh one if the path does not exist yet.
func LoadOrCreateBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, err
		}
	}
	return NewBadgerStore(path)
}

func memberKey(addr string) []byte {
	return []byte(memberPrefix + ":" + addr)
}

// SaveMember implements the Store interface.
func (s *BadgerStore) SaveMember(m Member) error {
	val, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memberKey(m.Addr), val)
	})
}

// DeleteMember implements the Store interface.
func (s *BadgerStore) DeleteMember(addr string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(memberKey(addr))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Members implements the Store interface.
func (s *BadgerStore) Members() ([]Member, error) {
	var members []Member

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(memberPrefix + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var m Member
				dec := json.NewDecoder(bytes.NewReader(val))
				if err := dec.Decode(&m); err != nil {
					return err
				}
				members = append(members, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return members, nil
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
