// Package store holds the clearing records in memory, keyed by derived
// address, and stages per-command changes so a failed command leaves no
// trace.
package store

import (
	"bytes"
	"sort"
	"sync"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
)

// Record is a persisted clearing record.
type Record interface {
	// Kind names the record type for persistence and decoding.
	Kind() string
	// Clone returns a deep copy the caller may mutate freely.
	Clone() Record
}

// Change is one staged write.
type Change struct {
	Key     address.Address
	Record  Record // nil when Deleted
	Deleted bool
}

// Entry is a stored record with its key.
type Entry struct {
	Key    address.Address
	Record Record
}

// Store is the committed record set. The core is the only writer.
type Store struct {
	mu      sync.RWMutex
	records map[address.Address]Record
}

func New() *Store {
	return &Store{records: make(map[address.Address]Record)}
}

// Get returns a copy of the committed record at key.
func (s *Store) Get(key address.Address) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Len returns the number of committed records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Apply commits staged changes.
func (s *Store) Apply(changes []Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		if c.Deleted {
			delete(s.records, c.Key)
			continue
		}
		s.records[c.Key] = c.Record
	}
}

// Restore inserts a record without staging. Used by snapshot restore.
func (s *Store) Restore(key address.Address, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
}

// Entries returns copies of all records ordered by key.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.records))
	for k, r := range s.records {
		out = append(out, Entry{Key: k, Record: r.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Key[:], out[j].Key[:]) < 0
	})
	return out
}

// Tx stages the record changes of one command.
type Tx struct {
	store  *Store
	staged map[address.Address]*Change
}

// Begin opens a record transaction.
func (s *Store) Begin() *Tx {
	return &Tx{store: s, staged: make(map[address.Address]*Change)}
}

// Get returns the staged record if any, else a copy of the committed one.
func (tx *Tx) Get(key address.Address) (Record, bool) {
	if c, ok := tx.staged[key]; ok {
		if c.Deleted {
			return nil, false
		}
		return c.Record, true
	}
	return tx.store.Get(key)
}

// Exists reports whether key holds a record in this transaction's view.
func (tx *Tx) Exists(key address.Address) bool {
	_, ok := tx.Get(key)
	return ok
}

// Put writes rec at key, replacing any existing record.
func (tx *Tx) Put(key address.Address, rec Record) {
	tx.staged[key] = &Change{Key: key, Record: rec}
}

// Create writes rec at key and fails if a record already exists there.
func (tx *Tx) Create(key address.Address, rec Record) error {
	if tx.Exists(key) {
		return fault.New(fault.RecordExists, "%s at %s", rec.Kind(), key)
	}
	tx.Put(key, rec)
	return nil
}

// Delete removes the record at key.
func (tx *Tx) Delete(key address.Address) {
	tx.staged[key] = &Change{Key: key, Deleted: true}
}

// Changes returns the staged writes ordered by key.
func (tx *Tx) Changes() []Change {
	out := make([]Change, 0, len(tx.staged))
	for _, c := range tx.staged {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Key[:], out[j].Key[:]) < 0
	})
	return out
}

// Load returns the record at key as T, or RecordNotFound.
func Load[T Record](tx *Tx, key address.Address) (T, error) {
	var zero T
	rec, ok := tx.Get(key)
	if !ok {
		return zero, fault.New(fault.RecordNotFound, "no record at %s", key)
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, fault.New(fault.RecordNotFound, "record at %s is %s", key, rec.Kind())
	}
	return typed, nil
}

// Lookup returns the record at key as T and whether it exists.
func Lookup[T Record](tx *Tx, key address.Address) (T, bool) {
	rec, err := Load[T](tx, key)
	return rec, err == nil
}

// Read returns a committed record as T outside any transaction.
func Read[T Record](s *Store, key address.Address) (T, bool) {
	var zero T
	rec, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := rec.(T)
	return typed, ok
}
