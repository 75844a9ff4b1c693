package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used in tests. Transactions run under
// a single lock so they are trivially serializable.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory document store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string][]byte),
	}
}

func (s *MemoryStore) get(collection, id string, dest any) error {
	col, ok := s.data[collection]
	if !ok {
		return ErrDocNotFound
	}
	raw, ok := col[id]
	if !ok {
		return ErrDocNotFound
	}
	return json.Unmarshal(raw, dest)
}

func (s *MemoryStore) set(collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	col, ok := s.data[collection]
	if !ok {
		col = make(map[string][]byte)
		s.data[collection] = col
	}
	col[id] = raw
	return nil
}

// Get reads a document into dest
func (s *MemoryStore) Get(_ context.Context, collection, id string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(collection, id, dest)
}

// Set writes a full document
func (s *MemoryStore) Set(_ context.Context, collection, id string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(collection, id, doc)
}

// Merge applies a partial document on top of an existing one
func (s *MemoryStore) Merge(_ context.Context, collection, id string, partial any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current map[string]any
	if err := s.get(collection, id, &current); err != nil {
		return err
	}

	raw, err := json.Marshal(partial)
	if err != nil {
		return err
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return err
	}
	for k, v := range patch {
		current[k] = v
	}
	return s.set(collection, id, current)
}

// Increment atomically adds delta to a numeric top-level field
func (s *MemoryStore) Increment(_ context.Context, collection, id, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current map[string]any
	if err := s.get(collection, id, &current); err != nil {
		return err
	}
	var n int64
	if v, ok := current[field]; ok {
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("field %q is not numeric", field)
		}
		n = int64(f)
	}
	current[field] = n + delta
	return s.set(collection, id, current)
}

// SetMulti performs a grouped batch of document writes
func (s *MemoryStore) SetMulti(_ context.Context, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if err := s.set(w.Collection, w.ID, w.Doc); err != nil {
			return err
		}
	}
	return nil
}

// List iterates every document of a collection in id order
func (s *MemoryStore) List(_ context.Context, collection string, fn func(id string, raw []byte) error) error {
	s.mu.Lock()
	col := s.data[collection]
	ids := make([]string, 0, len(col))
	for id := range col {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([][]byte, len(ids))
	for i, id := range ids {
		docs[i] = col[id]
	}
	s.mu.Unlock()

	for i, id := range ids {
		if err := fn(id, docs[i]); err != nil {
			return err
		}
	}
	return nil
}

// RunTransaction runs fn under the store lock, staging writes until fn
// returns without error
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, w := range tx.staged {
		col, ok := s.data[w.collection]
		if !ok {
			col = make(map[string][]byte)
			s.data[w.collection] = col
		}
		col[w.id] = w.raw
	}
	return nil
}

type stagedWrite struct {
	collection string
	id         string
	raw        []byte
}

// memoryTx stages writes against the locked store
type memoryTx struct {
	store  *MemoryStore
	staged []stagedWrite
}

func (t *memoryTx) Get(_ context.Context, collection, id string, dest any) error {
	// Reads observe this transaction's own staged writes
	for i := len(t.staged) - 1; i >= 0; i-- {
		w := t.staged[i]
		if w.collection == collection && w.id == id {
			return json.Unmarshal(w.raw, dest)
		}
	}
	return t.store.get(collection, id, dest)
}

func (t *memoryTx) Set(_ context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	t.staged = append(t.staged, stagedWrite{collection: collection, id: id, raw: raw})
	return nil
}
