package docstore

import (
	"context"
	"sort"
	"sync"
)

type memoryDoc struct {
	partition string
	data      []byte
}

// MemoryStore keeps documents in process. A single mutex serializes writes,
// which makes Update trivially atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryDoc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]memoryDoc)}
}

func (s *MemoryStore) collection(name string) map[string]memoryDoc {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]memoryDoc)
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc.data), nil
}

// List returns documents ordered by id.
func (s *MemoryStore) List(ctx context.Context, collection, partition string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id, doc := range docs {
		if partition == "" || doc.partition == partition {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = clone(docs[id].data)
	}
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	if _, exists := c[doc.ID]; exists {
		return ErrDuplicateKey
	}
	c[doc.ID] = memoryDoc{partition: doc.Partition, data: clone(doc.Data)}
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, collection string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[doc.ID] = memoryDoc{partition: doc.Partition, data: clone(doc.Data)}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	doc, ok := c[id]
	if !ok {
		return ErrNotFound
	}
	data, err := fn(clone(doc.data))
	if err != nil {
		return err
	}
	c[id] = memoryDoc{partition: doc.partition, data: data}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	if _, ok := c[id]; !ok {
		return ErrNotFound
	}
	delete(c, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
