// Package docstore is the persistence collaborator for configs, versions and
// lineage records. Documents are JSON blobs keyed by id and grouped by a
// partition (the dataset id).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrDuplicateKey = errors.New("duplicate document key")
)

// Document is a stored record.
type Document struct {
	ID        string
	Partition string
	Data      []byte
}

// UpdateFunc receives the current document body and returns the new one.
// Returning an error aborts the update.
type UpdateFunc func(current []byte) ([]byte, error)

// Store 文档存储接口
type Store interface {
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, collection, id string) ([]byte, error)
	// List returns the documents of a partition; an empty partition lists
	// the whole collection.
	List(ctx context.Context, collection, partition string) ([][]byte, error)
	// Insert fails with ErrDuplicateKey when the id exists.
	Insert(ctx context.Context, collection string, doc Document) error
	// Save inserts or replaces.
	Save(ctx context.Context, collection string, doc Document) error
	// Update is an atomic read-modify-write of an existing document.
	Update(ctx context.Context, collection, id string, fn UpdateFunc) error
	// Delete returns ErrNotFound when id is absent.
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// Collection is a typed view over one collection of a Store.
type Collection[T any] struct {
	store Store
	name  string
	key   func(*T) (id, partition string)
}

// NewCollection binds a collection name and key extractor to a store.
func NewCollection[T any](store Store, name string, key func(*T) (id, partition string)) *Collection[T] {
	return &Collection[T]{store: store, name: name, key: key}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// FindOne loads the document with id.
func (c *Collection[T]) FindOne(ctx context.Context, id string) (*T, error) {
	data, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	return c.decode(data)
}

// Find loads every document of partition.
func (c *Collection[T]) Find(ctx context.Context, partition string) ([]*T, error) {
	raw, err := c.store.List(ctx, c.name, partition)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raw))
	for _, data := range raw {
		v, err := c.decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Insert stores v, failing with ErrDuplicateKey when its id exists.
func (c *Collection[T]) Insert(ctx context.Context, v *T) error {
	doc, err := c.encode(v)
	if err != nil {
		return err
	}
	return c.store.Insert(ctx, c.name, doc)
}

// Save stores v, replacing any previous document with the same id.
func (c *Collection[T]) Save(ctx context.Context, v *T) error {
	doc, err := c.encode(v)
	if err != nil {
		return err
	}
	return c.store.Save(ctx, c.name, doc)
}

// Update atomically applies fn to the stored document and returns the
// result.
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(*T) error) (*T, error) {
	var updated *T
	err := c.store.Update(ctx, c.name, id, func(current []byte) ([]byte, error) {
		v, err := c.decode(current)
		if err != nil {
			return nil, err
		}
		if err := fn(v); err != nil {
			return nil, err
		}
		updated = v
		return json.Marshal(v)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the document with id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}

func (c *Collection[T]) encode(v *T) (Document, error) {
	id, partition := c.key(v)
	if id == "" {
		return Document{}, fmt.Errorf("%s: document without id", c.name)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("%s: failed to marshal document %s: %w", c.name, id, err)
	}
	return Document{ID: id, Partition: partition, Data: data}, nil
}

func (c *Collection[T]) decode(data []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal document: %w", c.name, err)
	}
	return v, nil
}
