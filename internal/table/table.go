// Package table implements the key-indexed record store backing the
// service. Entities live in fixed partitions (one per entity kind) under a
// unique row key, and every stored entity carries an opaque version tag
// regenerated on each write. Updates are conditional on that tag, which is
// the only concurrency discipline offered to callers.
package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no entity exists under (partition, row).
	ErrNotFound = errors.New("table: entity not found")
	// ErrEntityExists is returned by Insert on a duplicate key.
	ErrEntityExists = errors.New("table: entity already exists")
	// ErrPreconditionFailed is returned by Update when the stored version
	// tag no longer matches the one presented.
	ErrPreconditionFailed = errors.New("table: version tag mismatch")
)

// Entity is a stored record: attributes as raw JSON plus the version tag.
type Entity struct {
	PartitionKey string
	RowKey       string
	ETag         string
	Data         json.RawMessage
}

// Client is the record-store interface shared by all backends.
type Client interface {
	// Insert stores a new entity and returns it with its initial version
	// tag. Fails with ErrEntityExists on a duplicate (partition, row).
	Insert(ctx context.Context, e Entity) (Entity, error)
	// Get fetches one entity or ErrNotFound.
	Get(ctx context.Context, partition, row string) (Entity, error)
	// Update replaces the entity's attributes conditioned on e.ETag.
	// Fails with ErrPreconditionFailed if the record changed since the
	// tag was read, ErrNotFound if it was deleted.
	Update(ctx context.Context, e Entity) (Entity, error)
	// Delete removes an entity. Deleting an absent entity is not an error.
	Delete(ctx context.Context, partition, row string) error
	// List returns all entities of a partition ordered by row key.
	List(ctx context.Context, partition string) ([]Entity, error)

	Close() error
}

// Marshal packs a value into an entity for the given key.
func Marshal(partition, row string, v any) (Entity, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Entity{}, fmt.Errorf("marshal %s/%s: %w", partition, row, err)
	}
	return Entity{PartitionKey: partition, RowKey: row, Data: data}, nil
}

// Into unpacks the entity attributes into v.
func (e Entity) Into(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", e.PartitionKey, e.RowKey, err)
	}
	return nil
}
