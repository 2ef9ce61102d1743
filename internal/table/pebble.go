package table

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

// Pebble is the durable backend. Entities are stored under
// partition \x00 row keys as JSON records carrying the version tag.
// A single mutex serializes writers so the read-compare-write of a
// conditional update is atomic within the process that owns the store.
type Pebble struct {
	mu sync.Mutex
	db *pebble.DB
}

type pebbleRecord struct {
	ETag string          `json:"etag"`
	Data json.RawMessage `json:"data"`
}

// NewPebble opens (or creates) a pebble-backed store in dir.
func NewPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Pebble{db: db}, nil
}

func pebbleKey(partition, row string) []byte {
	k := make([]byte, 0, len(partition)+1+len(row))
	k = append(k, partition...)
	k = append(k, 0)
	k = append(k, row...)
	return k
}

func (s *Pebble) load(partition, row string) (Entity, error) {
	v, closer, err := s.db.Get(pebbleKey(partition, row))
	if err == pebble.ErrNotFound {
		return Entity{}, ErrNotFound
	}
	if err != nil {
		return Entity{}, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	var rec pebbleRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return Entity{}, fmt.Errorf("pebble decode %s/%s: %w", partition, row, err)
	}
	return Entity{PartitionKey: partition, RowKey: row, ETag: rec.ETag, Data: rec.Data}, nil
}

func (s *Pebble) put(e Entity) error {
	v, err := json.Marshal(pebbleRecord{ETag: e.ETag, Data: e.Data})
	if err != nil {
		return fmt.Errorf("pebble encode %s/%s: %w", e.PartitionKey, e.RowKey, err)
	}
	if err := s.db.Set(pebbleKey(e.PartitionKey, e.RowKey), v, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (s *Pebble) Insert(_ context.Context, e Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.load(e.PartitionKey, e.RowKey); err == nil {
		return Entity{}, ErrEntityExists
	} else if err != ErrNotFound {
		return Entity{}, err
	}
	e.ETag = uuid.NewString()
	if err := s.put(e); err != nil {
		return Entity{}, err
	}
	return e, nil
}

func (s *Pebble) Get(_ context.Context, partition, row string) (Entity, error) {
	return s.load(partition, row)
}

func (s *Pebble) Update(_ context.Context, e Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.load(e.PartitionKey, e.RowKey)
	if err != nil {
		return Entity{}, err
	}
	if cur.ETag != e.ETag {
		return Entity{}, ErrPreconditionFailed
	}
	e.ETag = uuid.NewString()
	if err := s.put(e); err != nil {
		return Entity{}, err
	}
	return e, nil
}

func (s *Pebble) Delete(_ context.Context, partition, row string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete(pebbleKey(partition, row), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

func (s *Pebble) List(_ context.Context, partition string) ([]Entity, error) {
	lower := append([]byte(partition), 0)
	upper := append([]byte(partition), 1)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	var out []Entity
	for it.First(); it.Valid(); it.Next() {
		row := string(it.Key()[len(lower):])
		var rec pebbleRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("pebble decode %s/%s: %w", partition, row, err)
		}
		out = append(out, Entity{
			PartitionKey: partition,
			RowKey:       row,
			ETag:         rec.ETag,
			Data:         append(json.RawMessage(nil), rec.Data...),
		})
	}
	return out, nil
}

func (s *Pebble) Close() error { return s.db.Close() }
