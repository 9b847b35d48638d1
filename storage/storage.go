// Package storage keeps finished trip runs so they can be fetched by ID.
// Runs live either in process memory or in a NATS KV bucket shared
// between processes.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semtrip/cache"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/trip"
)

// ErrNotFound is returned when no run is stored under an ID.
var ErrNotFound = errors.New("trip run not found")

// Defaults for stored runs.
const (
	DefaultBucket     = "SEMTRIP_TRIPS"
	DefaultRetention  = 24 * time.Hour
	DefaultMaxEntries = 1000
)

// Record is one finished run, successful or aborted.
type Record struct {
	State     trip.State            `json:"state"`
	Steps     []pipeline.StepResult `json:"steps"`
	CreatedAt time.Time             `json:"created_at"`
}

// Store saves and loads runs.
type Store interface {
	Put(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// List returns the stored runs, newest first.
	List(ctx context.Context) ([]*Record, error)
}

// validID reports whether id looks like a run ID. Anything else cannot be
// stored, so lookups short-circuit to ErrNotFound.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func sortNewestFirst(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// MemoryStore keeps runs in a bounded TTL cache.
type MemoryStore struct {
	runs *cache.TTL[*Record]
	now  func() time.Time
}

// NewMemoryStore creates a store keeping up to maxEntries runs for
// retention.
func NewMemoryStore(retention time.Duration, maxEntries int, opts ...cache.Option) *MemoryStore {
	opts = append([]cache.Option{cache.WithName("runs")}, opts...)
	return &MemoryStore{
		runs: cache.New[*Record](retention, maxEntries, opts...),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, r *Record) error {
	if !validID(r.State.ID) {
		return fmt.Errorf("invalid run ID %q", r.State.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.runs.Set(r.State.ID, r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	r, ok := s.runs.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Record, error) {
	records := s.runs.Values()
	sortNewestFirst(records)
	return records, nil
}

// keyValue is the subset of jetstream.KeyValue the KV store uses.
type keyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

// KVStore keeps runs as JSON in a NATS KV bucket. Expiry is delegated to
// the bucket TTL.
type KVStore struct {
	kv  keyValue
	now func() time.Time
}

// NewKVStore opens bucket, creating it with the given TTL if it doesn't
// exist.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string, retention time.Duration) (*KVStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "semtrip finished trip runs",
			History:     1,
			TTL:         retention,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}
	return newKVStore(kv), nil
}

func newKVStore(kv keyValue) *KVStore {
	return &KVStore{kv: kv, now: time.Now}
}

func (s *KVStore) Put(ctx context.Context, r *Record) error {
	if !validID(r.State.ID) {
		return fmt.Errorf("invalid run ID %q", r.State.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if _, err := s.kv.Put(ctx, r.State.ID, data); err != nil {
		return fmt.Errorf("store run %s: %w", r.State.ID, err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, id string) (*Record, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	var r Record
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return &r, nil
}

func (s *KVStore) List(ctx context.Context) ([]*Record, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run keys: %w", err)
	}

	records := make([]*Record, 0, len(keys))
	for _, key := range keys {
		r, err := s.Get(ctx, key)
		if err != nil {
			continue // expired or deleted since Keys
		}
		records = append(records, r)
	}
	sortNewestFirst(records)
	return records, nil
}
