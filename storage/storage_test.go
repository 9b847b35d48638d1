package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtrip/cache"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/trip"
)

// fakeEntry embeds the interface so only Value needs implementing.
type fakeEntry struct {
	jetstream.KeyValueEntry
	value []byte
}

func (e fakeEntry) Value() []byte { return e.value }

type fakeKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return fakeEntry{value: v}, nil
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return uint64(len(f.data)), nil
}

func (f *fakeKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func record(city string, at time.Time) *Record {
	return &Record{
		State: trip.State{
			ID:            uuid.New().String(),
			City:          city,
			Status:        trip.StatusCompleted,
			ItineraryText: "Day 1: " + city,
		},
		Steps:     []pipeline.StepResult{{Name: "plan", Status: pipeline.StepOK, Duration: time.Second}},
		CreatedAt: at,
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(time.Hour, 10),
		"kv":     newKVStore(newFakeKV()),
	}
}

func TestPutGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := record("Paris", time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
			require.NoError(t, s.Put(ctx, r))

			got, err := s.Get(ctx, r.State.ID)
			require.NoError(t, err)
			assert.Equal(t, r.State, got.State)
			assert.Equal(t, r.Steps, got.Steps)
			assert.True(t, r.CreatedAt.Equal(got.CreatedAt))

			_, err = s.Get(ctx, uuid.New().String())
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get(ctx, "not-a-run-id")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPutRejectsBadID(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := record("Paris", time.Now())
			r.State.ID = "bad.id"
			assert.Error(t, s.Put(context.Background(), r))
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, s.Put(ctx, record("Rome", base)))
			require.NoError(t, s.Put(ctx, record("Kyoto", base.Add(2*time.Hour))))
			require.NoError(t, s.Put(ctx, record("Lima", base.Add(time.Hour))))

			list, err := s.List(ctx)
			require.NoError(t, err)
			var cities []string
			for _, r := range list {
				cities = append(cities, r.State.City)
			}
			assert.Equal(t, []string{"Kyoto", "Lima", "Rome"}, cities)
		})
	}
}

func TestPutStampsCreatedAt(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour, 10)
	s.now = func() time.Time { return fixed }

	r := record("Paris", time.Time{})
	require.NoError(t, s.Put(context.Background(), r))
	assert.Equal(t, fixed, r.CreatedAt)
}

func TestMemoryStoreRetention(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewMemoryStore(time.Hour, 10, cache.WithClock(clock))

	r := record("Paris", now)
	require.NoError(t, s.Put(context.Background(), r))
	now = now.Add(2 * time.Hour)

	_, err := s.Get(context.Background(), r.State.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVStoreGetError(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("nats: timeout")
	s := newKVStore(kv)

	_, err := s.Get(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
