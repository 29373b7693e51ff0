package natskv

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

type fakeEntry struct {
	jetstream.KeyValueEntry

	key      string
	value    []byte
	revision uint64
}

func (e fakeEntry) Key() string      { return e.key }
func (e fakeEntry) Value() []byte    { return e.value }
func (e fakeEntry) Revision() uint64 { return e.revision }

type fakeLister struct {
	keys chan string
}

func (l *fakeLister) Keys() <-chan string { return l.keys }
func (l *fakeLister) Stop() error         { return nil }

// fakeKV - бакет в памяти с ревизиями. beforeUpdate эмулирует конкурентного писателя.
type fakeKV struct {
	jetstream.KeyValue

	mu       sync.Mutex
	entries  map[string]fakeEntry
	revision uint64
	order    []string

	beforeUpdate func(kv *fakeKV, key string)
	updates      int
}

func newFakeKV() *fakeKV {
	return &fakeKV{entries: make(map[string]fakeEntry)}
}

func (kv *fakeKV) put(key string, value []byte) uint64 {
	kv.revision++

	if _, ok := kv.entries[key]; !ok {
		kv.order = append(kv.order, key)
	}

	kv.entries[key] = fakeEntry{key: key, value: value, revision: kv.revision}

	return kv.revision
}

func (kv *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	e, ok := kv.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}

	return e, nil
}

func (kv *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	return kv.put(key, value), nil
}

func (kv *fakeKV) Update(_ context.Context, key string, value []byte, last uint64) (uint64, error) {
	if kv.beforeUpdate != nil {
		kv.beforeUpdate(kv, key)
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.updates++

	if e, ok := kv.entries[key]; !ok || e.revision != last {
		return 0, &jetstream.APIError{
			Code:        400,
			ErrorCode:   jetstream.JSErrCodeStreamWrongLastSequence,
			Description: "wrong last sequence",
		}
	}

	return kv.put(key, value), nil
}

func (kv *fakeKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.entries, key)

	return nil
}

func (kv *fakeKV) ListKeys(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyLister, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	ch := make(chan string, len(kv.order))
	for _, key := range kv.order {
		if _, ok := kv.entries[key]; ok {
			ch <- key
		}
	}
	close(ch)

	return &fakeLister{keys: ch}, nil
}

func seedRoom(t *testing.T, repo *roomRepository, key string, room *models.Room) {
	t.Helper()

	require.NoError(t, repo.Set(context.Background(), key, room))
}

func TestRoomRepository_Update(t *testing.T) {
	ctx := context.Background()
	creator := models.User{ID: uuid.New(), Name: "alice"}

	t.Run("applies mutation", func(t *testing.T) {
		repo := newRoomRepository(nil, newFakeKV(), 3)
		seedRoom(t, repo, "r1", models.NewRoom("race", creator))

		room, err := repo.Update(ctx, "r1", func(room *models.Room) error {
			room.GameStarted = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, room.GameStarted)

		stored, err := repo.Get(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, stored.GameStarted)
	})

	t.Run("retries on revision conflict", func(t *testing.T) {
		kv := newFakeKV()
		repo := newRoomRepository(nil, kv, 3)
		seedRoom(t, repo, "r1", models.NewRoom("race", creator))

		bob := models.User{ID: uuid.New(), Name: "bob"}
		interfered := false

		// первый Update проигрывает гонку чужому join
		kv.beforeUpdate = func(kv *fakeKV, key string) {
			if interfered {
				return
			}
			interfered = true

			e, _ := kv.Get(ctx, key)
			var room models.Room
			require.NoError(t, json.Unmarshal(e.Value(), &room))
			room.AddOrRefreshPlayer(bob)
			data, _ := json.Marshal(room)

			kv.mu.Lock()
			kv.put(key, data)
			kv.mu.Unlock()
		}

		carol := models.User{ID: uuid.New(), Name: "carol"}

		room, err := repo.Update(ctx, "r1", func(room *models.Room) error {
			room.AddOrRefreshPlayer(carol)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, kv.updates)
		require.Len(t, room.Players, 3)
		assert.Equal(t, "bob", room.Players[1].UserName)
		assert.Equal(t, "carol", room.Players[2].UserName)
	})

	t.Run("gives up after retries", func(t *testing.T) {
		kv := newFakeKV()
		repo := newRoomRepository(nil, kv, 2)
		seedRoom(t, repo, "r1", models.NewRoom("race", creator))

		kv.beforeUpdate = func(kv *fakeKV, key string) {
			kv.mu.Lock()
			defer kv.mu.Unlock()

			kv.put(key, kv.entries[key].value)
		}

		_, err := repo.Update(ctx, "r1", func(*models.Room) error { return nil })
		require.ErrorIs(t, err, domain.ErrUpdateConflict)
		assert.Equal(t, 2, kv.updates)
	})

	t.Run("mutation error aborts write", func(t *testing.T) {
		kv := newFakeKV()
		repo := newRoomRepository(nil, kv, 3)
		seedRoom(t, repo, "r1", models.NewRoom("race", creator))

		_, err := repo.Update(ctx, "r1", func(*models.Room) error { return domain.ErrRoomFull })
		require.ErrorIs(t, err, domain.ErrRoomFull)
		assert.Zero(t, kv.updates)
	})

	t.Run("missing room", func(t *testing.T) {
		repo := newRoomRepository(nil, newFakeKV(), 3)

		_, err := repo.Update(ctx, "nope", func(*models.Room) error { return nil })
		require.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestRoomRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newRoomRepository(nil, newFakeKV(), 3)

	seedRoom(t, repo, "a", models.NewRoom("first", models.User{ID: uuid.New(), Name: "alice"}))
	seedRoom(t, repo, "b", models.NewRoom("second", models.User{ID: uuid.New(), Name: "bob"}))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "first", entries[0].Data.Name)

	require.NoError(t, repo.Delete(ctx, "a"))

	_, err = repo.Get(ctx, "a")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	entries, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Key)
}
