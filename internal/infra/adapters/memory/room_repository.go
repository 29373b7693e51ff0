package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

type storedRoom struct {
	room     *models.Room
	revision uint64
}

// roomRepository - хранилище комнат одного процесса
type roomRepository struct {
	rooms    map[string]storedRoom
	revision uint64

	mu sync.RWMutex
}

func NewRoomRepository() domain.RoomRepository {
	return &roomRepository{
		rooms: make(map[string]storedRoom),
	}
}

func (r *roomRepository) Get(_ context.Context, key string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.rooms[key]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	return stored.room.Clone(), nil
}

func (r *roomRepository) Create(_ context.Context, key string, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[key]; ok {
		return fmt.Errorf("create room %s: key exists", key)
	}

	r.put(key, room)

	return nil
}

func (r *roomRepository) Set(_ context.Context, key string, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(key, room)

	return nil
}

func (r *roomRepository) Update(_ context.Context, key string, mutate domain.RoomMutator) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rooms[key]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	room := stored.room.Clone()

	if err := mutate(room); err != nil {
		return nil, err
	}

	r.put(key, room)

	return room.Clone(), nil
}

func (r *roomRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, key)

	return nil
}

func (r *roomRepository) List(_ context.Context) ([]models.RoomEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]models.RoomEntry, 0, len(r.rooms))

	for key, stored := range r.rooms {
		entries = append(entries, models.RoomEntry{Key: key, Data: stored.room.Clone()})
	}

	// по последней записи, как отдает ListKeys в KV
	sort.Slice(entries, func(i, j int) bool {
		return r.rooms[entries[i].Key].revision < r.rooms[entries[j].Key].revision
	})

	return entries, nil
}

func (r *roomRepository) Close() error {
	return nil
}

func (r *roomRepository) put(key string, room *models.Room) {
	r.revision++
	r.rooms[key] = storedRoom{room: room.Clone(), revision: r.revision}
}
