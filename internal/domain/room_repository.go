package domain

import (
	"context"

	"github.com/qrave1/TypeRace/internal/domain/models"
)

// RoomMutator меняет комнату на месте. Ошибка отменяет запись.
type RoomMutator func(room *models.Room) error

// RoomRepository - общее хранилище комнат, ключ комнаты непрозрачная строка
type RoomRepository interface {
	Get(ctx context.Context, key string) (*models.Room, error)
	// Create пишет комнату только если ключа еще нет
	Create(ctx context.Context, key string, room *models.Room) error
	// Set перезаписывает комнату, последняя запись побеждает
	Set(ctx context.Context, key string, room *models.Room) error
	// Update атомарно применяет mutate к текущему состоянию (CAS по ревизии)
	Update(ctx context.Context, key string, mutate RoomMutator) (*models.Room, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]models.RoomEntry, error)

	Close() error
}
