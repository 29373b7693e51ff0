package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

func TestRoomRepository_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewRoomRepository()

	creator := models.User{ID: uuid.New(), Name: "creator"}
	require.NoError(t, repo.Create(ctx, "room", models.NewRoom("race", creator)))

	const joiners = 20

	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := repo.Update(ctx, "room", func(room *models.Room) error {
				room.AddOrRefreshPlayer(models.User{ID: uuid.New(), Name: fmt.Sprintf("p%d", i)})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	room, err := repo.Get(ctx, "room")
	require.NoError(t, err)
	assert.Len(t, room.Players, joiners+1)
}

func TestRoomRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewRoomRepository()
	creator := models.User{ID: uuid.New(), Name: "alice"}

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("create twice", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, "a", models.NewRoom("a", creator)))
		require.Error(t, repo.Create(ctx, "a", models.NewRoom("a", creator)))
	})

	t.Run("returned rooms are copies", func(t *testing.T) {
		room, err := repo.Get(ctx, "a")
		require.NoError(t, err)

		room.Players[0].UserName = "mallory"

		again, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "alice", again.Players[0].UserName)
	})

	t.Run("set overwrites", func(t *testing.T) {
		room := models.NewRoom("renamed", creator)
		require.NoError(t, repo.Set(ctx, "a", room))

		got, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
	})

	t.Run("list and delete", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "b", models.NewRoom("b", creator)))

		entries, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "a", entries[0].Key)
		assert.Equal(t, "b", entries[1].Key)

		require.NoError(t, repo.Delete(ctx, "a"))
		require.NoError(t, repo.Delete(ctx, "a"))

		entries, err = repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("failed mutation keeps state", func(t *testing.T) {
		_, err := repo.Update(ctx, "b", func(room *models.Room) error {
			room.GameStarted = true
			return domain.ErrNotAuthorized
		})
		require.ErrorIs(t, err, domain.ErrNotAuthorized)

		room, err := repo.Get(ctx, "b")
		require.NoError(t, err)
		assert.False(t, room.GameStarted)
	})
}
