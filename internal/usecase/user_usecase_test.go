package usecase

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/TypeRace/internal/domain/models"
)

type stubUserRepo struct {
	byName map[string]*models.User
}

func (r *stubUserRepo) CreateUser(_ context.Context, user *models.User) error {
	u := *user
	r.byName[user.Name] = &u
	return nil
}

func (r *stubUserRepo) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range r.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *stubUserRepo) GetUserByName(_ context.Context, name string) (*models.User, error) {
	u, ok := r.byName[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *u
	return &c, nil
}

func (r *stubUserRepo) RecordRace(context.Context, []models.RaceResult) error { return nil }

func TestUserUsecase(t *testing.T) {
	ctx := context.Background()
	uc := NewUserUsecase([]byte("secret"), &stubUserRepo{byName: map[string]*models.User{}})

	user, err := uc.CreateUser(ctx, " alice ", "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)
	assert.Empty(t, user.Password)

	t.Run("credentials", func(t *testing.T) {
		_, err := uc.ValidateCredentials(ctx, "alice", "wrong")
		require.Error(t, err)

		got, err := uc.ValidateCredentials(ctx, "alice", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("token round trip", func(t *testing.T) {
		token, err := uc.GenerateJWT(user)
		require.NoError(t, err)

		identity, err := uc.ParseJWT(token)
		require.NoError(t, err)
		assert.Equal(t, models.User{ID: user.ID, Name: "alice", Email: "alice@example.com"}, identity)
	})

	t.Run("foreign secret", func(t *testing.T) {
		other := NewUserUsecase([]byte("other"), &stubUserRepo{byName: map[string]*models.User{}})
		token, err := other.GenerateJWT(user)
		require.NoError(t, err)

		_, err = uc.ParseJWT(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := &userUsecase{
			jwtSecret: []byte("secret"),
			now:       func() time.Time { return time.Now().Add(-tokenTTL - time.Hour) },
		}

		token, err := expired.GenerateJWT(user)
		require.NoError(t, err)

		_, err = uc.ParseJWT(token)
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := uc.CreateUser(ctx, "  ", "", "pw")
		require.Error(t, err)
	})
}
