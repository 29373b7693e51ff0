package appctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/qrave1/TypeRace/internal/domain/models"
)

type ctxKey string

const userKey ctxKey = "user"

// WithUser добавляет пользователя из токена в контекст
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// User извлекает пользователя из контекста
func User(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey).(models.User)
	return user, ok
}

// UserID извлекает userID из контекста
func UserID(ctx context.Context) (uuid.UUID, bool) {
	user, ok := User(ctx)
	return user.ID, ok
}
