package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/TypeRace/internal/domain/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)

	// RecordRace обновляет статистику всех участников одной транзакцией
	RecordRace(ctx context.Context, results []models.RaceResult) error
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) CreateUser(ctx context.Context, user *models.User) error {
	query := "INSERT INTO users (id, name, email, password) VALUES ($1, $2, $3, $4)"

	res, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Password)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if aff, err := res.RowsAffected(); aff == 0 || err != nil {
		return fmt.Errorf("create user no rows affected: %w", err)
	}

	return nil
}

const selectUser = "SELECT id, name, email, password, wins, games_played, best_wpm, created_at, updated_at FROM users"

func (r *userRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User

	err := r.db.GetContext(ctx, &user, selectUser+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepo) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User

	err := r.db.GetContext(ctx, &user, selectUser+" WHERE name = $1", name)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepo) RecordRace(ctx context.Context, results []models.RaceResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE users SET
		games_played = games_played + 1,
		wins = wins + $2,
		best_wpm = GREATEST(best_wpm, $3),
		updated_at = now()
	WHERE id = $1`

	for _, res := range results {
		win := 0
		if res.Won {
			win = 1
		}

		if _, err = tx.ExecContext(ctx, query, res.UserID, win, res.WPM); err != nil {
			return fmt.Errorf("update stats for %s: %w", res.UserID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit stats: %w", err)
	}

	return nil
}
