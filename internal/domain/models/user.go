package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Password  string    `json:"-" db:"password"`
	Wins      int       `json:"wins" db:"wins"`
	Games     int       `json:"gamesPlayed" db:"games_played"`
	BestWPM   int       `json:"bestWpm" db:"best_wpm"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func NewUser() *User {
	return &User{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// RaceResult итог игрока для сохранения статистики
type RaceResult struct {
	UserID uuid.UUID
	WPM    int
	Won    bool
}
