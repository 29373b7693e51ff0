package dto

import "github.com/google/uuid"

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginResponse - токен дублируется в теле для клиентов без cookie (терминальный клиент)
type LoginResponse struct {
	Token string `json:"token"`
}

type GetMeResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Wins        int       `json:"wins"`
	GamesPlayed int       `json:"gamesPlayed"`
	BestWPM     int       `json:"bestWpm"`
}
