package models

import (
	"slices"

	"github.com/google/uuid"
)

// MaxPlayers - верхняя граница размера комнаты
const MaxPlayers = 5

// Room хранится во внешнем KV под ключом комнаты
type Room struct {
	Name        string   `json:"roomName"`
	Players     []Player `json:"players"`
	GameStarted bool     `json:"gameStarted"`
}

type Player struct {
	UserID    uuid.UUID    `json:"userId"`
	UserName  string       `json:"userName"`
	IsCreator bool         `json:"isCreator"`
	Stats     *PlayerStats `json:"stats,omitempty"`
}

type PlayerStats struct {
	WPM              int     `json:"wpm"`
	Accuracy         int     `json:"accuracy"`
	TotalMistakes    int     `json:"totalMistakes"`
	TimeTakenSeconds int     `json:"timeTakenSeconds"`
	Progress         float64 `json:"progress"`
	Finished         bool    `json:"finished"`
}

func (p Player) Finished() bool {
	return p.Stats != nil && p.Stats.Finished
}

// RoomEntry - комната вместе с ключом, так она уходит клиентам
type RoomEntry struct {
	Key  string `json:"key"`
	Data *Room  `json:"data"`
}

func NewRoom(name string, creator User) *Room {
	return &Room{
		Name: name,
		Players: []Player{
			{
				UserID:    creator.ID,
				UserName:  creator.Name,
				IsCreator: true,
			},
		},
	}
}

// PlayerIndex ищет игрока по userID, -1 если его нет
func (r *Room) PlayerIndex(userID uuid.UUID) int {
	return slices.IndexFunc(r.Players, func(p Player) bool {
		return p.UserID == userID
	})
}

func (r *Room) HasPlayer(userID uuid.UUID) bool {
	return r.PlayerIndex(userID) != -1
}

func (r *Room) IsCreator(userID uuid.UUID) bool {
	i := r.PlayerIndex(userID)

	return i != -1 && r.Players[i].IsCreator
}

// AddOrRefreshPlayer добавляет игрока или обновляет существующую запись,
// совпадающую по userID или userName. Флаг создателя сохраняется.
func (r *Room) AddOrRefreshPlayer(user User) {
	i := slices.IndexFunc(r.Players, func(p Player) bool {
		return p.UserID == user.ID || p.UserName == user.Name
	})

	if i == -1 {
		r.Players = append(r.Players, Player{UserID: user.ID, UserName: user.Name})
		return
	}

	r.Players[i].UserID = user.ID
	r.Players[i].UserName = user.Name
}

// RemovePlayer удаляет игрока, порядок остальных не меняется
func (r *Room) RemovePlayer(userID uuid.UUID) bool {
	before := len(r.Players)

	r.Players = slices.DeleteFunc(r.Players, func(p Player) bool {
		return p.UserID == userID
	})

	return len(r.Players) != before
}

func (r *Room) FinishedCount() int {
	n := 0

	for _, p := range r.Players {
		if p.Finished() {
			n++
		}
	}

	return n
}

// AllFinished - все игроки комнаты закончили гонку
func (r *Room) AllFinished() bool {
	return len(r.Players) > 0 && r.FinishedCount() == len(r.Players)
}

// Clone глубокая копия, чтобы мутации не протекали между попытками CAS
func (r *Room) Clone() *Room {
	c := *r
	c.Players = make([]Player, len(r.Players))

	for i, p := range r.Players {
		c.Players[i] = p

		if p.Stats != nil {
			s := *p.Stats
			c.Players[i].Stats = &s
		}
	}

	return &c
}
