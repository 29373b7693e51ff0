package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/qrave1/TypeRace/internal/domain/models"
)

// Команды клиента
const (
	CreateRoom     = "create-room"
	JoinRoom       = "join-room"
	GetRoom        = "get-room"
	LeaveRoom      = "leave-room"
	DestroyRoom    = "destroy-room"
	GetAllRooms    = "get-all-rooms"
	Countdown      = "countdown"
	LiveProgress   = "live-progress"
	PlayerFinished = "player-finished"
	Ping           = "ping"
)

// События сервера
const (
	RoomCreatedByMe       = "room-created-by-me"
	NewRoomAvailable      = "new-room-available"
	JoinedRoom            = "joined-room"
	RoomUpdated           = "room-updated"
	LeftRoomByMe          = "left-room-by-me"
	RoomDestroyed         = "room-destroyed"
	SetAllRooms           = "set-all-rooms"
	LockRoom              = "lock-room"
	GameStarted           = "game-started"
	ParagraphReady        = "paragraph-ready"
	GameError             = "game-error"
	JoinRoomError         = "join-room-error"
	PlayerCompletedRun    = "player-completed-run"
	AllPlayersFinished    = "all-players-finished"
	RedirectToLeaderboard = "redirect-to-leaderboard"
	Pong                  = "pong"
)

// Message - общее событие
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage упаковывает payload в конверт. nil payload дает событие без data.
func NewMessage(eventType string, payload any) (Message, error) {
	msg := Message{Type: eventType}

	if payload == nil {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	msg.Data = data

	return msg, nil
}

type CreateRoomEvent struct {
	RoomName string `json:"roomName"`
}

// RoomIDEvent - команды, адресованные комнате
type RoomIDEvent struct {
	RoomID string `json:"roomId"`
}

// CountdownEvent принимает как голую строку, так и {roomId}
type CountdownEvent struct {
	RoomID string
}

func (e *CountdownEvent) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		e.RoomID = id
		return nil
	}

	var obj RoomIDEvent
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("countdown payload must be a room id or {roomId}: %w", err)
	}

	e.RoomID = obj.RoomID

	return nil
}

type LiveProgressEvent struct {
	RoomID   string  `json:"roomId"`
	Progress float64 `json:"progress"`
	WPM      *int    `json:"wpm,omitempty"`
	Accuracy *int    `json:"accuracy,omitempty"`
}

type PlayerFinishedEvent struct {
	RoomID string             `json:"roomId,omitempty"`
	Stats  models.PlayerStats `json:"stats"`
}

type RoomDestroyedEvent struct {
	RoomID string `json:"roomId"`
}

type ParagraphReadyEvent struct {
	RoomID      string `json:"roomId"`
	Paragraph   string `json:"paragraph"`
	ParagraphID int64  `json:"paragraphId"`
}

// ErrorEvent - game-error и join-room-error
type ErrorEvent struct {
	Message string `json:"message"`
}

type PlayerCompletedRunEvent struct {
	RoomID       string             `json:"roomId"`
	UserID       uuid.UUID          `json:"userId"`
	UserName     string             `json:"userName"`
	Stats        models.PlayerStats `json:"stats"`
	WaitingCount int                `json:"waitingCount"`
}

type AllPlayersFinishedEvent struct {
	Message string          `json:"message"`
	RoomID  string          `json:"roomId"`
	Players []models.Player `json:"players"`
}

type RedirectToLeaderboardEvent struct {
	RoomID       string          `json:"roomId"`
	FinalResults []models.Player `json:"finalResults"`
}
