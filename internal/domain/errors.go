package domain

import "errors"

// Ошибки команд комнат. Текст уходит клиенту как есть.
var (
	ErrRoomNotFound       = errors.New("room does not exist")
	ErrRoomFull           = errors.New("room is full, maximum players reached")
	ErrGameAlreadyStarted = errors.New("game is already started in this room")
	ErrGameNotStarted     = errors.New("game has not started in this room")
	ErrNotAuthorized      = errors.New("not authorized for this room")
	ErrInvalidProgress    = errors.New("progress must be between 0 and 100")
	ErrContentUnavailable = errors.New("failed to load game content")
)

// ErrUpdateConflict - ревизия комнаты менялась на каждой попытке CAS
var ErrUpdateConflict = errors.New("room update conflict, retries exhausted")

var commandErrors = []error{
	ErrRoomNotFound,
	ErrRoomFull,
	ErrGameAlreadyStarted,
	ErrGameNotStarted,
	ErrNotAuthorized,
	ErrInvalidProgress,
	ErrContentUnavailable,
}

// ClientMessage возвращает текст ошибки команды без обертки.
// false - ошибка внутренняя и клиенту не показывается.
func ClientMessage(err error) (string, bool) {
	for _, target := range commandErrors {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}

	return "", false
}
