package usecase

import (
	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

// guard проверяет команду против текущего состояния комнаты
type guard func(caller Caller, room *models.Room) error

func checkGuards(caller Caller, room *models.Room, guards ...guard) error {
	for _, g := range guards {
		if err := g(caller, room); err != nil {
			return err
		}
	}

	return nil
}

func roomNotFull(maxPlayers int) guard {
	return func(_ Caller, room *models.Room) error {
		if len(room.Players) >= maxPlayers {
			return domain.ErrRoomFull
		}

		return nil
	}
}

func gameNotStarted(_ Caller, room *models.Room) error {
	if room.GameStarted {
		return domain.ErrGameAlreadyStarted
	}

	return nil
}

func gameStarted(_ Caller, room *models.Room) error {
	if !room.GameStarted {
		return domain.ErrGameNotStarted
	}

	return nil
}

func isMember(caller Caller, room *models.Room) error {
	if !room.HasPlayer(caller.User.ID) {
		return domain.ErrNotAuthorized
	}

	return nil
}

func isCreator(caller Caller, room *models.Room) error {
	if !room.IsCreator(caller.User.ID) {
		return domain.ErrNotAuthorized
	}

	return nil
}

func progressInRange(progress float64) guard {
	return func(Caller, *models.Room) error {
		if progress < 0 || progress > 100 {
			return domain.ErrInvalidProgress
		}

		return nil
	}
}
