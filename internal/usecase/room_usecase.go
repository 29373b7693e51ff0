package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/qrave1/TypeRace/internal/application/config"
	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/application/metric"
	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/events"
	"github.com/qrave1/TypeRace/internal/domain/models"
	"github.com/qrave1/TypeRace/internal/infra/adapters/memory"
)

const (
	contentErrorMessage = "Failed to load game content"
	allFinishedMessage  = "All players have finished the race!"
)

// errAlreadyFinished прерывает Update без записи: итог игрока уже сохранен
var errAlreadyFinished = errors.New("player already finished")

// Caller - соединение, от которого пришла команда
type Caller struct {
	ConnID uuid.UUID
	User   models.User
}

// RoomUsecase - координатор комнат и гонки
type RoomUsecase interface {
	CreateRoom(ctx context.Context, caller Caller, roomName string) error
	JoinRoom(ctx context.Context, caller Caller, roomID string) error
	GetRoom(ctx context.Context, caller Caller, roomID string) error
	LeaveRoom(ctx context.Context, caller Caller, roomID string) error
	DestroyRoom(ctx context.Context, caller Caller, roomID string) error
	GetAllRooms(ctx context.Context, caller Caller) error

	Countdown(ctx context.Context, caller Caller, roomID string) error
	LiveProgress(ctx context.Context, caller Caller, ev events.LiveProgressEvent) error
	PlayerFinished(ctx context.Context, caller Caller, ev events.PlayerFinishedEvent) error
}

type roomUsecase struct {
	cfg config.GameConfig

	roomRepo domain.RoomRepository
	wsRepo   memory.WebsocketConnectionRepository

	content domain.ContentProvider
	stats   domain.StatsRecorder

	scheduler Scheduler
}

func NewRoomUsecase(
	cfg config.GameConfig,
	roomRepo domain.RoomRepository,
	wsRepo memory.WebsocketConnectionRepository,
	content domain.ContentProvider,
	stats domain.StatsRecorder,
	scheduler Scheduler,
) RoomUsecase {
	return &roomUsecase{
		cfg:       cfg,
		roomRepo:  roomRepo,
		wsRepo:    wsRepo,
		content:   content,
		stats:     stats,
		scheduler: scheduler,
	}
}

func (u *roomUsecase) CreateRoom(ctx context.Context, caller Caller, roomName string) error {
	roomID := uuid.NewString()
	room := models.NewRoom(roomName, caller.User)

	if err := u.roomRepo.Create(ctx, roomID, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	u.wsRepo.Join(caller.ConnID, roomID)

	entry := models.RoomEntry{Key: roomID, Data: room}

	u.send(caller.ConnID, events.RoomCreatedByMe, entry)
	u.broadcast(events.NewRoomAvailable, entry, caller.ConnID)

	slog.Info(
		"room created",
		slog.String(constant.RoomID, roomID),
		slog.Any(constant.UserID, caller.User.ID),
	)

	return nil
}

func (u *roomUsecase) JoinRoom(ctx context.Context, caller Caller, roomID string) error {
	room, err := u.roomRepo.Update(ctx, roomID, func(room *models.Room) error {
		if err := checkGuards(caller, room, roomNotFull(u.cfg.MaxPlayers), gameNotStarted); err != nil {
			return err
		}

		room.AddOrRefreshPlayer(caller.User)

		return nil
	})
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	u.wsRepo.Join(caller.ConnID, roomID)

	entry := models.RoomEntry{Key: roomID, Data: room}

	u.send(caller.ConnID, events.JoinedRoom, entry)
	u.sendToRoom(roomID, events.RoomUpdated, entry, caller.ConnID)

	return nil
}

func (u *roomUsecase) GetRoom(ctx context.Context, caller Caller, roomID string) error {
	room, err := u.roomRepo.Get(ctx, roomID)
	if err != nil {
		return fmt.Errorf("get room: %w", err)
	}

	if err = checkGuards(caller, room, isMember); err != nil {
		return err
	}

	// восстановление группы после переподключения
	u.wsRepo.Join(caller.ConnID, roomID)

	u.send(caller.ConnID, events.JoinedRoom, models.RoomEntry{Key: roomID, Data: room})

	return nil
}

func (u *roomUsecase) LeaveRoom(ctx context.Context, caller Caller, roomID string) error {
	var justFinishedAll bool

	room, err := u.roomRepo.Update(ctx, roomID, func(room *models.Room) error {
		before := room.AllFinished()

		room.RemovePlayer(caller.User.ID)

		// ушел единственный, кто еще печатал
		justFinishedAll = room.GameStarted && !before && room.AllFinished()

		return nil
	})
	if err != nil {
		return fmt.Errorf("leave room: %w", err)
	}

	u.wsRepo.Leave(caller.ConnID, roomID)

	u.send(caller.ConnID, events.LeftRoomByMe, nil)
	u.sendToRoom(roomID, events.RoomUpdated, models.RoomEntry{Key: roomID, Data: room})

	if justFinishedAll {
		u.finishRace(ctx, roomID, room)
	}

	return nil
}

func (u *roomUsecase) DestroyRoom(ctx context.Context, caller Caller, roomID string) error {
	u.scheduler.CancelRoom(roomID)

	if err := u.roomRepo.Delete(ctx, roomID); err != nil {
		return fmt.Errorf("destroy room: %w", err)
	}

	u.wsRepo.LeaveRoomForAll(roomID)
	u.broadcast(events.RoomDestroyed, events.RoomDestroyedEvent{RoomID: roomID})

	slog.Info(
		"room destroyed",
		slog.String(constant.RoomID, roomID),
		slog.Any(constant.UserID, caller.User.ID),
	)

	return nil
}

func (u *roomUsecase) GetAllRooms(ctx context.Context, caller Caller) error {
	rooms, err := u.roomRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	u.send(caller.ConnID, events.SetAllRooms, rooms)

	return nil
}

func (u *roomUsecase) Countdown(ctx context.Context, caller Caller, roomID string) error {
	room, err := u.roomRepo.Update(ctx, roomID, func(room *models.Room) error {
		if err := checkGuards(caller, room, isCreator, gameNotStarted); err != nil {
			return err
		}

		room.GameStarted = true

		return nil
	})
	if err != nil {
		return fmt.Errorf("countdown: %w", err)
	}

	entry := models.RoomEntry{Key: roomID, Data: room}

	u.broadcast(events.LockRoom, entry)
	u.sendToRoom(roomID, events.GameStarted, entry)

	metric.IncrementRacesStarted()

	u.scheduler.Schedule(roomID, TimerCountdown, u.cfg.CountdownDelay, func(ctx context.Context) {
		u.deliverParagraph(ctx, roomID)
	})

	return nil
}

// deliverParagraph срабатывает по окончании отсчета
func (u *roomUsecase) deliverParagraph(ctx context.Context, roomID string) {
	if _, err := u.roomRepo.Get(ctx, roomID); err != nil {
		slog.Warn(
			"skip paragraph delivery",
			slog.String(constant.RoomID, roomID),
			slog.Any(constant.Error, err),
		)
		return
	}

	paragraph, err := u.content.GetRandomParagraph(ctx)
	if err != nil {
		slog.Error(
			"get random paragraph",
			slog.String(constant.RoomID, roomID),
			slog.Any(constant.Error, err),
		)
		metric.RecordParagraphDelivery(false)

		u.sendToRoom(roomID, events.GameError, events.ErrorEvent{Message: contentErrorMessage})
		return
	}

	metric.RecordParagraphDelivery(true)

	u.sendToRoom(roomID, events.ParagraphReady, events.ParagraphReadyEvent{
		RoomID:      roomID,
		Paragraph:   paragraph.Content,
		ParagraphID: paragraph.ID,
	})
}

func (u *roomUsecase) LiveProgress(ctx context.Context, caller Caller, ev events.LiveProgressEvent) error {
	room, err := u.roomRepo.Update(ctx, ev.RoomID, func(room *models.Room) error {
		if err := checkGuards(caller, room, isMember, progressInRange(ev.Progress)); err != nil {
			return err
		}

		player := &room.Players[room.PlayerIndex(caller.User.ID)]
		if player.Finished() {
			// итог уже записан player-finished
			return nil
		}

		if player.Stats == nil {
			player.Stats = &models.PlayerStats{}
		}

		player.Stats.Progress = ev.Progress
		if ev.WPM != nil {
			player.Stats.WPM = *ev.WPM
		}
		if ev.Accuracy != nil {
			player.Stats.Accuracy = *ev.Accuracy
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("live progress: %w", err)
	}

	u.sendToRoom(ev.RoomID, events.RoomUpdated, models.RoomEntry{Key: ev.RoomID, Data: room})

	return nil
}

func (u *roomUsecase) PlayerFinished(ctx context.Context, caller Caller, ev events.PlayerFinishedEvent) error {
	roomID := ev.RoomID
	if roomID == "" {
		rooms := u.wsRepo.Rooms(caller.ConnID)
		if len(rooms) != 1 {
			return fmt.Errorf("resolve room of finished player: %w", domain.ErrRoomNotFound)
		}

		roomID = rooms[0]
	}

	var justFinishedAll bool

	room, err := u.roomRepo.Update(ctx, roomID, func(room *models.Room) error {
		if err := checkGuards(caller, room, isMember, gameStarted); err != nil {
			return err
		}

		if room.Players[room.PlayerIndex(caller.User.ID)].Finished() {
			return errAlreadyFinished
		}

		before := room.AllFinished()

		stats := ev.Stats
		stats.Progress = 100
		stats.Finished = true

		room.Players[room.PlayerIndex(caller.User.ID)].Stats = &stats

		justFinishedAll = !before && room.AllFinished()

		return nil
	})
	if errors.Is(err, errAlreadyFinished) {
		slog.Debug(
			"repeated finish report ignored",
			slog.String(constant.RoomID, roomID),
			slog.String(constant.UserID, caller.User.ID.String()),
		)

		return nil
	}
	if err != nil {
		return fmt.Errorf("player finished: %w", err)
	}

	player := room.Players[room.PlayerIndex(caller.User.ID)]
	entry := models.RoomEntry{Key: roomID, Data: room}

	u.sendToRoom(roomID, events.PlayerCompletedRun, events.PlayerCompletedRunEvent{
		RoomID:       roomID,
		UserID:       player.UserID,
		UserName:     player.UserName,
		Stats:        *player.Stats,
		WaitingCount: len(room.Players) - room.FinishedCount(),
	})
	u.sendToRoom(roomID, events.RoomUpdated, entry)

	if justFinishedAll {
		u.finishRace(ctx, roomID, room)
	}

	return nil
}

// finishRace выполняется один раз, на переходе к "все закончили"
func (u *roomUsecase) finishRace(ctx context.Context, roomID string, room *models.Room) {
	u.sendToRoom(roomID, events.AllPlayersFinished, events.AllPlayersFinishedEvent{
		Message: allFinishedMessage,
		RoomID:  roomID,
		Players: room.Players,
	})

	if u.stats != nil {
		if err := u.stats.RecordRace(ctx, raceResults(room)); err != nil {
			slog.Error(
				"record race stats",
				slog.String(constant.RoomID, roomID),
				slog.Any(constant.Error, err),
			)
		}
	}

	u.scheduler.Schedule(roomID, TimerRedirect, u.cfg.RedirectDelay, func(ctx context.Context) {
		current, err := u.roomRepo.Get(ctx, roomID)
		if err != nil {
			if !errors.Is(err, domain.ErrRoomNotFound) {
				slog.Error("get room for redirect", slog.String(constant.RoomID, roomID), slog.Any(constant.Error, err))
			}
			return
		}

		u.sendToRoom(roomID, events.RedirectToLeaderboard, events.RedirectToLeaderboardEvent{
			RoomID:       roomID,
			FinalResults: rankPlayers(current.Players),
		})
	})
}

// raceResults - победитель игрок с лучшим WPM, при равенстве раньше вошедший
func raceResults(room *models.Room) []models.RaceResult {
	results := make([]models.RaceResult, 0, len(room.Players))
	winner := -1
	best := -1

	for i, p := range room.Players {
		wpm := 0
		if p.Stats != nil {
			wpm = p.Stats.WPM
		}

		if wpm > best {
			best = wpm
			winner = i
		}

		results = append(results, models.RaceResult{UserID: p.UserID, WPM: wpm})
	}

	if winner >= 0 {
		results[winner].Won = true
	}

	return results
}

func rankPlayers(players []models.Player) []models.Player {
	ranked := slices.Clone(players)

	slices.SortStableFunc(ranked, func(a, b models.Player) int {
		return cmp.Compare(playerWPM(b), playerWPM(a))
	})

	return ranked
}

func playerWPM(p models.Player) int {
	if p.Stats == nil {
		return 0
	}

	return p.Stats.WPM
}

func (u *roomUsecase) send(connID uuid.UUID, eventType string, payload any) {
	if msg, ok := u.message(eventType, payload); ok {
		u.wsRepo.Write(connID, msg)
	}
}

func (u *roomUsecase) sendToRoom(roomID, eventType string, payload any, exclude ...uuid.UUID) {
	if msg, ok := u.message(eventType, payload); ok {
		u.wsRepo.WriteToRoom(roomID, msg, exclude...)
	}
}

func (u *roomUsecase) broadcast(eventType string, payload any, exclude ...uuid.UUID) {
	if msg, ok := u.message(eventType, payload); ok {
		u.wsRepo.WriteToAll(msg, exclude...)
	}
}

func (u *roomUsecase) message(eventType string, payload any) (events.Message, bool) {
	msg, err := events.NewMessage(eventType, payload)
	if err != nil {
		slog.Error("build event", slog.String(constant.Event, eventType), slog.Any(constant.Error, err))
		return events.Message{}, false
	}

	return msg, true
}
