// Package session связывает транспорт, движок гонки и терминал.
package session

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/client/race"
	"github.com/qrave1/TypeRace/internal/client/transport"
	"github.com/qrave1/TypeRace/internal/domain/events"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

// Emitter - неблокирующая отправка событий на сервер
type Emitter interface {
	Emit(event string, payload any) error
}

// Subscriber - подписка на события сервера
type Subscriber interface {
	On(event string, h transport.Handler)
}

type Options struct {
	UserID     uuid.UUID
	CreateName string
	JoinRoomID string
}

type Session struct {
	out     io.Writer
	emitter Emitter
	clock   clockwork.Clock
	opts    Options

	mu       sync.Mutex
	roomID   string
	inRoom   bool
	creator  bool
	started  bool
	engine   *race.Engine
	done     chan struct{}
	doneOnce sync.Once
}

func New(out io.Writer, emitter Emitter, clock clockwork.Clock, opts Options) *Session {
	return &Session{
		out:     out,
		emitter: emitter,
		clock:   clock,
		opts:    opts,
		roomID:  opts.JoinRoomID,
		done:    make(chan struct{}),
	}
}

// Done закрывается после redirect-to-leaderboard или удаления комнаты
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Bind(sub Subscriber) {
	sub.On(events.RoomCreatedByMe, s.onRoomEntry("Room created"))
	sub.On(events.JoinedRoom, s.onRoomEntry("Joined room"))
	sub.On(events.RoomUpdated, s.onRoomUpdated)
	sub.On(events.NewRoomAvailable, s.onNewRoom)
	sub.On(events.SetAllRooms, s.onAllRooms)
	sub.On(events.LeftRoomByMe, s.onLeft)
	sub.On(events.RoomDestroyed, s.onDestroyed)
	sub.On(events.LockRoom, func(json.RawMessage) {})
	sub.On(events.GameStarted, s.onGameStarted)
	sub.On(events.ParagraphReady, s.onParagraph)
	sub.On(events.GameError, s.onError("Game error"))
	sub.On(events.JoinRoomError, s.onError("Room error"))
	sub.On(events.PlayerCompletedRun, s.onPlayerCompleted)
	sub.On(events.AllPlayersFinished, s.onAllFinished)
	sub.On(events.RedirectToLeaderboard, s.onRedirect)
	sub.On(events.Pong, func(json.RawMessage) {})
}

// OnConnect восстанавливает состояние после (пере)подключения
func (s *Session) OnConnect() {
	s.mu.Lock()
	roomID, inRoom := s.roomID, s.inRoom
	s.mu.Unlock()

	switch {
	case inRoom:
		s.emit(events.GetRoom, events.RoomIDEvent{RoomID: roomID})
	case roomID != "":
		s.emit(events.JoinRoom, events.RoomIDEvent{RoomID: roomID})
	case s.opts.CreateName != "":
		s.emit(events.CreateRoom, events.CreateRoomEvent{RoomName: s.opts.CreateName})
	default:
		s.emit(events.GetAllRooms, nil)
	}
}

// HandleLine - строка из терминала. Во время гонки каждый непробельный символ это нажатие.
func (s *Session) HandleLine(line string) {
	s.mu.Lock()
	engine := s.engine
	roomID := s.roomID
	canStart := s.creator && !s.started
	s.mu.Unlock()

	if engine != nil && !engine.Finished() {
		for _, r := range line {
			if unicode.IsSpace(r) {
				continue
			}

			engine.OnInput(string(r))
		}

		s.printRace(engine)

		return
	}

	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")

	switch cmd {
	case "":
		if canStart && roomID != "" {
			s.emit(events.Countdown, roomID)
		}
	case "/rooms":
		s.emit(events.GetAllRooms, nil)
	case "/create":
		s.emit(events.CreateRoom, events.CreateRoomEvent{RoomName: strings.TrimSpace(arg)})
	case "/join":
		s.emit(events.JoinRoom, events.RoomIDEvent{RoomID: strings.TrimSpace(arg)})
	case "/leave":
		if roomID != "" {
			s.emit(events.LeaveRoom, events.RoomIDEvent{RoomID: roomID})
		}
	case "/destroy":
		if roomID != "" {
			s.emit(events.DestroyRoom, events.RoomIDEvent{RoomID: roomID})
		}
	default:
		s.printf("Unknown command %q. Commands: /rooms /create <name> /join <id> /leave /destroy\n", cmd)
	}
}

// ReportProgress и ReportFinished - race.Reporter поверх очереди транспорта
func (s *Session) ReportProgress(p race.Progress) {
	wpm, accuracy := p.WPM, p.Accuracy

	s.emit(events.LiveProgress, events.LiveProgressEvent{
		RoomID:   p.RoomID,
		Progress: float64(p.Progress),
		WPM:      &wpm,
		Accuracy: &accuracy,
	})
}

func (s *Session) ReportFinished(r race.Result) {
	s.emit(events.PlayerFinished, events.PlayerFinishedEvent{
		RoomID: r.RoomID,
		Stats: models.PlayerStats{
			WPM:              r.WPM,
			Accuracy:         r.Accuracy,
			TotalMistakes:    r.TotalMistakes,
			TimeTakenSeconds: r.TimeTakenSeconds,
		},
	})

	s.printf("\nFinished! %d wpm, %d%% accuracy, %d mistakes, %ds\n", r.WPM, r.Accuracy, r.TotalMistakes, r.TimeTakenSeconds)
}

// Close останавливает движок, если гонка не закончилась
func (s *Session) Close() {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	if engine != nil {
		engine.Close()
	}
}

func (s *Session) onRoomEntry(title string) transport.Handler {
	return func(data json.RawMessage) {
		var entry models.RoomEntry
		if !s.decode(data, &entry) || entry.Data == nil {
			return
		}

		s.mu.Lock()
		s.roomID = entry.Key
		s.inRoom = true
		s.creator = entry.Data.IsCreator(s.opts.UserID)
		s.started = entry.Data.GameStarted
		creator := s.creator && !s.started
		s.mu.Unlock()

		s.printf("%s %q (%s)\n", title, entry.Data.Name, entry.Key)
		s.printPlayers(entry.Data)

		if creator {
			s.printf("Press Enter to start the race\n")
		}
	}
}

func (s *Session) onRoomUpdated(data json.RawMessage) {
	var entry models.RoomEntry
	if !s.decode(data, &entry) || entry.Data == nil {
		return
	}

	s.mu.Lock()
	racing := s.engine != nil
	s.mu.Unlock()

	// во время гонки room-updated приходит на каждый live-progress
	if racing {
		return
	}

	s.printPlayers(entry.Data)
}

func (s *Session) onNewRoom(data json.RawMessage) {
	var entry models.RoomEntry
	if s.decode(data, &entry) && entry.Data != nil {
		s.printf("New room %q: /join %s\n", entry.Data.Name, entry.Key)
	}
}

func (s *Session) onAllRooms(data json.RawMessage) {
	var entries []models.RoomEntry
	if !s.decode(data, &entries) {
		return
	}

	if len(entries) == 0 {
		s.printf("No rooms yet. /create <name>\n")
		return
	}

	for _, e := range entries {
		if e.Data == nil {
			continue
		}

		state := "open"
		if e.Data.GameStarted {
			state = "started"
		}

		s.printf("  %s  %-20s %d players, %s\n", e.Key, e.Data.Name, len(e.Data.Players), state)
	}
}

func (s *Session) onLeft(json.RawMessage) {
	s.mu.Lock()
	s.roomID = ""
	s.inRoom = false
	s.creator = false
	s.mu.Unlock()

	s.printf("Left the room\n")
}

func (s *Session) onDestroyed(data json.RawMessage) {
	var ev events.RoomDestroyedEvent
	if !s.decode(data, &ev) {
		return
	}

	s.mu.Lock()
	mine := ev.RoomID == s.roomID
	s.mu.Unlock()

	if mine {
		s.printf("Room was destroyed\n")
		s.finish()
	}
}

func (s *Session) onGameStarted(json.RawMessage) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.printf("Get ready, the race starts in a few seconds...\n")
}

func (s *Session) onParagraph(data json.RawMessage) {
	var ev events.ParagraphReadyEvent
	if !s.decode(data, &ev) {
		return
	}

	engine := race.NewEngine(ev.RoomID, ev.Paragraph, s.clock, s)

	s.mu.Lock()
	previous := s.engine
	s.engine = engine
	s.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	s.printf("\nGO! Type the text (spaces are optional, Enter sends):\n\n%s\n\n", ev.Paragraph)
}

func (s *Session) onError(title string) transport.Handler {
	return func(data json.RawMessage) {
		var ev events.ErrorEvent
		if s.decode(data, &ev) {
			s.printf("%s: %s\n", title, ev.Message)
		}
	}
}

func (s *Session) onPlayerCompleted(data json.RawMessage) {
	var ev events.PlayerCompletedRunEvent
	if !s.decode(data, &ev) {
		return
	}

	s.printf("%s finished: %d wpm, %d%% accuracy. Waiting for %d\n", ev.UserName, ev.Stats.WPM, ev.Stats.Accuracy, ev.WaitingCount)
}

func (s *Session) onAllFinished(data json.RawMessage) {
	var ev events.AllPlayersFinishedEvent
	if s.decode(data, &ev) {
		s.printf("%s\n", ev.Message)
	}
}

func (s *Session) onRedirect(data json.RawMessage) {
	var ev events.RedirectToLeaderboardEvent
	if !s.decode(data, &ev) {
		return
	}

	s.printf("\nLeaderboard:\n")
	for i, p := range ev.FinalResults {
		wpm, accuracy := 0, 0
		if p.Stats != nil {
			wpm, accuracy = p.Stats.WPM, p.Stats.Accuracy
		}

		s.printf("  %d. %-16s %3d wpm %3d%%\n", i+1, p.UserName, wpm, accuracy)
	}

	s.finish()
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) printRace(engine *race.Engine) {
	if engine.Finished() {
		return
	}

	snap := engine.Snapshot()
	wordIdx, charIdx := engine.Cursor()
	words := engine.Words()

	var rest strings.Builder
	for i := wordIdx; i < len(words); i++ {
		text := []rune(words[i].Text)
		if i == wordIdx {
			text = text[charIdx:]
		}

		if rest.Len() > 0 {
			rest.WriteByte(' ')
		}
		rest.WriteString(string(text))
	}

	s.printf("[%3d%% | %3d wpm | %3d%%] %s\n", snap.Progress, snap.WPM, snap.Accuracy, rest.String())
}

func (s *Session) printPlayers(room *models.Room) {
	for _, p := range room.Players {
		mark := " "
		if p.IsCreator {
			mark = "*"
		}

		s.printf("  %s %s\n", mark, p.UserName)
	}
}

func (s *Session) emit(event string, payload any) {
	if err := s.emitter.Emit(event, payload); err != nil {
		slog.Error("emit event", slog.String(constant.Event, event), slog.Any(constant.Error, err))
	}
}

func (s *Session) decode(data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		slog.Error("decode server event", slog.Any(constant.Error, err))
		return false
	}

	return true
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
