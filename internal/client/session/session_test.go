package session

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/TypeRace/internal/client/transport"
	"github.com/qrave1/TypeRace/internal/domain/events"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

type emitted struct {
	event   string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, emitted{event: event, payload: payload})

	return nil
}

func (r *recordingEmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.event)
	}

	return out
}

func (r *recordingEmitter) last(event string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].event == event {
			return r.events[i].payload, true
		}
	}

	return nil, false
}

type handlerMap map[string]transport.Handler

func (m handlerMap) On(event string, h transport.Handler) {
	m[event] = h
}

func (m handlerMap) fire(t *testing.T, event string, payload any) {
	t.Helper()

	h, ok := m[event]
	require.True(t, ok, "no handler for %s", event)

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	h(data)
}

type harness struct {
	session  *Session
	emitter  *recordingEmitter
	handlers handlerMap
	out      *bytes.Buffer
	me       models.User
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	me := models.User{ID: uuid.New(), Name: "alice"}
	opts.UserID = me.ID

	h := &harness{
		emitter:  &recordingEmitter{},
		handlers: handlerMap{},
		out:      &bytes.Buffer{},
		me:       me,
	}

	h.session = New(h.out, h.emitter, clockwork.NewFakeClock(), opts)
	h.session.Bind(h.handlers)
	t.Cleanup(h.session.Close)

	return h
}

func (h *harness) roomEntry(roomID string, creator bool) models.RoomEntry {
	room := &models.Room{
		Name: "speed",
		Players: []models.Player{
			{UserID: uuid.New(), UserName: "bob", IsCreator: !creator},
			{UserID: h.me.ID, UserName: h.me.Name, IsCreator: creator},
		},
	}

	return models.RoomEntry{Key: roomID, Data: room}
}

func TestSession_OnConnect(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{name: "create", opts: Options{CreateName: "speed"}, want: events.CreateRoom},
		{name: "join", opts: Options{JoinRoomID: "r1"}, want: events.JoinRoom},
		{name: "lobby", opts: Options{}, want: events.GetAllRooms},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts)

			h.session.OnConnect()

			assert.Equal(t, []string{tt.want}, h.emitter.names())
		})
	}
}

func TestSession_ReconnectRestoresRoom(t *testing.T) {
	h := newHarness(t, Options{JoinRoomID: "r1"})

	h.handlers.fire(t, events.JoinedRoom, h.roomEntry("r1", false))
	h.session.OnConnect()

	payload, ok := h.emitter.last(events.GetRoom)
	require.True(t, ok)
	assert.Equal(t, events.RoomIDEvent{RoomID: "r1"}, payload)
}

func TestSession_CreatorStartsCountdown(t *testing.T) {
	h := newHarness(t, Options{CreateName: "speed"})

	h.handlers.fire(t, events.RoomCreatedByMe, h.roomEntry("r1", true))
	h.session.HandleLine("")

	payload, ok := h.emitter.last(events.Countdown)
	require.True(t, ok)
	assert.Equal(t, "r1", payload)
	assert.Contains(t, h.out.String(), "Press Enter")
}

func TestSession_NonCreatorCannotStart(t *testing.T) {
	h := newHarness(t, Options{JoinRoomID: "r1"})

	h.handlers.fire(t, events.JoinedRoom, h.roomEntry("r1", false))
	h.session.HandleLine("")

	_, ok := h.emitter.last(events.Countdown)
	assert.False(t, ok)
}

func TestSession_RaceReportsProgressAndFinish(t *testing.T) {
	h := newHarness(t, Options{JoinRoomID: "r1"})

	h.handlers.fire(t, events.JoinedRoom, h.roomEntry("r1", false))
	h.handlers.fire(t, events.GameStarted, nil)
	h.handlers.fire(t, events.ParagraphReady, events.ParagraphReadyEvent{RoomID: "r1", Paragraph: "ab cd", ParagraphID: 1})

	h.session.HandleLine("ab")

	payload, ok := h.emitter.last(events.LiveProgress)
	require.True(t, ok)
	progress := payload.(events.LiveProgressEvent)
	assert.Equal(t, "r1", progress.RoomID)
	require.NotNil(t, progress.WPM)
	require.NotNil(t, progress.Accuracy)

	h.session.HandleLine("c d")

	payload, ok = h.emitter.last(events.PlayerFinished)
	require.True(t, ok)
	finished := payload.(events.PlayerFinishedEvent)
	assert.Equal(t, "r1", finished.RoomID)
	assert.Equal(t, 100, finished.Stats.Accuracy)
	assert.Contains(t, h.out.String(), "Finished!")

	// после финиша ввод снова разбирается как команды
	h.session.HandleLine("/rooms")
	assert.Contains(t, h.emitter.names(), events.GetAllRooms)
}

func TestSession_RedirectClosesDone(t *testing.T) {
	h := newHarness(t, Options{JoinRoomID: "r1"})

	h.handlers.fire(t, events.RedirectToLeaderboard, events.RedirectToLeaderboardEvent{
		RoomID: "r1",
		FinalResults: []models.Player{
			{UserName: "bob", Stats: &models.PlayerStats{WPM: 80, Accuracy: 97}},
			{UserName: "alice", Stats: &models.PlayerStats{WPM: 60, Accuracy: 99}},
		},
	})

	select {
	case <-h.session.Done():
	default:
		t.Fatal("session is not done after redirect")
	}

	assert.Contains(t, h.out.String(), "1. bob")
}

func TestSession_DestroyedRoom(t *testing.T) {
	h := newHarness(t, Options{JoinRoomID: "r1"})

	h.handlers.fire(t, events.JoinedRoom, h.roomEntry("r1", false))
	h.handlers.fire(t, events.RoomDestroyed, events.RoomDestroyedEvent{RoomID: "other"})

	select {
	case <-h.session.Done():
		t.Fatal("foreign room destroy must be ignored")
	default:
	}

	h.handlers.fire(t, events.RoomDestroyed, events.RoomDestroyedEvent{RoomID: "r1"})

	select {
	case <-h.session.Done():
	default:
		t.Fatal("session is not done after destroy")
	}
}

func TestSession_ErrorsArePrinted(t *testing.T) {
	h := newHarness(t, Options{})

	h.handlers.fire(t, events.JoinRoomError, events.ErrorEvent{Message: "room is full, maximum players reached"})

	assert.Contains(t, h.out.String(), "room is full")
}
