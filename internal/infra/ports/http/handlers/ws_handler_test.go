package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/TypeRace/internal/application/config"
	"github.com/qrave1/TypeRace/internal/domain/events"
	"github.com/qrave1/TypeRace/internal/domain/models"
	"github.com/qrave1/TypeRace/internal/infra/adapters/file"
	"github.com/qrave1/TypeRace/internal/infra/adapters/memory"
	"github.com/qrave1/TypeRace/internal/infra/ports/http/middleware"
	"github.com/qrave1/TypeRace/internal/usecase"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Debug:     true,
		JWTSecret: testSecret,
		Game: config.GameConfig{
			MaxPlayers:     5,
			CountdownDelay: time.Hour,
			RedirectDelay:  time.Hour,
			UpdateRetries:  10,
		},
	}

	content, err := file.ParseParagraphs([]byte("paragraphs:\n  - content: ab cd\n"))
	require.NoError(t, err)

	scheduler := usecase.NewScheduler(clockwork.NewFakeClock())
	t.Cleanup(scheduler.Stop)

	wsRepo := memory.NewWSConnectionRepository()
	roomUsecase := usecase.NewRoomUsecase(cfg.Game, memory.NewRoomRepository(), wsRepo, content, nil, scheduler)

	e := echo.New()
	e.GET("/ws", NewWebSocketHandler(cfg, roomUsecase, wsRepo).Handle, middleware.JWTAuthMiddleware(testSecret))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return srv
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, name string) *testClient {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &usecase.Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?access_token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testClient{t: t, conn: conn}
}

func (c *testClient) emit(eventType string, payload any) {
	c.t.Helper()

	msg, err := events.NewMessage(eventType, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// expect читает сообщения до нужного типа, остальные пропускает
func (c *testClient) expect(eventType string, v any) {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for {
		var msg events.Message
		require.NoError(c.t, c.conn.ReadJSON(&msg))

		if msg.Type != eventType {
			continue
		}

		if v != nil {
			require.NoError(c.t, json.Unmarshal(msg.Data, v))
		}

		return
	}
}

func TestWebSocketHandler(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	alice.emit(events.CreateRoom, events.CreateRoomEvent{RoomName: "sprint"})

	var created models.RoomEntry
	alice.expect(events.RoomCreatedByMe, &created)
	assert.Equal(t, "sprint", created.Data.Name)

	var announced models.RoomEntry
	bob.expect(events.NewRoomAvailable, &announced)
	assert.Equal(t, created.Key, announced.Key)

	t.Run("lobby error goes to join-room-error", func(t *testing.T) {
		bob.emit(events.JoinRoom, events.RoomIDEvent{RoomID: "missing"})

		var errEvent events.ErrorEvent
		bob.expect(events.JoinRoomError, &errEvent)
		assert.Equal(t, "room does not exist", errEvent.Message)
	})

	t.Run("join", func(t *testing.T) {
		bob.emit(events.JoinRoom, events.RoomIDEvent{RoomID: created.Key})

		var joined models.RoomEntry
		bob.expect(events.JoinedRoom, &joined)
		require.Len(t, joined.Data.Players, 2)

		alice.expect(events.RoomUpdated, nil)
	})

	t.Run("race error goes to game-error", func(t *testing.T) {
		// голая строка тоже принимается
		bob.emit(events.Countdown, created.Key)

		var errEvent events.ErrorEvent
		bob.expect(events.GameError, &errEvent)
		assert.Equal(t, "not authorized for this room", errEvent.Message)
	})

	t.Run("malformed payload keeps connection", func(t *testing.T) {
		require.NoError(t, bob.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"live-progress","data":"oops"}`)))

		var errEvent events.ErrorEvent
		bob.expect(events.GameError, &errEvent)
		assert.Equal(t, "Malformed request payload", errEvent.Message)

		require.NoError(t, bob.conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))

		bob.emit(events.Ping, nil)
		bob.expect(events.Pong, nil)
	})

	t.Run("countdown by creator", func(t *testing.T) {
		alice.emit(events.Countdown, events.RoomIDEvent{RoomID: created.Key})

		var locked models.RoomEntry
		bob.expect(events.LockRoom, &locked)
		assert.True(t, locked.Data.GameStarted)

		bob.expect(events.GameStarted, nil)
	})
}
