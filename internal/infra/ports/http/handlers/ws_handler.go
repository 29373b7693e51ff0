package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/TypeRace/internal/application/config"
	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/application/metric"
	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/events"
	"github.com/qrave1/TypeRace/internal/infra/adapters/memory"
	"github.com/qrave1/TypeRace/internal/infra/appctx"
	"github.com/qrave1/TypeRace/internal/usecase"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second

	genericErrorMessage = "Something went wrong, please try again"
	payloadErrorMessage = "Malformed request payload"
)

// commandHandler - обработчик команды и событие, в котором клиент получит ошибку
type commandHandler struct {
	errorEvent string
	handle     func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error
}

// errBadPayload отличает кривой JSON от ошибок самой команды
var errBadPayload = errors.New("bad payload")

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	roomUsecase usecase.RoomUsecase

	wsConnRepo memory.WebsocketConnectionRepository

	commands map[string]commandHandler
}

func NewWebSocketHandler(
	cfg *config.Config,
	roomUsecase usecase.RoomUsecase,
	wsConnRepo memory.WebsocketConnectionRepository,
) *WebSocketHandler {
	h := &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				// не браузерные клиенты Origin не шлют
				origin := r.Header.Get("Origin")
				return origin == "" || origin == cfg.Domain
			},
		},
		roomUsecase: roomUsecase,
		wsConnRepo:  wsConnRepo,
	}

	h.commands = h.registerCommands()

	return h
}

func (h *WebSocketHandler) registerCommands() map[string]commandHandler {
	lobby := func(fn func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error) commandHandler {
		return commandHandler{errorEvent: events.JoinRoomError, handle: fn}
	}
	race := func(fn func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error) commandHandler {
		return commandHandler{errorEvent: events.GameError, handle: fn}
	}

	return map[string]commandHandler{
		events.CreateRoom: lobby(func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error {
			var ev events.CreateRoomEvent
			if err := decode(data, &ev); err != nil {
				return err
			}

			return h.roomUsecase.CreateRoom(ctx, caller, ev.RoomName)
		}),
		events.JoinRoom:    lobby(h.withRoomID(usecase.RoomUsecase.JoinRoom)),
		events.GetRoom:     lobby(h.withRoomID(usecase.RoomUsecase.GetRoom)),
		events.LeaveRoom:   lobby(h.withRoomID(usecase.RoomUsecase.LeaveRoom)),
		events.DestroyRoom: lobby(h.withRoomID(usecase.RoomUsecase.DestroyRoom)),
		events.GetAllRooms: lobby(func(ctx context.Context, caller usecase.Caller, _ json.RawMessage) error {
			return h.roomUsecase.GetAllRooms(ctx, caller)
		}),
		events.Countdown: race(func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error {
			var ev events.CountdownEvent
			if err := decode(data, &ev); err != nil {
				return err
			}

			return h.roomUsecase.Countdown(ctx, caller, ev.RoomID)
		}),
		events.LiveProgress: race(func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error {
			var ev events.LiveProgressEvent
			if err := decode(data, &ev); err != nil {
				return err
			}

			return h.roomUsecase.LiveProgress(ctx, caller, ev)
		}),
		events.PlayerFinished: race(func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error {
			var ev events.PlayerFinishedEvent
			if err := decode(data, &ev); err != nil {
				return err
			}

			return h.roomUsecase.PlayerFinished(ctx, caller, ev)
		}),
	}
}

// withRoomID для команд с payload {roomId}
func (h *WebSocketHandler) withRoomID(
	fn func(uc usecase.RoomUsecase, ctx context.Context, caller usecase.Caller, roomID string) error,
) func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error {
	return func(ctx context.Context, caller usecase.Caller, data json.RawMessage) error {
		var ev events.RoomIDEvent
		if err := decode(data, &ev); err != nil {
			return err
		}

		return fn(h.roomUsecase, ctx, caller, ev.RoomID)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty data", errBadPayload)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", errBadPayload, err)
	}

	return nil
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	user, ok := appctx.User(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user in context"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return err
	}
	defer ws.Close()

	caller := usecase.Caller{ConnID: uuid.New(), User: user}

	h.wsConnRepo.Add(caller.ConnID, user, ws)
	// комнаты не трогаем, после переподключения клиент делает get-room
	defer h.wsConnRepo.Remove(caller.ConnID)

	slog.Info(
		"user connected to websocket",
		slog.Any(constant.UserID, user.ID),
		slog.Any(constant.ConnID, caller.ConnID),
	)

	err = ws.SetReadDeadline(time.Now().Add(pongWait))
	if err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go h.pingLoop(ws, done)

	ctx := c.Request().Context()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			h.handleWebsocketError(caller, err)

			return nil
		}

		var msg events.Message

		if err = json.Unmarshal(raw, &msg); err != nil {
			slog.Warn(
				"unmarshal websocket message",
				slog.Any(constant.ConnID, caller.ConnID),
				slog.Any(constant.Error, err),
			)

			continue
		}

		h.handleMessage(ctx, caller, msg)
	}
}

// pingLoop. WriteControl можно вызывать параллельно с WriteJSON из репозитория.
func (h *WebSocketHandler) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Error("ping failed", slog.Any(constant.Error, err))
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, caller usecase.Caller, msg events.Message) {
	if msg.Type == events.Ping {
		h.send(caller, events.Pong, nil)
		return
	}

	cmd, ok := h.commands[msg.Type]
	if !ok {
		slog.Warn(
			"unknown message type",
			slog.String(constant.Event, msg.Type),
			slog.Any(constant.ConnID, caller.ConnID),
		)
		metric.RecordRoomCommand("unknown", "rejected")

		return
	}

	err := cmd.handle(ctx, caller, msg.Data)
	if err == nil {
		metric.RecordRoomCommand(msg.Type, "ok")
		return
	}

	h.reportError(caller, msg.Type, cmd.errorEvent, err)
}

// reportError отправляет ошибку только вызвавшему соединению, соединение не закрывается
func (h *WebSocketHandler) reportError(caller usecase.Caller, command, errorEvent string, err error) {
	message, known := domain.ClientMessage(err)

	switch {
	case known:
		metric.RecordRoomCommand(command, "rejected")

		slog.Info(
			"command rejected",
			slog.String(constant.Event, command),
			slog.Any(constant.UserID, caller.User.ID),
			slog.String("reason", message),
		)
	case errors.Is(err, errBadPayload):
		metric.RecordRoomCommand(command, "rejected")
		message = payloadErrorMessage

		slog.Warn(
			"bad command payload",
			slog.String(constant.Event, command),
			slog.Any(constant.ConnID, caller.ConnID),
			slog.Any(constant.Error, err),
		)
	default:
		metric.RecordRoomCommand(command, "failed")
		message = genericErrorMessage

		slog.Error(
			"handle command",
			slog.String(constant.Event, command),
			slog.Any(constant.UserID, caller.User.ID),
			slog.Any(constant.Error, err),
		)
	}

	h.send(caller, errorEvent, events.ErrorEvent{Message: message})
}

func (h *WebSocketHandler) send(caller usecase.Caller, eventType string, payload any) {
	msg, err := events.NewMessage(eventType, payload)
	if err != nil {
		slog.Error("build event", slog.String(constant.Event, eventType), slog.Any(constant.Error, err))
		return
	}

	h.wsConnRepo.Write(caller.ConnID, msg)
}

func (h *WebSocketHandler) handleWebsocketError(caller usecase.Caller, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			slog.Info(
				"user disconnected from websocket",
				slog.Any(constant.UserID, caller.User.ID),
				slog.Any(constant.ConnID, caller.ConnID),
			)
		default:
			slog.Error(
				"websocket close error",
				slog.Any(constant.UserID, caller.User.ID),
				slog.Int("code", closeErr.Code),
			)
		}
	} else {
		slog.Error(
			"websocket read",
			slog.Any(constant.ConnID, caller.ConnID),
			slog.Any(constant.Error, err),
		)
	}
}
