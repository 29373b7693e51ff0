package memory

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/application/metric"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

// Conn - то, что нужно репозиторию от *websocket.Conn
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// WebsocketConnectionRepository хранит активные соединения и их комнаты
type WebsocketConnectionRepository interface {
	Add(connID uuid.UUID, user models.User, conn Conn)
	Remove(connID uuid.UUID)

	Join(connID uuid.UUID, roomID string)
	Leave(connID uuid.UUID, roomID string)
	LeaveRoomForAll(roomID string)
	Rooms(connID uuid.UUID) []string
	User(connID uuid.UUID) (models.User, bool)

	Write(connID uuid.UUID, payload any)
	WriteToRoom(roomID string, payload any, exclude ...uuid.UUID)
	WriteToAll(payload any, exclude ...uuid.UUID)
}

type safeWS struct {
	conn Conn
	mu   sync.Mutex

	user  models.User
	rooms map[string]struct{}
}

type wsConnectionRepository struct {
	// wsConns хранит map[conn_id]*safeWS
	wsConns map[uuid.UUID]*safeWS

	mu sync.RWMutex
}

func NewWSConnectionRepository() WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns: make(map[uuid.UUID]*safeWS, 10),
	}
}

func (w *wsConnectionRepository) Add(connID uuid.UUID, user models.User, conn Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.wsConns[connID]; !ok {
		metric.IncrementWSActiveConnections()
	}

	w.wsConns[connID] = &safeWS{
		conn:  conn,
		user:  user,
		rooms: make(map[string]struct{}),
	}
}

func (w *wsConnectionRepository) Remove(connID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.wsConns[connID]; !ok {
		return
	}

	delete(w.wsConns, connID)
	metric.DecrementWSActiveConnections()
}

func (w *wsConnectionRepository) Join(connID uuid.UUID, roomID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.wsConns[connID]; ok {
		s.rooms[roomID] = struct{}{}
	}
}

func (w *wsConnectionRepository) Leave(connID uuid.UUID, roomID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.wsConns[connID]; ok {
		delete(s.rooms, roomID)
	}
}

// LeaveRoomForAll убирает комнату из групп всех соединений
func (w *wsConnectionRepository) LeaveRoomForAll(roomID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range w.wsConns {
		delete(s.rooms, roomID)
	}
}

func (w *wsConnectionRepository) Rooms(connID uuid.UUID) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s, ok := w.wsConns[connID]
	if !ok {
		return nil
	}

	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}

	return rooms
}

func (w *wsConnectionRepository) User(connID uuid.UUID) (models.User, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s, ok := w.wsConns[connID]
	if !ok {
		return models.User{}, false
	}

	return s.user, true
}

func (w *wsConnectionRepository) Write(connID uuid.UUID, payload any) {
	safews, ok := w.getSafeWS(connID)
	if !ok {
		slog.Error("get websocket", slog.Any(constant.ConnID, connID))
		return
	}

	w.write(connID, safews, payload)
}

func (w *wsConnectionRepository) WriteToRoom(roomID string, payload any, exclude ...uuid.UUID) {
	for connID, safews := range w.snapshot(exclude, func(s *safeWS) bool {
		_, ok := s.rooms[roomID]
		return ok
	}) {
		w.write(connID, safews, payload)
	}
}

func (w *wsConnectionRepository) WriteToAll(payload any, exclude ...uuid.UUID) {
	for connID, safews := range w.snapshot(exclude, func(*safeWS) bool { return true }) {
		w.write(connID, safews, payload)
	}
}

// snapshot копирует подходящие соединения, чтобы не писать в сокеты под общей блокировкой
func (w *wsConnectionRepository) snapshot(exclude []uuid.UUID, match func(*safeWS) bool) map[uuid.UUID]*safeWS {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[uuid.UUID]*safeWS, len(w.wsConns))

	for connID, s := range w.wsConns {
		if slices.Contains(exclude, connID) || !match(s) {
			continue
		}

		out[connID] = s
	}

	return out
}

func (w *wsConnectionRepository) write(connID uuid.UUID, safews *safeWS, payload any) {
	safews.mu.Lock()
	defer safews.mu.Unlock()

	if err := safews.conn.WriteJSON(payload); err != nil {
		slog.Error(
			"write to websocket",
			slog.Any(constant.ConnID, connID),
			slog.Any(constant.Error, err),
		)
	}
}

func (w *wsConnectionRepository) getSafeWS(connID uuid.UUID) (*safeWS, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	conn, ok := w.wsConns[connID]
	return conn, ok
}
