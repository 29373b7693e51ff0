package constant

// Ключи атрибутов slog
const (
	Error    = "error"
	UserID   = "user_id"
	UserName = "user_name"
	RoomID   = "room_id"
	ConnID   = "conn_id"
	Event    = "event"
)
