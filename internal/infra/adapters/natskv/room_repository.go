package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/qrave1/TypeRace/internal/application/config"
	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

// Connect открывает соединение с NATS с политикой переподключения из конфига
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("typerace"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Error("NATS disconnected", slog.Any(constant.Error, err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			slog.Error("NATS error", slog.Any(constant.Error, err))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return nc, nil
}

type roomRepository struct {
	nc *nats.Conn
	kv jetstream.KeyValue

	retries int
}

// NewRoomRepository берет существующий бакет или создает новый
func NewRoomRepository(ctx context.Context, nc *nats.Conn, bucket string, retries int) (domain.RoomRepository, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "typing race rooms",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open key value bucket %s: %w", bucket, err)
	}

	return newRoomRepository(nc, kv, retries), nil
}

func newRoomRepository(nc *nats.Conn, kv jetstream.KeyValue, retries int) *roomRepository {
	if retries < 1 {
		retries = 1
	}

	return &roomRepository{nc: nc, kv: kv, retries: retries}
}

func (r *roomRepository) Get(ctx context.Context, key string) (*models.Room, error) {
	room, _, err := r.get(ctx, key)

	return room, err
}

func (r *roomRepository) Create(ctx context.Context, key string, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	if _, err = r.kv.Create(ctx, key, data); err != nil {
		return fmt.Errorf("create room %s: %w", key, err)
	}

	return nil
}

func (r *roomRepository) Set(ctx context.Context, key string, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	if _, err = r.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("put room %s: %w", key, err)
	}

	return nil
}

func (r *roomRepository) Update(ctx context.Context, key string, mutate domain.RoomMutator) (*models.Room, error) {
	for attempt := 0; attempt < r.retries; attempt++ {
		room, revision, err := r.get(ctx, key)
		if err != nil {
			return nil, err
		}

		if err = mutate(room); err != nil {
			return nil, err
		}

		data, err := json.Marshal(room)
		if err != nil {
			return nil, fmt.Errorf("marshal room: %w", err)
		}

		_, err = r.kv.Update(ctx, key, data, revision)
		if err == nil {
			return room, nil
		}

		if !isRevisionConflict(err) {
			return nil, fmt.Errorf("update room %s: %w", key, err)
		}

		slog.Debug(
			"room revision conflict, retrying",
			slog.String(constant.RoomID, key),
			slog.Int("attempt", attempt+1),
		)
	}

	return nil, fmt.Errorf("update room %s: %w", key, domain.ErrUpdateConflict)
}

func (r *roomRepository) Delete(ctx context.Context, key string) error {
	if err := r.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete room %s: %w", key, err)
	}

	return nil
}

func (r *roomRepository) List(ctx context.Context) ([]models.RoomEntry, error) {
	lister, err := r.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []models.RoomEntry{}, nil
		}

		return nil, fmt.Errorf("list room keys: %w", err)
	}
	defer lister.Stop()

	entries := make([]models.RoomEntry, 0)

	for key := range lister.Keys() {
		room, _, err := r.get(ctx, key)
		if errors.Is(err, domain.ErrRoomNotFound) {
			// удалили между листингом и чтением
			continue
		}
		if err != nil {
			return nil, err
		}

		entries = append(entries, models.RoomEntry{Key: key, Data: room})
	}

	return entries, nil
}

func (r *roomRepository) Close() error {
	if r.nc == nil {
		return nil
	}

	return r.nc.Drain()
}

func (r *roomRepository) get(ctx context.Context, key string) (*models.Room, uint64, error) {
	entry, err := r.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get room %s: %w", key, err)
	}

	var room models.Room
	if err = json.Unmarshal(entry.Value(), &room); err != nil {
		return nil, 0, fmt.Errorf("unmarshal room %s: %w", key, err)
	}

	return &room, entry.Revision(), nil
}

func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}
