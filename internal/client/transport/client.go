// Package transport - клиент websocket с переподключением и очередью отправки.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/domain/events"
)

var ErrQueueFull = errors.New("send queue is full")

type Handler func(data json.RawMessage)

type Options struct {
	Header     http.Header
	Dialer     *websocket.Dialer
	Clock      clockwork.Clock
	QueueSize  int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	PongWait   time.Duration
}

type Client struct {
	url  string
	opts Options

	mu        sync.RWMutex
	handlers  map[string][]Handler
	onConnect []func()

	send chan events.Message
}

func New(url string, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}

	return &Client{
		url:      url,
		opts:     opts,
		handlers: make(map[string][]Handler),
		send:     make(chan events.Message, opts.QueueSize),
	}
}

// On подписывает обработчик на событие. Обработчики вызываются из горутины чтения.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[event] = append(c.handlers[event], h)
}

// OnConnect вызывается после каждого (пере)подключения
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onConnect = append(c.onConnect, fn)
}

// Emit ставит событие в очередь и не ждет сети
func (c *Client) Emit(event string, payload any) error {
	msg, err := events.NewMessage(event, payload)
	if err != nil {
		return err
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("emit %s: %w", event, ErrQueueFull)
	}
}

// Run держит соединение до отмены ctx, переподключаясь с экспоненциальной задержкой
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff

	for {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
		if err == nil {
			backoff = c.opts.MinBackoff

			err = c.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn(
			"websocket connection lost, reconnecting",
			slog.Duration("backoff", backoff),
			slog.Any(constant.Error, err),
		)

		select {
		case <-c.opts.Clock.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		return err
	}

	// сервер шлет ping, ответ pong пишет стандартный обработчик
	conn.SetPingHandler(func(appData string) error {
		if err := conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
			return err
		}

		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	c.mu.RLock()
	hooks := append([]func(){}, c.onConnect...)
	c.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(conn)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := conn.WriteJSON(msg); err != nil {
				// сообщение теряется, команды не повторяются автоматически
				return fmt.Errorf("write %s: %w", msg.Type, err)
			}
		case err := <-readErr:
			return err
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)

			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var msg events.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
			return err
		}

		c.mu.RLock()
		handlers := c.handlers[msg.Type]
		c.mu.RUnlock()

		if len(handlers) == 0 {
			slog.Debug("unhandled event", slog.String(constant.Event, msg.Type))
			continue
		}

		for _, h := range handlers {
			h(msg.Data)
		}
	}
}
