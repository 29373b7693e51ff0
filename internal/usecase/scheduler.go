package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/qrave1/TypeRace/internal/application/constant"
)

type TimerKind string

const (
	TimerCountdown TimerKind = "countdown"
	TimerRedirect  TimerKind = "redirect"
)

// Scheduler - отложенные задачи комнат, отменяемые по roomID
type Scheduler interface {
	// Schedule заменяет задачу того же вида для комнаты
	Schedule(roomID string, kind TimerKind, delay time.Duration, fn func(ctx context.Context))
	CancelRoom(roomID string)
	Stop()
}

type timerKey struct {
	roomID string
	kind   TimerKind
}

type scheduledTask struct {
	timer clockwork.Timer
	done  chan struct{}
}

type scheduler struct {
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc

	timers map[timerKey]*scheduledTask
	mu     sync.Mutex

	wg sync.WaitGroup
}

func NewScheduler(clock clockwork.Clock) Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &scheduler{
		clock:  clock,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[timerKey]*scheduledTask),
	}
}

func (s *scheduler) Schedule(roomID string, kind TimerKind, delay time.Duration, fn func(ctx context.Context)) {
	key := timerKey{roomID: roomID, kind: kind}
	task := &scheduledTask{
		timer: s.clock.NewTimer(delay),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		stopAndDrainTimer(task.timer)
		return
	}

	if existing, ok := s.timers[key]; ok {
		existing.stop()
	}
	s.timers[key] = task
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		select {
		case <-task.timer.Chan():
			// отмена могла успеть между срабатыванием и захватом блокировки
			if !s.remove(key, task) {
				return
			}

			slog.Debug(
				"room timer fired",
				slog.String(constant.RoomID, roomID),
				slog.String("kind", string(kind)),
			)

			fn(s.ctx)
		case <-task.done:
		case <-s.ctx.Done():
			stopAndDrainTimer(task.timer)
		}
	}()
}

func (s *scheduler) CancelRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, task := range s.timers {
		if key.roomID != roomID {
			continue
		}

		task.stop()
		delete(s.timers, key)

		slog.Debug(
			"room timer cancelled",
			slog.String(constant.RoomID, roomID),
			slog.String("kind", string(key.kind)),
		)
	}
}

// Stop отменяет все таймеры и ждет уже запущенные задачи
func (s *scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	for key, task := range s.timers {
		stopAndDrainTimer(task.timer)
		delete(s.timers, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *scheduler) remove(key timerKey, task *scheduledTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timers[key] != task {
		return false
	}

	delete(s.timers, key)

	return true
}

func (t *scheduledTask) stop() {
	stopAndDrainTimer(t.timer)
	close(t.done)
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
