// Package race - клиентская машина состояний набора текста.
package race

import (
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
)

const emitInterval = 2 * time.Second

type CharState int

const (
	CharPending CharState = iota
	CharCorrect
	CharIncorrect
)

type WordState int

const (
	WordPending WordState = iota
	WordActive
	WordCompleted
)

type Char struct {
	Rune  rune
	State CharState
}

type Word struct {
	Text  string
	State WordState
	Chars []Char
}

// Progress - периодический снимок для live-progress
type Progress struct {
	RoomID   string
	Progress int
	WPM      int
	Accuracy int
}

// Result - итог для player-finished
type Result struct {
	RoomID           string
	WPM              int
	Accuracy         int
	TotalMistakes    int
	TimeTakenSeconds int
}

// Reporter не должен блокироваться на сети, вызывается из горутины ввода и таймера
type Reporter interface {
	ReportProgress(p Progress)
	ReportFinished(r Result)
}

type Engine struct {
	roomID string
	clock  clockwork.Clock

	reporter Reporter

	mu         sync.Mutex
	words      []Word
	totalChars int
	wordIdx    int
	charIdx    int
	correct    int
	mistakes   int
	startedAt  time.Time
	started    bool
	finished   bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine разбирает текст и запускает периодическую отправку прогресса
func NewEngine(roomID, paragraph string, clock clockwork.Clock, reporter Reporter) *Engine {
	e := &Engine{
		roomID:   roomID,
		clock:    clock,
		reporter: reporter,
		words:    splitWords(paragraph),
		stop:     make(chan struct{}),
	}

	for _, w := range e.words {
		e.totalChars += len(w.Chars)
	}

	ticker := clock.NewTicker(emitInterval)

	e.wg.Add(1)
	go e.emitLoop(ticker)

	return e
}

func splitWords(paragraph string) []Word {
	fields := strings.Fields(paragraph)
	words := make([]Word, 0, len(fields))

	for i, f := range fields {
		w := Word{Text: f, Chars: make([]Char, 0, utf8.RuneCountInString(f))}
		if i == 0 {
			w.State = WordActive
		}

		for _, r := range f {
			w.Chars = append(w.Chars, Char{Rune: r})
		}

		words = append(words, w)
	}

	return words
}

func (e *Engine) emitLoop(ticker clockwork.Ticker) {
	defer e.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			e.mu.Lock()
			active := e.started && !e.finished
			sample := e.progressLocked()
			e.mu.Unlock()

			if active {
				e.reporter.ReportProgress(sample)
			}
		case <-e.stop:
			return
		}
	}
}

// OnInput принимает содержимое поля ввода, значим только последний символ
func (e *Engine) OnInput(input string) {
	typed, _ := utf8.DecodeLastRuneInString(input)
	if input != "" && isBackspace(typed) {
		return
	}

	e.mu.Lock()

	if e.finished {
		e.mu.Unlock()
		return
	}

	var initial *Progress
	if !e.started {
		e.started = true
		e.startedAt = e.clock.Now()

		sample := e.progressLocked()
		initial = &sample
	}

	result, done := e.applyLocked(input, typed)

	e.mu.Unlock()

	if initial != nil {
		e.reporter.ReportProgress(*initial)
	}

	if done {
		e.stopEmitter()
		e.reporter.ReportFinished(result)
	}
}

// applyLocked - шаги 3-5: сверка символа и сдвиг курсора
func (e *Engine) applyLocked(input string, typed rune) (Result, bool) {
	if input == "" || e.wordIdx >= len(e.words) {
		return Result{}, false
	}

	word := &e.words[e.wordIdx]
	if e.charIdx >= len(word.Chars) {
		return Result{}, false
	}

	ch := &word.Chars[e.charIdx]

	if typed != ch.Rune {
		// курсор остается, следующая попытка перепроверит тот же слот
		ch.State = CharIncorrect
		e.mistakes++

		return Result{}, false
	}

	ch.State = CharCorrect
	e.correct++
	e.charIdx++

	if e.charIdx < len(word.Chars) {
		return Result{}, false
	}

	word.State = WordCompleted
	e.wordIdx++
	e.charIdx = 0

	if e.wordIdx < len(e.words) {
		e.words[e.wordIdx].State = WordActive
		return Result{}, false
	}

	e.finished = true

	return e.resultLocked(), true
}

func (e *Engine) resultLocked() Result {
	elapsed := e.clock.Since(e.startedAt)

	return Result{
		RoomID:           e.roomID,
		WPM:              wpm(e.correct, elapsed),
		Accuracy:         accuracy(e.correct, e.mistakes),
		TotalMistakes:    e.mistakes,
		TimeTakenSeconds: int(math.Floor(elapsed.Seconds())),
	}
}

func (e *Engine) progressLocked() Progress {
	var elapsed time.Duration
	if e.started {
		elapsed = e.clock.Since(e.startedAt)
	}

	return Progress{
		RoomID:   e.roomID,
		Progress: progress(e.correct+e.mistakes, e.totalChars),
		WPM:      wpm(e.correct, elapsed),
		Accuracy: accuracy(e.correct, e.mistakes),
	}
}

func wpm(correct int, elapsed time.Duration) int {
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		return 0
	}

	return int(math.Round(float64(correct) / 5 / minutes))
}

func accuracy(correct, mistakes int) int {
	total := correct + mistakes
	if total == 0 {
		return 0
	}

	return int(math.Round(float64(correct) / float64(total) * 100))
}

func progress(typed, total int) int {
	if total == 0 {
		return 0
	}

	return int(math.Round(math.Min(100, float64(typed)/float64(total)*100)))
}

func isBackspace(r rune) bool {
	return r == '\b' || r == 0x7f
}

// Words - копия текущего состояния для отрисовки
func (e *Engine) Words() []Word {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Word, len(e.words))
	for i, w := range e.words {
		out[i] = Word{Text: w.Text, State: w.State, Chars: append([]Char(nil), w.Chars...)}
	}

	return out
}

// Cursor - индекс активного слова и символа в нем
func (e *Engine) Cursor() (word, char int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.wordIdx, e.charIdx
}

func (e *Engine) Snapshot() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.progressLocked()
}

func (e *Engine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.finished
}

func (e *Engine) Mistakes() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.mistakes
}

// Close останавливает таймер, повторный вызов безопасен
func (e *Engine) Close() {
	e.stopEmitter()
}

func (e *Engine) stopEmitter() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}
