/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"errors"
	"time"
)

const (
	DefaultMatchDelay     = 500 * time.Millisecond
	DefaultMismatchDelay  = 1000 * time.Millisecond
	DefaultScoreIncrement = 10

	// MinImages is the smallest catalog that yields a playable deck.
	MinImages = 2
)

var ErrNotEnoughImages = errors.New("at least two distinct images are needed to start a game")

type State int

const (
	NotStarted State = iota
	InProgress
	Won
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Won:
		return "won"
	default:
		return "not_started"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Scheduler runs fn once after d. The returned func cancels it if it has
// not fired yet.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// SchedulerFunc adapts a plain function to Scheduler.
type SchedulerFunc func(d time.Duration, fn func()) (cancel func())

func (f SchedulerFunc) Schedule(d time.Duration, fn func()) func() {
	return f(d, fn)
}

// afterFunc runs callbacks on their own goroutine. Engines shared between
// goroutines need a Scheduler that funnels callbacks back to their owner.
var afterFunc = SchedulerFunc(func(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
})

type Option func(*Engine)

func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

func WithShuffle(fn ShuffleFunc) Option {
	return func(e *Engine) { e.shuffle = fn }
}

func WithDelays(match, mismatch time.Duration) Option {
	return func(e *Engine) {
		e.matchDelay = match
		e.mismatchDelay = mismatch
	}
}

func WithScoreIncrement(points int) Option {
	return func(e *Engine) { e.increment = points }
}

// Engine is one game session. It is not safe for concurrent use; all calls,
// including scheduled resolutions, must come from a single goroutine.
type Engine struct {
	deck       []Card
	pending    []int
	moves      int
	score      int
	state      State
	timer      Timer
	generation uint64
	cancel     func()

	scheduler     Scheduler
	shuffle       ShuffleFunc
	matchDelay    time.Duration
	mismatchDelay time.Duration
	increment     int
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		scheduler:     afterFunc,
		matchDelay:    DefaultMatchDelay,
		mismatchDelay: DefaultMismatchDelay,
		increment:     DefaultScoreIncrement,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start replaces the session with a fresh deck built from images. A catalog
// with fewer than MinImages distinct entries is refused and the current
// session is left as it was.
func (e *Engine) Start(images []string) error {
	distinct := uniq(images)
	if len(distinct) < MinImages {
		return ErrNotEnoughImages
	}

	deck, err := NewDeck(distinct, e.shuffle)
	if err != nil {
		return err
	}

	e.Stop()
	e.generation++

	e.deck = deck
	e.pending = e.pending[:0]
	e.moves = 0
	e.score = 0
	e.timer.Reset()
	e.timer.SetRunning(true)
	e.state = InProgress

	return nil
}

// Stop cancels any scheduled resolution without touching the board.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Select flips the card with the given ID. It reports whether anything
// changed.
func (e *Engine) Select(id int) bool {
	if e.state != InProgress || len(e.pending) >= 2 {
		return false
	}

	i := e.index(id)
	if i < 0 || e.deck[i].Flipped || e.deck[i].Matched {
		return false
	}

	e.deck[i].Flipped = true
	e.pending = append(e.pending, i)

	if len(e.pending) == 2 {
		e.moves++

		delay := e.mismatchDelay
		if e.deck[e.pending[0]].Image == e.deck[e.pending[1]].Image {
			delay = e.matchDelay
		}

		gen := e.generation
		e.cancel = e.scheduler.Schedule(delay, func() { e.resolve(gen) })
	}

	return true
}

func (e *Engine) resolve(gen uint64) {
	if gen != e.generation || len(e.pending) != 2 {
		return
	}
	e.cancel = nil

	a, b := e.pending[0], e.pending[1]
	if e.deck[a].Image == e.deck[b].Image {
		e.deck[a].Matched = true
		e.deck[b].Matched = true
		e.score += e.increment
	} else {
		e.deck[a].Flipped = false
		e.deck[b].Flipped = false
	}
	e.pending = e.pending[:0]

	e.checkWin()
}

func (e *Engine) checkWin() {
	if e.state != InProgress || len(e.deck) == 0 {
		return
	}
	for _, c := range e.deck {
		if !c.Matched {
			return
		}
	}
	e.state = Won
	e.timer.SetRunning(false)
}

// Tick advances the session clock by one second.
func (e *Engine) Tick() {
	e.timer.Tick()
}

func (e *Engine) State() State {
	return e.state
}

func (e *Engine) Generation() uint64 {
	return e.generation
}

// Snapshot is a copy of the session, safe to hand to other goroutines.
type Snapshot struct {
	State       State  `json:"state"`
	Cards       []Card `json:"cards"`
	Pending     []int  `json:"pending"`
	Moves       int    `json:"moves"`
	Score       int    `json:"score"`
	TimeSeconds int    `json:"time_seconds"`
	Generation  uint64 `json:"generation"`
}

func (e *Engine) Snapshot() Snapshot {
	cards := make([]Card, len(e.deck))
	copy(cards, e.deck)

	pending := make([]int, 0, len(e.pending))
	for _, i := range e.pending {
		pending = append(pending, e.deck[i].ID)
	}

	return Snapshot{
		State:       e.state,
		Cards:       cards,
		Pending:     pending,
		Moves:       e.moves,
		Score:       e.score,
		TimeSeconds: e.timer.Seconds(),
		Generation:  e.generation,
	}
}

func (e *Engine) index(id int) int {
	for i := range e.deck {
		if e.deck[i].ID == id {
			return i
		}
	}
	return -1
}

func uniq(images []string) []string {
	seen := make(map[string]bool, len(images))
	out := make([]string, 0, len(images))
	for _, img := range images {
		if img == "" || seen[img] {
			continue
		}
		seen[img] = true
		out = append(out, img)
	}
	return out
}

// Masked returns a copy with the faces of hidden cards blanked, so players
// only learn an image once its card is turned over.
func (s Snapshot) Masked() Snapshot {
	cards := make([]Card, len(s.Cards))
	for i, c := range s.Cards {
		if !c.Flipped && !c.Matched {
			c.Image = ""
		}
		cards[i] = c
	}
	s.Cards = cards
	return s
}
