// Package playback drives the timed, auto-advancing viewer for one author's
// highlights.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

const (
	DefaultItemDuration = 5 * time.Second
	DefaultTickInterval = 100 * time.Millisecond

	// tap zones as a fraction of viewer width
	retreatZone = 0.3
	advanceZone = 0.7
)

var (
	ErrEmptyGroup      = errors.New("cannot open an empty highlight group")
	ErrIndexOutOfRange = errors.New("start index out of range")
)

type State int

const (
	Closed State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "closed"
	}
}

// session exists only while the viewer is open
type session struct {
	authorID  string
	items     []*highlights.Item
	index     int
	progress  float64
	startedAt time.Time
	// elapsed is frozen while paused
	elapsed time.Duration
}

// Snapshot is an immutable view of the player
type Snapshot struct {
	State        State
	AuthorID     string
	Items        []*highlights.Item
	CurrentIndex int
	Current      *highlights.Item
	Progress     float64
	IsPlaying    bool
	StartedAt    time.Time
}

type Option func(*Player)

func WithClock(clock clockwork.Clock) Option {
	return func(p *Player) { p.clock = clock }
}

func WithItemDuration(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.itemDuration = d
		}
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.tickInterval = d
		}
	}
}

// WithObserver is called with a snapshot after every transition and tick
func WithObserver(fn func(Snapshot)) Option {
	return func(p *Player) { p.observer = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Player) { p.logger = logger }
}

// Player is the playback state machine. It is safe for concurrent use;
// the ticker goroutine and callers share one mutex.
type Player struct {
	clock        clockwork.Clock
	itemDuration time.Duration
	tickInterval time.Duration
	observer     func(Snapshot)
	logger       *zap.Logger

	mu         sync.Mutex
	state      State
	session    *session
	tickerGen  uint64
	stopTicker context.CancelFunc
}

func NewPlayer(opts ...Option) *Player {
	p := &Player{
		clock:        clockwork.NewRealClock(),
		itemDuration: DefaultItemDuration,
		tickInterval: DefaultTickInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Open starts playing group at startIndex, replacing any open session
func (p *Player) Open(group *highlights.AuthorGroup, startIndex int) error {
	if group == nil || len(group.Items) == 0 {
		return ErrEmptyGroup
	}
	items := group.PlaybackOrder()
	if startIndex < 0 || startIndex >= len(items) {
		return ErrIndexOutOfRange
	}

	p.mu.Lock()
	p.stopTickerLocked()
	p.session = &session{
		authorID:  group.AuthorID,
		items:     items,
		index:     startIndex,
		startedAt: p.clock.Now(),
	}
	p.state = Playing
	p.startTickerLocked()
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Debug("playback opened",
		zap.String("author_id", group.AuthorID),
		zap.Int("items", len(items)),
		zap.Int("start_index", startIndex),
	)
	p.notify(snap)
	return nil
}

// Advance moves to the next item, closing the viewer after the last one
func (p *Player) Advance() {
	p.transition(func() bool { return p.advanceLocked() })
}

// Retreat moves to the previous item; at the first item it does nothing
func (p *Player) Retreat() {
	p.transition(func() bool {
		if p.state == Closed || p.session.index == 0 {
			return false
		}
		p.session.index--
		p.resetWindowLocked()
		return true
	})
}

// TogglePlay switches between playing and paused
func (p *Player) TogglePlay() {
	p.transition(func() bool {
		now := p.clock.Now()
		switch p.state {
		case Playing:
			p.session.elapsed = now.Sub(p.session.startedAt)
			p.session.progress = p.progressFor(p.session.elapsed, p.session.progress)
			p.state = Paused
			p.stopTickerLocked()
		case Paused:
			p.session.startedAt = now.Add(-p.session.elapsed)
			p.state = Playing
			p.startTickerLocked()
		default:
			return false
		}
		return true
	})
}

// Close ends the session and releases the ticker
func (p *Player) Close() {
	p.transition(func() bool {
		if p.state == Closed {
			return false
		}
		p.closeLocked()
		return true
	})
}

// Tick recomputes progress from the clock. The ticker goroutine calls it on
// every interval; calling it directly is equivalent.
func (p *Player) Tick() {
	p.mu.Lock()
	gen := p.tickerGen
	p.mu.Unlock()
	p.tick(gen)
}

func (p *Player) tick(gen uint64) {
	p.transition(func() bool {
		if gen != p.tickerGen || p.state != Playing {
			return false
		}
		elapsed := p.clock.Since(p.session.startedAt)
		p.session.progress = p.progressFor(elapsed, p.session.progress)
		if p.session.progress >= 100 {
			p.advanceLocked()
		}
		return true
	})
}

// HandleTap maps a tap at x within a viewer of the given width
func (p *Player) HandleTap(x, width float64) {
	if width <= 0 {
		return
	}
	switch ratio := x / width; {
	case ratio < retreatZone:
		p.Retreat()
	case ratio > advanceZone:
		p.Advance()
	}
}

// HandleKey maps a keyboard key name and reports whether it was handled
func (p *Player) HandleKey(key string) bool {
	switch key {
	case "ArrowLeft":
		p.Retreat()
	case "ArrowRight":
		p.Advance()
	case "Escape":
		p.Close()
	case " ", "Space", "Spacebar":
		p.TogglePlay()
	default:
		return false
	}
	return true
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Player) transition(fn func() bool) {
	p.mu.Lock()
	changed := fn()
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if changed {
		p.notify(snap)
	}
}

func (p *Player) advanceLocked() bool {
	if p.state == Closed {
		return false
	}
	if p.session.index >= len(p.session.items)-1 {
		p.closeLocked()
		return true
	}
	p.session.index++
	p.resetWindowLocked()
	return true
}

func (p *Player) resetWindowLocked() {
	p.session.progress = 0
	p.session.elapsed = 0
	p.session.startedAt = p.clock.Now()
}

func (p *Player) closeLocked() {
	p.stopTickerLocked()
	p.session = nil
	p.state = Closed
}

func (p *Player) progressFor(elapsed time.Duration, current float64) float64 {
	progress := float64(elapsed) * 100 / float64(p.itemDuration)
	if progress > 100 {
		progress = 100
	}
	if progress < current {
		return current
	}
	return progress
}

func (p *Player) startTickerLocked() {
	p.stopTickerLocked()
	p.tickerGen++
	gen := p.tickerGen

	ctx, cancel := context.WithCancel(context.Background())
	p.stopTicker = cancel
	ticker := p.clock.NewTicker(p.tickInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				p.tick(gen)
			}
		}
	}()
}

// stopTickerLocked also invalidates ticks already in flight
func (p *Player) stopTickerLocked() {
	if p.stopTicker != nil {
		p.stopTicker()
		p.stopTicker = nil
	}
	p.tickerGen++
}

func (p *Player) snapshotLocked() Snapshot {
	if p.state == Closed || p.session == nil {
		return Snapshot{State: Closed}
	}
	s := p.session
	items := make([]*highlights.Item, len(s.items))
	copy(items, s.items)
	return Snapshot{
		State:        p.state,
		AuthorID:     s.authorID,
		Items:        items,
		CurrentIndex: s.index,
		Current:      s.items[s.index],
		Progress:     s.progress,
		IsPlaying:    p.state == Playing,
		StartedAt:    s.startedAt,
	}
}

func (p *Player) notify(snap Snapshot) {
	if p.observer != nil {
		p.observer(snap)
	}
}
