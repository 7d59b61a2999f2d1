// Package game holds the client's view of the active game room: the
// authoritative snapshot, the turn timers, and outbound player actions.
package game

import (
	"sync"

	"github.com/mgauthier/tilewire/internal/broadcast"
	"github.com/mgauthier/tilewire/internal/rooms"
	"github.com/mgauthier/tilewire/internal/wire"
)

// millisPerSecond converts wire timer payloads to the seconds consumers
// display.
const millisPerSecond = 1000

// Timers is the pair of turn-timer counters. They are updated by
// dedicated timer events, independently of GameState delivery.
type Timers struct {
	TotalSeconds     int
	RemainingSeconds int
}

// Synchronizer reconciles the local game view with server snapshots. It
// never predicts: state changes only when an authoritative snapshot
// arrives. It is the sole mutator of the snapshot; consumers observe the
// published streams.
type Synchronizer struct {
	sender rooms.Sender

	mu     sync.Mutex
	token  string
	state  wire.GameState
	seeded bool
	timers Timers

	states   *broadcast.Broadcaster[wire.GameState]
	timersCh *broadcast.Broadcaster[Timers]
}

// NewSynchronizer creates a Synchronizer sending actions through sender.
func NewSynchronizer(sender rooms.Sender) *Synchronizer {
	return &Synchronizer{
		sender:   sender,
		states:   broadcast.New[wire.GameState](),
		timersCh: broadcast.New[Timers](),
	}
}

// Start binds the synchronizer to a game room and seeds both timer
// counters from the game's time-per-turn, so a countdown is displayable
// before the first startTime event arrives.
func (s *Synchronizer) Start(token string, timePerTurnMillis int) {
	s.mu.Lock()
	s.token = token
	s.state = wire.GameState{}
	s.seeded = false
	s.timers = Timers{
		TotalSeconds:     timePerTurnMillis / millisPerSecond,
		RemainingSeconds: timePerTurnMillis / millisPerSecond,
	}
	timers := s.timers
	s.mu.Unlock()
	s.timersCh.Publish(timers)
}

// Stop unbinds from the game room and discards the snapshot. Later game
// events are dropped until the next Start.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	s.token = ""
	s.state = wire.GameState{}
	s.seeded = false
	s.mu.Unlock()
}

// Token returns the bound game token, or "" when no game is joined.
func (s *Synchronizer) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// HandleState applies a full-replace snapshot. Snapshots arriving while
// no game room is joined are discarded.
func (s *Synchronizer) HandleState(state wire.GameState) {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.seeded = true
	s.mu.Unlock()
	s.states.Publish(state)
}

// HandleStartTime records a new turn's total time. Timer events may
// arrive before the first snapshot during room setup.
func (s *Synchronizer) HandleStartTime(millis int) {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.timers.TotalSeconds = millis / millisPerSecond
	timers := s.timers
	s.mu.Unlock()
	s.timersCh.Publish(timers)
}

// HandleRemainingTime records the remaining time in the current turn.
func (s *Synchronizer) HandleRemainingTime(millis int) {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.timers.RemainingSeconds = millis / millisPerSecond
	timers := s.timers
	s.mu.Unlock()
	s.timersCh.Publish(timers)
}

// EmitNextAction sends a turn intent. It is fire-and-forget: no local
// state changes until the next snapshot reflects the server's decision.
// Encode and connectivity failures surface to the caller.
func (s *Synchronizer) EmitNextAction(action wire.OnlineAction) error {
	return s.sender.Send(wire.KindNextAction, action)
}

// State returns the current snapshot and whether one has been received.
func (s *Synchronizer) State() (wire.GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.seeded
}

// Timers returns the current timer counters.
func (s *Synchronizer) Timers() Timers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers
}

// EndOfGame reports whether the latest snapshot flags game end. There is
// no separate terminal event.
func (s *Synchronizer) EndOfGame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded && s.state.IsEndOfGame
}

// Winners returns the winner indexes from the latest snapshot.
func (s *Synchronizer) Winners() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.state.WinnerIndex...)
}

// States exposes the snapshot stream. The latest snapshot is replayed to
// new subscribers.
func (s *Synchronizer) States() (<-chan wire.GameState, func()) {
	return s.states.Subscribe()
}

// TimerUpdates exposes the timer stream.
func (s *Synchronizer) TimerUpdates() (<-chan Timers, func()) {
	return s.timersCh.Subscribe()
}
