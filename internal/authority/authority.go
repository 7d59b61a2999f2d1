// Package authority is the server's turn owner for game rooms. It is
// deliberately not a rules engine: it validates turn ownership only,
// advances turn order, runs the turn clock, and publishes full GameState
// snapshots. Scoring and placement legality are out of scope.
package authority

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgauthier/tilewire/internal/wire"
)

const (
	// boardSize is the side length of the tile grid.
	boardSize = 15

	// initialLetterCount is the size of the letter bag at game start.
	initialLetterCount = 88

	// splitDivisor is the share of the actor's points redistributed by a
	// splitPoints action (one quarter).
	splitDivisor = 4
)

var (
	// ErrNotYourTurn rejects an action from a player who does not own
	// the current turn.
	ErrNotYourTurn = errors.New("authority: not your turn")
	// ErrGameOver rejects actions on a finished game.
	ErrGameOver = errors.New("authority: game is over")
	// ErrUnknownPlayer rejects actions from a name not seated in the game.
	ErrUnknownPlayer = errors.New("authority: unknown player")
)

// Emitter delivers a wire event to every member of a game room.
type Emitter func(room string, kind wire.Kind, payload any)

// Game is one running game. All mutation happens under the lock; every
// accepted action produces a fresh full snapshot for broadcast.
type Game struct {
	token       string
	timePerTurn time.Duration
	emit        Emitter

	mu               sync.Mutex
	players          []wire.Player
	grid             [][]wire.Tile
	active           int
	lettersRemaining int
	ended            bool
	winners          []int
	passStreak       int
	turnSeq          int
}

// Manager owns the game table for one server process.
type Manager struct {
	emit Emitter

	mu    sync.Mutex
	games map[string]*Game
}

// NewManager creates a Manager that publishes game events through emit.
func NewManager(emit Emitter) *Manager {
	return &Manager{
		emit:  emit,
		games: make(map[string]*Game),
	}
}

// Create seats the named players in a new game and returns it. The game
// token doubles as the room and conversation identifier.
func (m *Manager) Create(playerNames []string, timePerTurn time.Duration) *Game {
	players := make([]wire.Player, len(playerNames))
	for i, name := range playerNames {
		players[i] = wire.Player{Name: name, LetterRack: []wire.Letter{}}
	}

	grid := make([][]wire.Tile, boardSize)
	for y := range grid {
		grid[y] = make([]wire.Tile, boardSize)
		for x := range grid[y] {
			grid[y][x] = wire.Tile{LetterMultiplicator: 1, WordMultiplicator: 1}
		}
	}

	g := &Game{
		token:            uuid.NewString(),
		timePerTurn:      timePerTurn,
		emit:             m.emit,
		players:          players,
		grid:             grid,
		lettersRemaining: initialLetterCount,
	}

	m.mu.Lock()
	m.games[g.token] = g
	m.mu.Unlock()
	return g
}

// Get returns the game for a token, or nil.
func (m *Manager) Get(token string) *Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[token]
}

// Remove deletes a game and stops its clock.
func (m *Manager) Remove(token string) {
	m.mu.Lock()
	g := m.games[token]
	delete(m.games, token)
	m.mu.Unlock()

	if g != nil {
		g.mu.Lock()
		g.ended = true
		g.turnSeq++
		g.mu.Unlock()
	}
}

// Token returns the game's room identifier.
func (g *Game) Token() string { return g.token }

// TimePerTurn returns the configured turn duration.
func (g *Game) TimePerTurn() time.Duration { return g.timePerTurn }

// Begin broadcasts the initial snapshot and starts the first turn clock.
func (g *Game) Begin() {
	g.mu.Lock()
	g.emit(g.token, wire.KindGameState, g.snapshotLocked())
	g.startTurnLocked()
	g.mu.Unlock()
}

// Apply validates and applies one player action. Accepted actions
// advance the turn and broadcast a new snapshot; rejected actions change
// nothing.
func (g *Game) Apply(playerName string, action wire.OnlineAction) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ended {
		return ErrGameOver
	}
	idx := -1
	for i, p := range g.players {
		if p.Name == playerName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownPlayer
	}
	if idx != g.active {
		return ErrNotYourTurn
	}

	g.applyLocked(action)
	return nil
}

// applyLocked applies an already-validated action for the active player,
// then either finishes the game or starts the next turn.
func (g *Game) applyLocked(action wire.OnlineAction) {
	switch action.Type {
	case wire.ActionPass:
		g.passStreak++
		// A full double round of passes ends the game.
		if g.passStreak >= 2*len(g.players) {
			g.finishLocked()
		}
	case wire.ActionPlace:
		g.passStreak = 0
		g.placeLocked(action)
		if g.lettersRemaining == 0 {
			g.finishLocked()
		}
	case wire.ActionExchange:
		// Letters return to the bag as new ones are drawn; the count is
		// unchanged.
		g.passStreak = 0
	case wire.ActionGainAPoint:
		g.passStreak = 0
		g.players[g.active].Points++
	case wire.ActionSplitPoints:
		g.passStreak = 0
		g.splitPointsLocked()
	}

	if !g.ended {
		g.active = (g.active + 1) % len(g.players)
		g.startTurnLocked()
	}
	g.emit(g.token, wire.KindGameState, g.snapshotLocked())
}

// placeLocked lays the action's letters on the grid and draws down the
// bag. No placement legality is checked here.
func (g *Game) placeLocked(action wire.OnlineAction) {
	drawn := len(action.Letters)
	if drawn > g.lettersRemaining {
		drawn = g.lettersRemaining
	}
	g.lettersRemaining -= drawn

	if action.PlacementSettings == nil {
		return
	}
	x, y := action.PlacementSettings.X, action.PlacementSettings.Y
	for _, ch := range action.Letters {
		if x < 0 || x >= boardSize || y < 0 || y >= boardSize {
			break
		}
		g.grid[y][x].Letter = wire.Letter{Char: string(ch), Value: 1}
		if action.PlacementSettings.Direction == wire.DirectionVertical {
			y++
		} else {
			x++
		}
	}
}

// splitPointsLocked redistributes a quarter of the actor's points evenly
// among the other players.
func (g *Game) splitPointsLocked() {
	if len(g.players) < 2 {
		return
	}
	share := g.players[g.active].Points / splitDivisor
	if share == 0 {
		return
	}
	g.players[g.active].Points -= share
	each := share / (len(g.players) - 1)
	for i := range g.players {
		if i != g.active {
			g.players[i].Points += each
		}
	}
}

// finishLocked flags the end of the game and computes winners by points.
func (g *Game) finishLocked() {
	g.ended = true
	g.turnSeq++

	best := 0
	for _, p := range g.players {
		if p.Points > best {
			best = p.Points
		}
	}
	g.winners = nil
	for i, p := range g.players {
		if p.Points == best {
			g.winners = append(g.winners, i)
		}
	}
}

// startTurnLocked announces a new turn and launches its clock.
func (g *Game) startTurnLocked() {
	g.turnSeq++
	g.emit(g.token, wire.KindStartTime, int(g.timePerTurn/time.Millisecond))
	go g.runTurnClock(g.turnSeq, g.timePerTurn)
}

// runTurnClock ticks remainingTime once per second for turn seq and
// forces a pass when the turn expires. It exits as soon as the turn it
// was started for is over.
func (g *Game) runTurnClock(seq int, remaining time.Duration) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		g.mu.Lock()
		if g.ended || g.turnSeq != seq {
			g.mu.Unlock()
			return
		}
		remaining -= time.Second
		g.emit(g.token, wire.KindRemainingTime, int(remaining/time.Millisecond))
		if remaining <= 0 {
			g.applyLocked(wire.OnlineAction{Type: wire.ActionPass})
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
	}
}

// Snapshot returns the current full game state.
func (g *Game) Snapshot() wire.GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() wire.GameState {
	players := make([]wire.Player, len(g.players))
	copy(players, g.players)

	grid := make([][]wire.Tile, len(g.grid))
	for y := range g.grid {
		grid[y] = append([]wire.Tile(nil), g.grid[y]...)
	}

	return wire.GameState{
		Players:           players,
		ActivePlayerIndex: g.active,
		Grid:              grid,
		LettersRemaining:  g.lettersRemaining,
		IsEndOfGame:       g.ended,
		WinnerIndex:       append([]int(nil), g.winners...),
	}
}
