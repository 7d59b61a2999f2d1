// Package wire defines the event protocol spoken between client and server:
// the closed set of event kinds, their payload types, and the envelope
// framing used on the websocket.
package wire

import "time"

// Kind identifies a wire event.
type Kind string

// Inbound event kinds (server to client).
const (
	KindNewMessage    Kind = "newMessage"
	KindSystemMessage Kind = "systemMessage"
	KindErrorMessage  Kind = "error"
	KindStartTime     Kind = "startTime"
	KindRemainingTime Kind = "remainingTime"
	KindGameState     Kind = "gameState"
)

// Outbound event kinds (client to server).
const (
	KindJoinRoom    Kind = "joinRoom"
	KindLeaveRoom   Kind = "leaveRoom"
	KindSendMessage Kind = "sendMessage"
	KindNextAction  Kind = "nextAction"
)

// ChatMessage is the wire form of a user chat message. The conversation
// field carries the routing identifier: a room name for well-known rooms,
// a game token for game conversations.
type ChatMessage struct {
	Content      string    `json:"content"`
	Conversation string    `json:"conversation"`
	From         string    `json:"from"`
	Date         time.Time `json:"date"`
}

// SystemMessage is an informational message emitted by the server for a
// conversation (joins, leaves, turn notices).
type SystemMessage struct {
	Content      string    `json:"content"`
	Date         time.Time `json:"date"`
	Conversation string    `json:"conversation"`
}

// SendMessagePayload is the outbound payload for KindSendMessage.
type SendMessagePayload struct {
	Content      string `json:"content"`
	Conversation string `json:"conversation"`
}

// Letter is a single tile letter with its point value.
type Letter struct {
	Char  string `json:"char"`
	Value int    `json:"value"`
}

// Tile is one board square: its bonus multiplicators and the letter
// placed on it, if any.
type Tile struct {
	LetterMultiplicator int    `json:"letterMultiplicator"`
	WordMultiplicator   int    `json:"wordMultiplicator"`
	Letter              Letter `json:"letterObject"`
}

// Player is the light view of a player inside a GameState snapshot.
type Player struct {
	Name       string   `json:"name"`
	Points     int      `json:"points"`
	LetterRack []Letter `json:"letterRack"`
}

// GameState is the authoritative full snapshot of a game. Each snapshot
// completely supersedes the previous one; there is no delta form.
type GameState struct {
	Players           []Player `json:"players"`
	ActivePlayerIndex int      `json:"activePlayerIndex"`
	Grid              [][]Tile `json:"grid"`
	LettersRemaining  int      `json:"lettersRemaining"`
	IsEndOfGame       bool     `json:"isEndOfGame"`
	WinnerIndex       []int    `json:"winnerIndex"`
}

// ActionType enumerates the player intents a client may emit.
type ActionType string

const (
	ActionPlace       ActionType = "place"
	ActionExchange    ActionType = "exchange"
	ActionPass        ActionType = "pass"
	ActionGainAPoint  ActionType = "gainAPoint"
	ActionSplitPoints ActionType = "splitPoints"
)

// Direction is the orientation of a placement on the grid.
type Direction string

const (
	DirectionHorizontal Direction = "H"
	DirectionVertical   Direction = "V"
)

// PlacementSetting locates a word placement on the grid.
type PlacementSetting struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Direction Direction `json:"direction"`
}

// OnlineAction is an outbound player intent. Only the fields relevant to
// the action type are set.
type OnlineAction struct {
	Type              ActionType        `json:"type"`
	PlacementSettings *PlacementSetting `json:"placementSettings,omitempty"`
	Letters           string            `json:"letters,omitempty"`
	LetterRack        []Letter          `json:"letterRack,omitempty"`
}

// validActionType reports whether t is a member of the closed action set.
func validActionType(t ActionType) bool {
	switch t {
	case ActionPlace, ActionExchange, ActionPass, ActionGainAPoint, ActionSplitPoints:
		return true
	}
	return false
}
