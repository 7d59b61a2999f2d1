package wire

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON structure framing every wire event.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeError reports a malformed inbound frame. Callers drop the single
// offending frame and continue; a decode failure never tears down the
// session.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("wire: decode: %v", e.Err)
	}
	return fmt.Sprintf("wire: decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports an outbound payload that could not be encoded. It is
// returned synchronously to the caller; nothing is sent.
type EncodeError struct {
	Kind Kind
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("wire: encode %s: %v", e.Kind, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Event is a decoded wire event. The concrete type is determined by the
// event kind; consumers dispatch with a type switch.
type Event interface {
	Kind() Kind
}

// JoinRoomEvent is a client's request to join a room.
type JoinRoomEvent struct {
	Room string
}

func (JoinRoomEvent) Kind() Kind { return KindJoinRoom }

// LeaveRoomEvent is a client's request to leave a room.
type LeaveRoomEvent struct {
	Room string
}

func (LeaveRoomEvent) Kind() Kind { return KindLeaveRoom }

// SendMessageEvent is a client's outbound chat message.
type SendMessageEvent struct {
	Payload SendMessagePayload
}

func (SendMessageEvent) Kind() Kind { return KindSendMessage }

// NextActionEvent is a client's turn intent.
type NextActionEvent struct {
	Action OnlineAction
}

func (NextActionEvent) Kind() Kind { return KindNextAction }

// NewMessageEvent carries a user chat message.
type NewMessageEvent struct {
	Message ChatMessage
}

func (NewMessageEvent) Kind() Kind { return KindNewMessage }

// SystemMessageEvent carries a server informational message.
type SystemMessageEvent struct {
	Message SystemMessage
}

func (SystemMessageEvent) Kind() Kind { return KindSystemMessage }

// ErrorMessageEvent carries a server-pushed error string. It is not
// room-scoped.
type ErrorMessageEvent struct {
	Content string
}

func (ErrorMessageEvent) Kind() Kind { return KindErrorMessage }

// StartTimeEvent carries the total turn time in milliseconds.
type StartTimeEvent struct {
	Millis int
}

func (StartTimeEvent) Kind() Kind { return KindStartTime }

// RemainingTimeEvent carries the remaining turn time in milliseconds.
type RemainingTimeEvent struct {
	Millis int
}

func (RemainingTimeEvent) Kind() Kind { return KindRemainingTime }

// GameStateEvent carries a full authoritative game snapshot.
type GameStateEvent struct {
	State GameState
}

func (GameStateEvent) Kind() Kind { return KindGameState }

// Decode parses a raw frame into a typed event. Unknown kinds and
// malformed payloads fail with a *DecodeError.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	kind := Kind(env.Event)
	switch kind {
	case KindNewMessage:
		var msg ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return NewMessageEvent{Message: msg}, nil
	case KindSystemMessage:
		var msg SystemMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return SystemMessageEvent{Message: msg}, nil
	case KindErrorMessage:
		var content string
		if err := json.Unmarshal(env.Payload, &content); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return ErrorMessageEvent{Content: content}, nil
	case KindStartTime:
		var ms int
		if err := json.Unmarshal(env.Payload, &ms); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return StartTimeEvent{Millis: ms}, nil
	case KindRemainingTime:
		var ms int
		if err := json.Unmarshal(env.Payload, &ms); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return RemainingTimeEvent{Millis: ms}, nil
	case KindGameState:
		var state GameState
		if err := json.Unmarshal(env.Payload, &state); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return GameStateEvent{State: state}, nil
	case KindJoinRoom:
		var room string
		if err := json.Unmarshal(env.Payload, &room); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return JoinRoomEvent{Room: room}, nil
	case KindLeaveRoom:
		var room string
		if err := json.Unmarshal(env.Payload, &room); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return LeaveRoomEvent{Room: room}, nil
	case KindSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return SendMessageEvent{Payload: p}, nil
	case KindNextAction:
		var action OnlineAction
		if err := json.Unmarshal(env.Payload, &action); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return NextActionEvent{Action: action}, nil
	default:
		return nil, &DecodeError{Kind: kind, Err: fmt.Errorf("unknown event kind %q", env.Event)}
	}
}

// Encode frames an outbound event. The payload is validated against the
// kind; failures return a *EncodeError and nothing is sent.
func Encode(kind Kind, payload any) ([]byte, error) {
	switch kind {
	case KindJoinRoom, KindLeaveRoom:
		if _, ok := payload.(string); !ok {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("payload must be a room identifier string, got %T", payload)}
		}
	case KindSendMessage:
		if _, ok := payload.(SendMessagePayload); !ok {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("payload must be a SendMessagePayload, got %T", payload)}
		}
	case KindNextAction:
		action, ok := payload.(OnlineAction)
		if !ok {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("payload must be an OnlineAction, got %T", payload)}
		}
		if !validActionType(action.Type) {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("unknown action type %q", action.Type)}
		}
	case KindNewMessage:
		if _, ok := payload.(ChatMessage); !ok {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("payload must be a ChatMessage, got %T", payload)}
		}
	case KindSystemMessage:
		if _, ok := payload.(SystemMessage); !ok {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("payload must be a SystemMessage, got %T", payload)}
		}
	case KindErrorMessage:
		if _, ok := payload.(string); !ok {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("payload must be a string, got %T", payload)}
		}
	case KindStartTime, KindRemainingTime:
		if _, ok := payload.(int); !ok {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("payload must be a millisecond count, got %T", payload)}
		}
	case KindGameState:
		if _, ok := payload.(GameState); !ok {
			return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("payload must be a GameState, got %T", payload)}
		}
	default:
		return nil, &EncodeError{Kind: kind, Err: fmt.Errorf("unknown event kind")}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &EncodeError{Kind: kind, Err: err}
	}
	frame, err := json.Marshal(Envelope{Event: string(kind), Payload: data})
	if err != nil {
		return nil, &EncodeError{Kind: kind, Err: err}
	}
	return frame, nil
}
