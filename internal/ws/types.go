package ws

import (
	"encoding/json"

	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/reconcile"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

// MessageType represents the different kinds of messages our system can handle
type MessageType string

const (
	// client -> server
	MessageTypeGetState MessageType = "getState"
	MessageTypeDoAction MessageType = "doAction"
	MessageTypeRollback MessageType = "rollback"

	// server -> client
	MessageTypeMatchState MessageType = "matchState"
	MessageTypeError      MessageType = "error"
)

// Message represents a WebSocket message in our system
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DoActionPayload submits one action. Base is the history length the client
// built the action on.
type DoActionPayload struct {
	Base   int          `json:"base"`
	Action rules.Action `json:"action"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// TimerView is a clock reading in seconds.
type TimerView struct {
	WhiteSeconds          float64          `json:"whiteSeconds"`
	BlackSeconds          float64          `json:"blackSeconds"`
	WhiteIncrementSeconds float64          `json:"whiteIncrementSeconds"`
	BlackIncrementSeconds float64          `json:"blackIncrementSeconds"`
	Active                rules.Color      `json:"active"`
	State                 model.ClockState `json:"state"`
}

type Profiles struct {
	White model.Profile `json:"white"`
	Black model.Profile `json:"black"`
}

// MatchState is the full state of a match as one subscriber sees it.
// Rollback tells the receiver to discard its local history instead of
// reconciling against it.
type MatchState struct {
	Key        string          `json:"key"`
	Actions    []rules.Action  `json:"actions"`
	Rollback   bool            `json:"rollback"`
	SideToMove rules.Color     `json:"sideToMove"`
	Timer      *TimerView      `json:"timer,omitempty"`
	Tempo      model.Tempo     `json:"tempo,omitempty"`
	Result     rules.Result    `json:"result"`
	Profiles   Profiles        `json:"profiles"`
	Locks      reconcile.Locks `json:"locks"`
}

// CompactMatchState carries the current position instead of the history.
type CompactMatchState struct {
	Key        string          `json:"key"`
	Notation   string          `json:"notation"`
	Length     int             `json:"length"`
	Rollback   bool            `json:"rollback"`
	SideToMove rules.Color     `json:"sideToMove"`
	Timer      *TimerView      `json:"timer,omitempty"`
	Tempo      model.Tempo     `json:"tempo,omitempty"`
	Result     rules.Result    `json:"result"`
	Profiles   Profiles        `json:"profiles"`
	Locks      reconcile.Locks `json:"locks"`
}

func timerView(v *model.ClockView) *TimerView {
	if v == nil {
		return nil
	}
	return &TimerView{
		WhiteSeconds:          v.White.Seconds(),
		BlackSeconds:          v.Black.Seconds(),
		WhiteIncrementSeconds: v.WhiteIncrement.Seconds(),
		BlackIncrementSeconds: v.BlackIncrement.Seconds(),
		Active:                v.Active,
		State:                 v.State,
	}
}

func NewMatchState(snap model.Snapshot, rollback bool) MatchState {
	actions := snap.Actions
	if actions == nil {
		actions = []rules.Action{}
	}
	return MatchState{
		Key:        snap.Key,
		Actions:    actions,
		Rollback:   rollback,
		SideToMove: snap.Position.SideToMove,
		Timer:      timerView(snap.Clock),
		Tempo:      snap.Tempo,
		Result:     snap.Result,
		Profiles:   Profiles{White: snap.Profiles[rules.White], Black: snap.Profiles[rules.Black]},
		Locks:      snap.Locks,
	}
}

func NewCompactMatchState(snap model.Snapshot, rollback bool) CompactMatchState {
	return CompactMatchState{
		Key:        snap.Key,
		Notation:   rules.Encode(snap.Position),
		Length:     len(snap.Actions),
		Rollback:   rollback,
		SideToMove: snap.Position.SideToMove,
		Timer:      timerView(snap.Clock),
		Tempo:      snap.Tempo,
		Result:     snap.Result,
		Profiles:   Profiles{White: snap.Profiles[rules.White], Black: snap.Profiles[rules.Black]},
		Locks:      snap.Locks,
	}
}

// Encode wraps payload in a message envelope.
func Encode(t MessageType, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: data}, nil
}
