package rules

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalAction     = errors.New("illegal action")
	ErrMalformedNotation = errors.New("malformed notation")
)

// Reason says why an action was rejected.
type Reason string

const (
	ReasonWrongPhase       Reason = "action not allowed in this phase"
	ReasonOffBoard         Reason = "square off the board"
	ReasonEmptySquare      Reason = "no piece on square"
	ReasonWrongColor       Reason = "piece belongs to the opponent"
	ReasonImmobile         Reason = "piece has no legal placement"
	ReasonOwnPiece         Reason = "square holds a piece of the same color"
	ReasonBlocked          Reason = "path is blocked"
	ReasonUnreachable      Reason = "square not reachable by this piece"
	ReasonChainCapture     Reason = "chain continuation must unite with an opponent piece"
	ReasonInvalidPromotion Reason = "invalid promotion piece"
	ReasonGameOver         Reason = "game is over"
)

type IllegalActionError struct {
	Action Action
	Reason Reason
}

func (e *IllegalActionError) Error() string {
	return fmt.Sprintf("illegal action %s: %s", e.Action, e.Reason)
}

func (e *IllegalActionError) Unwrap() error { return ErrIllegalAction }

func illegal(a Action, r Reason) error {
	return &IllegalActionError{Action: a, Reason: r}
}

// NotationError describes why a notation string could not be decoded.
type NotationError struct {
	Input  string
	Detail string
}

func (e *NotationError) Error() string {
	return fmt.Sprintf("malformed notation %q: %s", e.Input, e.Detail)
}

func (e *NotationError) Unwrap() error { return ErrMalformedNotation }
