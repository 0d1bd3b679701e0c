package rules

import (
	"encoding/json"
	"fmt"
)

type ActionKind string

const (
	KindLift    ActionKind = "lift"
	KindPlace   ActionKind = "place"
	KindPromote ActionKind = "promote"
)

// Action is one atomic step of a turn.
type Action struct {
	Kind   ActionKind
	Square Square
	Piece  PieceType
}

func Lift(s Square) Action { return Action{Kind: KindLift, Square: s} }
func Place(s Square) Action { return Action{Kind: KindPlace, Square: s} }
func Promote(p PieceType) Action { return Action{Kind: KindPromote, Square: NoSquare, Piece: p} }

func (a Action) String() string {
	if a.Kind == KindPromote {
		return fmt.Sprintf("promote(%s)", a.Piece)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.Square)
}

type actionJSON struct {
	Kind   ActionKind `json:"kind"`
	Square *Square    `json:"square,omitempty"`
	Piece  *PieceType `json:"piece,omitempty"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	out := actionJSON{Kind: a.Kind}
	switch a.Kind {
	case KindLift, KindPlace:
		sq := a.Square
		out.Square = &sq
	case KindPromote:
		p := a.Piece
		out.Piece = &p
	default:
		return nil, fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return json.Marshal(out)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var in actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case KindLift, KindPlace:
		if in.Square == nil {
			return fmt.Errorf("%s action without square", in.Kind)
		}
		*a = Action{Kind: in.Kind, Square: *in.Square}
	case KindPromote:
		if in.Piece == nil {
			return fmt.Errorf("promote action without piece")
		}
		*a = Promote(*in.Piece)
	default:
		return fmt.Errorf("unknown action kind %q", in.Kind)
	}
	return nil
}

// Options select the rule variants a match is played with.
type Options struct {
	Chain ChainRule `json:"chainRule"`
	// DrawAfterRepetitions draws when a turn-boundary position occurs this
	// many times. Zero disables the rule.
	DrawAfterRepetitions int `json:"drawAfterRepetitions"`
	// NoProgressHalfMoves draws once this many half-moves pass without a
	// union. Zero disables the rule.
	NoProgressHalfMoves int `json:"noProgressHalfMoves"`
}

type ChainRule uint8

const (
	// ChainMandatory forces a chain to continue while a continuation exists.
	ChainMandatory ChainRule = iota
	// ChainOptional lets the mover end a chain by placing back on the union.
	ChainOptional
)

func ParseChainRule(str string) (ChainRule, error) {
	switch str {
	case "", "mandatory":
		return ChainMandatory, nil
	case "optional":
		return ChainOptional, nil
	}
	return ChainMandatory, fmt.Errorf("invalid chain rule %q", str)
}

func (r ChainRule) String() string {
	if r == ChainOptional {
		return "optional"
	}
	return "mandatory"
}

func (r ChainRule) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *ChainRule) UnmarshalText(text []byte) error {
	parsed, err := ParseChainRule(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func DefaultOptions() Options {
	return Options{
		Chain:                ChainMandatory,
		DrawAfterRepetitions: 3,
		NoProgressHalfMoves:  100,
	}
}
