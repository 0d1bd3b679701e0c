package rules

import (
	"fmt"
	"math/bits"
)

// Square indexes the board from a1 (0) to h8 (63), rank-major.
type Square int8

const NoSquare Square = -1

func NewSquare(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare
	}
	return Square(rank*8 + file)
}

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) Valid() bool { return s >= 0 && s < 64 }

// Offset returns the square df files and dr ranks away, or NoSquare when it
// would leave the board.
func (s Square) Offset(df, dr int) Square {
	return NewSquare(s.File()+df, s.Rank()+dr)
}

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return fmt.Sprintf("%c%d", 'a'+s.File(), s.Rank()+1)
}

// ParseSquare reads algebraic squares such as "e4".
func ParseSquare(str string) (Square, error) {
	if len(str) != 2 || str[0] < 'a' || str[0] > 'h' || str[1] < '1' || str[1] > '8' {
		return NoSquare, fmt.Errorf("invalid square %q", str)
	}
	return NewSquare(int(str[0]-'a'), int(str[1]-'1')), nil
}

func (s Square) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid square %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Square) UnmarshalText(text []byte) error {
	sq, err := ParseSquare(string(text))
	if err != nil {
		return err
	}
	*s = sq
	return nil
}

type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Other() Color { return c ^ 1 }

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// forward is the rank direction pawns of this color advance in.
func (c Color) forward() int {
	if c == White {
		return 1
	}
	return -1
}

// homeRank is the back rank, 0 for white and 7 for black.
func (c Color) homeRank() int {
	if c == White {
		return 0
	}
	return 7
}

func ParseColor(str string) (Color, error) {
	switch str {
	case "white":
		return White, nil
	case "black":
		return Black, nil
	}
	return White, fmt.Errorf("invalid color %q", str)
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type PieceType uint8

const (
	NoPiece PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

var pieceNames = [...]string{"", "pawn", "knight", "bishop", "rook", "queen", "king"}

func (p PieceType) String() string {
	if int(p) < len(pieceNames) {
		return pieceNames[p]
	}
	return fmt.Sprintf("piece(%d)", p)
}

func ParsePieceType(str string) (PieceType, error) {
	for i, name := range pieceNames {
		if i > 0 && name == str {
			return PieceType(i), nil
		}
	}
	return NoPiece, fmt.Errorf("invalid piece %q", str)
}

func (p PieceType) MarshalText() ([]byte, error) {
	if p == NoPiece || int(p) >= len(pieceNames) {
		return nil, fmt.Errorf("invalid piece %d", p)
	}
	return []byte(p.String()), nil
}

func (p *PieceType) UnmarshalText(text []byte) error {
	parsed, err := ParsePieceType(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Occupancy is what stands on one square: at most one white and one black
// piece. Both slots filled means the square holds a union.
type Occupancy struct {
	White PieceType
	Black PieceType
}

func (o Occupancy) IsEmpty() bool { return o.White == NoPiece && o.Black == NoPiece }
func (o Occupancy) IsUnion() bool { return o.White != NoPiece && o.Black != NoPiece }

func (o Occupancy) Piece(c Color) PieceType {
	if c == White {
		return o.White
	}
	return o.Black
}

func (o Occupancy) Has(c Color) bool { return o.Piece(c) != NoPiece }

func (o *Occupancy) set(c Color, p PieceType) {
	if c == White {
		o.White = p
	} else {
		o.Black = p
	}
}

func (o *Occupancy) clear(c Color) { o.set(c, NoPiece) }

// Bitboard is a set of squares.
type Bitboard uint64

func (b Bitboard) Has(s Square) bool { return s.Valid() && b&(1<<uint(s)) != 0 }
func (b Bitboard) With(s Square) Bitboard { return b | 1<<uint(s) }
func (b Bitboard) Count() int { return bits.OnesCount64(uint64(b)) }
func (b Bitboard) Empty() bool { return b == 0 }

// Squares lists the members in ascending order.
func (b Bitboard) Squares() []Square {
	out := make([]Square, 0, b.Count())
	for b != 0 {
		idx := bits.TrailingZeros64(uint64(b))
		out = append(out, Square(idx))
		b &= b - 1
	}
	return out
}
