package rules

// Phase is where the side to move stands inside its turn.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseHolding
	PhasePromotion
	PhaseChain
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseHolding:
		return "holding"
	case PhasePromotion:
		return "promotion"
	case PhaseChain:
		return "chain"
	}
	return "unknown"
}

// Hand is the lifted piece. It always belongs to the side to move.
type Hand struct {
	Piece PieceType
	From  Square
}

func (h Hand) Empty() bool { return h.Piece == NoPiece }

// Castling holds the remaining castling rights.
type Castling uint8

const (
	WhiteQueenSide Castling = 1 << iota
	WhiteKingSide
	BlackQueenSide
	BlackKingSide

	AllCastling = WhiteQueenSide | WhiteKingSide | BlackQueenSide | BlackKingSide
)

func queenSide(c Color) Castling {
	if c == White {
		return WhiteQueenSide
	}
	return BlackQueenSide
}

func kingSide(c Color) Castling {
	if c == White {
		return WhiteKingSide
	}
	return BlackKingSide
}

// Position is a complete game state. It is a plain value: copies are
// independent, and two positions compare equal exactly when they describe
// the same state.
type Position struct {
	Board      [64]Occupancy
	SideToMove Color
	Phase      Phase
	Hand       Hand
	Castling   Castling
	HalfMove   int
	EnPassant  Square
	// Promotion is the square of the pawn awaiting promotion.
	Promotion Square
	// Chain is the set of union squares created during the current turn.
	Chain Bitboard
}

var backRank = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// EmptyPosition is a board without pieces, white to move.
func EmptyPosition() Position {
	return Position{
		Hand:      Hand{From: NoSquare},
		EnPassant: NoSquare,
		Promotion: NoSquare,
	}
}

func InitialPosition() Position {
	pos := EmptyPosition()
	pos.Castling = AllCastling
	for file := 0; file < 8; file++ {
		pos.Board[NewSquare(file, 0)].White = backRank[file]
		pos.Board[NewSquare(file, 1)].White = Pawn
		pos.Board[NewSquare(file, 6)].Black = Pawn
		pos.Board[NewSquare(file, 7)].Black = backRank[file]
	}
	return pos
}

func (p *Position) At(s Square) Occupancy { return p.Board[s] }

// KingUnited reports the color whose king stands in a union, if any.
func (p *Position) KingUnited() (Color, bool) {
	for _, occ := range p.Board {
		if !occ.IsUnion() {
			continue
		}
		if occ.White == King {
			return White, true
		}
		if occ.Black == King {
			return Black, true
		}
	}
	return White, false
}

// owns reports whether c holds a piece matching keep, on the board or in hand.
func (p *Position) owns(c Color, keep func(PieceType) bool) bool {
	if p.SideToMove == c && keep(p.Hand.Piece) {
		return true
	}
	for _, occ := range p.Board {
		if keep(occ.Piece(c)) {
			return true
		}
	}
	return false
}

// OnlyKing reports whether c has nothing left but its king.
func (p *Position) OnlyKing(c Color) bool {
	return !p.owns(c, func(t PieceType) bool { return t != NoPiece && t != King })
}
