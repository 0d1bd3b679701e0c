package rules

type delta struct{ df, dr int }

var (
	orthogonal = []delta{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonal   = []delta{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	allDirs    = append(append([]delta{}, orthogonal...), diagonal...)
	knightJump = []delta{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
)

func slideDirs(p PieceType) []delta {
	switch p {
	case Rook:
		return orthogonal
	case Bishop:
		return diagonal
	case Queen:
		return allDirs
	}
	return nil
}

func pawnStartRank(c Color) int {
	if c == White {
		return 1
	}
	return 6
}

// uniteable is a single opponent piece that a mover piece may join.
func uniteable(occ Occupancy, mover Color) bool {
	return occ.Has(mover.Other()) && !occ.Has(mover)
}

// targets lists the squares a piece of type piece standing (or held) at from
// may be placed on, moving with mover's orientation. With capturesOnly set,
// only placements that form a union are returned and en passant is ignored.
func targets(pos *Position, from Square, piece PieceType, mover Color, capturesOnly bool) Bitboard {
	var set Bitboard
	switch piece {
	case Pawn:
		fwd := mover.forward()
		if !capturesOnly {
			one := from.Offset(0, fwd)
			if one.Valid() && pos.Board[one].IsEmpty() {
				set = set.With(one)
				two := from.Offset(0, 2*fwd)
				if from.Rank() == pawnStartRank(mover) && pos.Board[two].IsEmpty() {
					set = set.With(two)
				}
			}
		}
		for _, df := range []int{-1, 1} {
			t := from.Offset(df, fwd)
			if !t.Valid() {
				continue
			}
			if uniteable(pos.Board[t], mover) {
				set = set.With(t)
			} else if !capturesOnly && t == pos.EnPassant && pos.Board[t].IsEmpty() {
				if passed := t.Offset(0, -fwd); passed.Valid() && pos.Board[passed].Piece(mover.Other()) == Pawn && !pos.Board[passed].Has(mover) {
					set = set.With(t)
				}
			}
		}
	case Knight:
		for _, d := range knightJump {
			t := from.Offset(d.df, d.dr)
			if !t.Valid() {
				continue
			}
			occ := pos.Board[t]
			if uniteable(occ, mover) || (!capturesOnly && occ.IsEmpty()) {
				set = set.With(t)
			}
		}
	case King:
		if capturesOnly {
			return 0
		}
		for _, d := range allDirs {
			if t := from.Offset(d.df, d.dr); t.Valid() && pos.Board[t].IsEmpty() {
				set = set.With(t)
			}
		}
		set |= castlingTargets(pos, from, mover)
	case Bishop, Rook, Queen:
		for _, d := range slideDirs(piece) {
			for t := from.Offset(d.df, d.dr); t.Valid(); t = t.Offset(d.df, d.dr) {
				occ := pos.Board[t]
				if occ.IsEmpty() {
					if !capturesOnly {
						set = set.With(t)
					}
					continue
				}
				if uniteable(occ, mover) {
					set = set.With(t)
				}
				break
			}
		}
	}
	return set
}

func castlingTargets(pos *Position, from Square, mover Color) Bitboard {
	rank := mover.homeRank()
	if from != NewSquare(4, rank) {
		return 0
	}
	var set Bitboard
	soloRook := func(s Square) bool {
		occ := pos.Board[s]
		return occ.Piece(mover) == Rook && !occ.Has(mover.Other())
	}
	safe := func(files ...int) bool {
		for _, f := range files {
			if threatened(pos, NewSquare(f, rank), mover.Other()) {
				return false
			}
		}
		return true
	}
	empty := func(files ...int) bool {
		for _, f := range files {
			if !pos.Board[NewSquare(f, rank)].IsEmpty() {
				return false
			}
		}
		return true
	}
	if pos.Castling&kingSide(mover) != 0 && empty(5, 6) && soloRook(NewSquare(7, rank)) && safe(4, 5, 6) {
		set = set.With(NewSquare(6, rank))
	}
	if pos.Castling&queenSide(mover) != 0 && empty(1, 2, 3) && soloRook(NewSquare(0, rank)) && safe(4, 3, 2) {
		set = set.With(NewSquare(2, rank))
	}
	return set
}

// threatened reports whether some piece of color by could unite on s if s
// held a single opponent piece. Kings never threaten.
func threatened(pos *Position, s Square, by Color) bool {
	for _, df := range []int{-1, 1} {
		if t := s.Offset(df, -by.forward()); t.Valid() && pos.Board[t].Piece(by) == Pawn {
			return true
		}
	}
	for _, d := range knightJump {
		if t := s.Offset(d.df, d.dr); t.Valid() && pos.Board[t].Piece(by) == Knight {
			return true
		}
	}
	scan := func(dirs []delta, line PieceType) bool {
		for _, d := range dirs {
			for t := s.Offset(d.df, d.dr); t.Valid(); t = t.Offset(d.df, d.dr) {
				occ := pos.Board[t]
				if occ.IsEmpty() {
					continue
				}
				if p := occ.Piece(by); p == line || p == Queen {
					return true
				}
				break
			}
		}
		return false
	}
	return scan(orthogonal, Rook) || scan(diagonal, Bishop)
}

// reaches reports whether the move shape from -> to fits the piece, ignoring
// everything standing on the board.
func reaches(from, to Square, piece PieceType, mover Color) bool {
	df, dr := to.File()-from.File(), to.Rank()-from.Rank()
	if df == 0 && dr == 0 {
		return false
	}
	adf, adr := abs(df), abs(dr)
	switch piece {
	case Pawn:
		fwd := mover.forward()
		if df == 0 {
			return dr == fwd || (dr == 2*fwd && from.Rank() == pawnStartRank(mover))
		}
		return adf == 1 && dr == fwd
	case Knight:
		return (adf == 1 && adr == 2) || (adf == 2 && adr == 1)
	case King:
		if adf <= 1 && adr <= 1 {
			return true
		}
		return dr == 0 && adf == 2 && from == NewSquare(4, mover.homeRank())
	case Rook:
		return df == 0 || dr == 0
	case Bishop:
		return adf == adr
	case Queen:
		return df == 0 || dr == 0 || adf == adr
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
