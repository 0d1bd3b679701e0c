package rules

// Apply validates a against pos and returns the successor position. pos is
// never modified; on error the returned position is the zero value.
func Apply(pos Position, a Action, opts Options) (Position, error) {
	if _, ok := pos.KingUnited(); ok {
		return Position{}, illegal(a, ReasonGameOver)
	}
	if noProgress(&pos, opts) {
		return Position{}, illegal(a, ReasonGameOver)
	}
	switch a.Kind {
	case KindLift:
		return lift(pos, a)
	case KindPlace:
		return place(pos, a, opts)
	case KindPromote:
		return promote(pos, a)
	}
	return Position{}, illegal(a, ReasonWrongPhase)
}

func noProgress(pos *Position, opts Options) bool {
	return opts.NoProgressHalfMoves > 0 && pos.Phase == PhaseIdle && pos.HalfMove >= opts.NoProgressHalfMoves
}

func lift(pos Position, a Action) (Position, error) {
	if pos.Phase != PhaseIdle {
		return Position{}, illegal(a, ReasonWrongPhase)
	}
	if !a.Square.Valid() {
		return Position{}, illegal(a, ReasonOffBoard)
	}
	mover := pos.SideToMove
	occ := pos.Board[a.Square]
	if !occ.Has(mover) {
		if occ.Has(mover.Other()) {
			return Position{}, illegal(a, ReasonWrongColor)
		}
		return Position{}, illegal(a, ReasonEmptySquare)
	}
	piece := occ.Piece(mover)
	next := pos
	next.Board[a.Square].clear(mover)
	if targets(&next, a.Square, piece, mover, false).Empty() {
		return Position{}, illegal(a, ReasonImmobile)
	}
	if piece == Rook {
		next.Castling &^= cornerRight(a.Square, mover)
	}
	next.Hand = Hand{Piece: piece, From: a.Square}
	next.Phase = PhaseHolding
	return next, nil
}

// cornerRight is the castling right tied to a rook standing on s, if s is
// one of c's rook corners.
func cornerRight(s Square, c Color) Castling {
	switch s {
	case NewSquare(0, c.homeRank()):
		return queenSide(c)
	case NewSquare(7, c.homeRank()):
		return kingSide(c)
	}
	return 0
}

// placeTargets is the set of legal Place squares in a holding or chain phase.
func placeTargets(pos *Position, opts Options) Bitboard {
	mover := pos.SideToMove
	switch pos.Phase {
	case PhaseHolding:
		return targets(pos, pos.Hand.From, pos.Hand.Piece, mover, false)
	case PhaseChain:
		set := chainTargets(pos)
		if opts.Chain == ChainOptional {
			set = set.With(pos.Hand.From)
		}
		return set
	}
	return 0
}

// chainTargets are the continuations of a chain: unions reachable from the
// last union square with either the held piece's geometry or its former
// partner's, never revisiting a union square of this turn.
func chainTargets(pos *Position) Bitboard {
	mover := pos.SideToMove
	from := pos.Hand.From
	partner := pos.Board[from].Piece(mover.Other())
	set := targets(pos, from, pos.Hand.Piece, mover, true)
	if partner != NoPiece && partner != pos.Hand.Piece {
		set |= targets(pos, from, partner, mover, true)
	}
	return set &^ pos.Chain
}

func place(pos Position, a Action, opts Options) (Position, error) {
	if pos.Phase != PhaseHolding && pos.Phase != PhaseChain {
		return Position{}, illegal(a, ReasonWrongPhase)
	}
	if !a.Square.Valid() {
		return Position{}, illegal(a, ReasonOffBoard)
	}
	dst := a.Square
	if !placeTargets(&pos, opts).Has(dst) {
		return Position{}, illegal(a, placeRejection(&pos, dst))
	}

	mover, opp := pos.SideToMove, pos.SideToMove.Other()
	hand := pos.Hand
	next := pos
	next.Hand = Hand{From: NoSquare}

	if pos.Phase == PhaseChain && dst == hand.From {
		// Chain ended by choice: the union re-forms where it was.
		next.Board[dst].set(mover, hand.Piece)
		return completeTurn(next, NoSquare), nil
	}

	newEP := NoSquare
	switch hand.Piece {
	case Pawn:
		if dst == pos.EnPassant && dst.File() != hand.From.File() && pos.Board[dst].IsEmpty() {
			passed := dst.Offset(0, -mover.forward())
			next.Board[passed].clear(opp)
			next.Board[dst].set(opp, Pawn)
		}
		if pos.Phase == PhaseHolding && dst.File() == hand.From.File() && abs(dst.Rank()-hand.From.Rank()) == 2 {
			newEP = hand.From.Offset(0, mover.forward())
		}
	case King:
		if abs(dst.File()-hand.From.File()) == 2 {
			rank := mover.homeRank()
			rookFrom, rookTo := NewSquare(7, rank), NewSquare(5, rank)
			if dst.File() == 2 {
				rookFrom, rookTo = NewSquare(0, rank), NewSquare(3, rank)
			}
			next.Board[rookFrom].clear(mover)
			next.Board[rookTo].set(mover, Rook)
		}
		next.Castling &^= queenSide(mover) | kingSide(mover)
	}

	if next.Board[dst].Piece(opp) == Rook {
		next.Castling &^= cornerRight(dst, opp)
	}
	next.Board[dst].set(mover, hand.Piece)

	united := next.Board[dst].IsUnion()
	if united {
		next.Chain = next.Chain.With(dst)
		if next.Board[dst].Piece(opp) == King {
			return completeTurn(next, NoSquare), nil
		}
	}
	if hand.Piece == Pawn && dst.Rank() == opp.homeRank() {
		next.Phase = PhasePromotion
		next.Promotion = dst
		return next, nil
	}
	return resolveChain(next, dst, united, newEP), nil
}

// placeRejection picks the most specific reason dst is not a legal target.
func placeRejection(pos *Position, dst Square) Reason {
	mover := pos.SideToMove
	hand := pos.Hand
	occ := pos.Board[dst]
	if occ.Has(mover) {
		return ReasonOwnPiece
	}
	shape := reaches(hand.From, dst, hand.Piece, mover)
	if pos.Phase == PhaseChain {
		if partner := pos.Board[hand.From].Piece(mover.Other()); partner != NoPiece {
			shape = shape || reaches(hand.From, dst, partner, mover)
		}
		if shape && (occ.IsEmpty() || pos.Chain.Has(dst)) {
			return ReasonChainCapture
		}
	}
	if shape {
		return ReasonBlocked
	}
	return ReasonUnreachable
}

func promote(pos Position, a Action) (Position, error) {
	if pos.Phase != PhasePromotion {
		return Position{}, illegal(a, ReasonWrongPhase)
	}
	switch a.Piece {
	case Knight, Bishop, Rook, Queen:
	default:
		return Position{}, illegal(a, ReasonInvalidPromotion)
	}
	sq := pos.Promotion
	next := pos
	next.Board[sq].set(pos.SideToMove, a.Piece)
	next.Promotion = NoSquare
	return resolveChain(next, sq, next.Board[sq].IsUnion(), NoSquare), nil
}

// resolveChain decides what follows a placement on sq: a chain continuation
// when a union was formed and can be extended, otherwise the end of the turn.
func resolveChain(pos Position, sq Square, united bool, newEP Square) Position {
	if !united {
		return completeTurn(pos, newEP)
	}
	mover := pos.SideToMove
	cont := pos
	cont.Hand = Hand{Piece: pos.Board[sq].Piece(mover), From: sq}
	cont.Board[sq].clear(mover)
	cont.Phase = PhaseChain
	if chainTargets(&cont).Empty() {
		return completeTurn(pos, newEP)
	}
	return cont
}

func completeTurn(pos Position, newEP Square) Position {
	if pos.Chain.Empty() {
		pos.HalfMove++
	} else {
		pos.HalfMove = 0
	}
	pos.EnPassant = newEP
	pos.Chain = 0
	pos.Promotion = NoSquare
	pos.Phase = PhaseIdle
	pos.Hand = Hand{From: NoSquare}
	pos.SideToMove = pos.SideToMove.Other()
	return pos
}

// LegalActions enumerates every action Apply would accept in pos.
func LegalActions(pos Position, opts Options) []Action {
	if _, ok := pos.KingUnited(); ok || noProgress(&pos, opts) {
		return nil
	}
	var out []Action
	switch pos.Phase {
	case PhaseIdle:
		mover := pos.SideToMove
		for i := range pos.Board {
			sq := Square(i)
			piece := pos.Board[sq].Piece(mover)
			if piece == NoPiece {
				continue
			}
			probe := pos
			probe.Board[sq].clear(mover)
			if !targets(&probe, sq, piece, mover, false).Empty() {
				out = append(out, Lift(sq))
			}
		}
	case PhaseHolding, PhaseChain:
		for _, sq := range placeTargets(&pos, opts).Squares() {
			out = append(out, Place(sq))
		}
	case PhasePromotion:
		for _, p := range []PieceType{Queen, Rook, Bishop, Knight} {
			out = append(out, Promote(p))
		}
	}
	return out
}
