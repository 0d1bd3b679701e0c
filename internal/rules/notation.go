package rules

import (
	"strconv"
	"strings"
)

// StartNotation is the notation of InitialPosition.
const StartNotation = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w 0 AHah - -"

const pieceLetters = " pnbrqk"

// unionPair is one letter of the union alphabet. The lowercase letter means
// black holds first and white holds second; the uppercase letter swaps the
// colors.
type unionPair struct {
	letter        byte
	first, second PieceType
}

var unionAlphabet = []unionPair{
	{'a', Pawn, Pawn}, {'c', Pawn, Rook}, {'d', Pawn, Knight}, {'e', Pawn, Bishop},
	{'f', Pawn, Queen}, {'g', Pawn, King}, {'h', Rook, Rook}, {'i', Rook, Knight},
	{'j', Rook, Bishop}, {'l', Rook, Queen}, {'m', Rook, King}, {'o', Knight, Knight},
	{'s', Knight, Bishop}, {'t', Knight, Queen}, {'u', Knight, King}, {'v', Bishop, Bishop},
	{'w', Bishop, Queen}, {'x', Bishop, King}, {'y', Queen, Queen}, {'z', Queen, King},
	{'_', King, King},
}

func pieceLetter(p PieceType, c Color) byte {
	l := pieceLetters[p]
	if c == White {
		l -= 'a' - 'A'
	}
	return l
}

func occupancyLetter(o Occupancy) byte {
	switch {
	case !o.IsUnion() && o.Has(White):
		return pieceLetter(o.White, White)
	case !o.IsUnion():
		return pieceLetter(o.Black, Black)
	}
	for _, u := range unionAlphabet {
		if u.first == o.Black && u.second == o.White {
			return u.letter
		}
	}
	for _, u := range unionAlphabet {
		if u.first == o.White && u.second == o.Black {
			return u.letter - ('a' - 'A')
		}
	}
	return '?'
}

func letterOccupancy(l byte) (Occupancy, bool) {
	if p, c, ok := letterPiece(l); ok {
		var o Occupancy
		o.set(c, p)
		return o, true
	}
	lower, upper := l, false
	if l >= 'A' && l <= 'Z' {
		lower, upper = l+('a'-'A'), true
	}
	for _, u := range unionAlphabet {
		if u.letter != lower {
			continue
		}
		if upper {
			return Occupancy{White: u.first, Black: u.second}, true
		}
		return Occupancy{White: u.second, Black: u.first}, true
	}
	return Occupancy{}, false
}

func letterPiece(l byte) (PieceType, Color, bool) {
	c := Black
	if l >= 'A' && l <= 'Z' {
		l += 'a' - 'A'
		c = White
	}
	if i := strings.IndexByte(pieceLetters, l); i > 0 {
		return PieceType(i), c, true
	}
	return NoPiece, White, false
}

// Encode renders pos as a single line of text.
func Encode(pos Position) string {
	var b strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			occ := pos.Board[NewSquare(file, rank)]
			if occ.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				b.WriteByte(byte('0' + empty))
				empty = 0
			}
			b.WriteByte(occupancyLetter(occ))
		}
		if empty > 0 {
			b.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			b.WriteByte('/')
		}
	}

	if pos.SideToMove == White {
		b.WriteString(" w ")
	} else {
		b.WriteString(" b ")
	}
	b.WriteString(strconv.Itoa(pos.HalfMove))
	b.WriteByte(' ')
	b.WriteString(encodeCastling(pos.Castling))
	b.WriteByte(' ')
	b.WriteString(pos.EnPassant.String())
	b.WriteByte(' ')
	b.WriteString(encodeLifted(&pos))
	return b.String()
}

var castlingOrder = []struct {
	letter byte
	right  Castling
}{{'A', WhiteQueenSide}, {'H', WhiteKingSide}, {'a', BlackQueenSide}, {'h', BlackKingSide}}

func encodeCastling(c Castling) string {
	if c == 0 {
		return "-"
	}
	var out []byte
	for _, o := range castlingOrder {
		if c&o.right != 0 {
			out = append(out, o.letter)
		}
	}
	return string(out)
}

func encodeSquares(b Bitboard) string {
	var sb strings.Builder
	for _, s := range b.Squares() {
		sb.WriteString(s.String())
	}
	return sb.String()
}

func encodeLifted(pos *Position) string {
	switch pos.Phase {
	case PhaseHolding:
		return pos.Hand.From.String() + string(pieceLetter(pos.Hand.Piece, pos.SideToMove))
	case PhaseChain:
		return pos.Hand.From.String() + string(pieceLetter(pos.Hand.Piece, pos.SideToMove)) + ":" + encodeSquares(pos.Chain)
	case PhasePromotion:
		out := "=" + pos.Promotion.String()
		if !pos.Chain.Empty() {
			out += ":" + encodeSquares(pos.Chain)
		}
		return out
	}
	return "-"
}

// Decode parses text produced by Encode. Anything that does not describe a
// consistent position fails with an error wrapping ErrMalformedNotation.
func Decode(s string) (Position, error) {
	fail := func(detail string) (Position, error) {
		return Position{}, &NotationError{Input: s, Detail: detail}
	}
	fields := strings.Split(s, " ")
	if len(fields) != 6 {
		return fail("expected 6 space separated fields")
	}
	pos := EmptyPosition()

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return fail("expected 8 ranks")
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			ch := row[j]
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				if file > 8 {
					return fail("rank " + strconv.Itoa(rank+1) + " is too long")
				}
				continue
			}
			occ, ok := letterOccupancy(ch)
			if !ok {
				return fail("unknown piece letter " + strconv.QuoteRune(rune(ch)))
			}
			if file >= 8 {
				return fail("rank " + strconv.Itoa(rank+1) + " is too long")
			}
			pos.Board[NewSquare(file, rank)] = occ
			file++
		}
		if file != 8 {
			return fail("rank " + strconv.Itoa(rank+1) + " does not cover 8 files")
		}
	}

	switch fields[1] {
	case "w":
		pos.SideToMove = White
	case "b":
		pos.SideToMove = Black
	default:
		return fail("side to move must be w or b")
	}
	mover := pos.SideToMove

	if !isDigits(fields[2]) {
		return fail("half-move counter must be a non-negative integer")
	}
	half, err := strconv.Atoi(fields[2])
	if err != nil {
		return fail("half-move counter out of range")
	}
	pos.HalfMove = half

	castling, ok := decodeCastling(fields[3])
	if !ok {
		return fail("castling rights must be '-' or a subset of AHah in order")
	}
	pos.Castling = castling

	if fields[4] != "-" {
		ep, err := ParseSquare(fields[4])
		if err != nil {
			return fail("invalid en passant square")
		}
		wantRank := 5
		if mover == Black {
			wantRank = 2
		}
		if ep.Rank() != wantRank {
			return fail("en passant square does not match side to move")
		}
		pos.EnPassant = ep
	}

	if detail := decodeLifted(&pos, fields[5]); detail != "" {
		return fail(detail)
	}
	if detail := checkKingUnions(&pos); detail != "" {
		return fail(detail)
	}
	return pos, nil
}

// checkKingUnions rejects king unions no game can reach. The side that unites
// a king always ends its turn, so a united king belongs to the side to move
// and the position is idle.
func checkKingUnions(pos *Position) string {
	for i, occ := range pos.Board {
		if !occ.IsUnion() || (occ.White != King && occ.Black != King) {
			continue
		}
		sq := Square(i)
		for _, c := range []Color{White, Black} {
			if occ.Piece(c) == King && c != pos.SideToMove {
				return "united " + c.String() + " king on " + sq.String() + " with " + pos.SideToMove.String() + " to move"
			}
		}
		if pos.Phase != PhaseIdle {
			return "king union on " + sq.String() + " in an unfinished turn"
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func decodeCastling(s string) (Castling, bool) {
	if s == "-" {
		return 0, true
	}
	if s == "" {
		return 0, false
	}
	var c Castling
	next := 0
	for i := 0; i < len(s); i++ {
		found := false
		for next < len(castlingOrder) {
			o := castlingOrder[next]
			next++
			if o.letter == s[i] {
				c |= o.right
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return c, true
}

func decodeSquares(s string) (Bitboard, bool) {
	if s == "" || len(s)%2 != 0 {
		return 0, false
	}
	var b Bitboard
	for i := 0; i < len(s); i += 2 {
		sq, err := ParseSquare(s[i : i+2])
		if err != nil || b.Has(sq) {
			return 0, false
		}
		b = b.With(sq)
	}
	return b, true
}

// decodeLifted fills the phase fields of pos and returns a description of
// the first inconsistency found, or "".
func decodeLifted(pos *Position, field string) string {
	mover := pos.SideToMove
	if field == "-" {
		return ""
	}

	body, chain, hasChain := strings.Cut(field, ":")
	if hasChain {
		squares, ok := decodeSquares(chain)
		if !ok {
			return "invalid chain squares"
		}
		for _, sq := range squares.Squares() {
			if !pos.Board[sq].Has(mover.Other()) {
				return "chain square " + sq.String() + " holds no opponent piece"
			}
		}
		pos.Chain = squares
	}

	if strings.HasPrefix(body, "=") {
		sq, err := ParseSquare(body[1:])
		if err != nil {
			return "invalid promotion square"
		}
		if pos.Board[sq].Piece(mover) != Pawn || sq.Rank() != mover.Other().homeRank() {
			return "promotion square holds no pawn of the side to move on the last rank"
		}
		pos.Phase = PhasePromotion
		pos.Promotion = sq
		return ""
	}

	if len(body) != 3 {
		return "invalid lifted piece"
	}
	from, err := ParseSquare(body[:2])
	if err != nil {
		return "invalid lifted piece square"
	}
	piece, color, ok := letterPiece(body[2])
	if !ok {
		return "invalid lifted piece letter"
	}
	if color != mover {
		return "lifted piece does not belong to the side to move"
	}
	if hasChain && piece == King {
		return "a king cannot continue a chain"
	}
	if pos.Board[from].Has(mover) {
		return "lifted piece origin still holds a piece of the side to move"
	}
	pos.Hand = Hand{Piece: piece, From: from}
	if !hasChain {
		pos.Phase = PhaseHolding
		return ""
	}
	if !pos.Chain.Has(from) {
		return "chain squares must include the lifted piece origin"
	}
	pos.Phase = PhaseChain
	return ""
}
