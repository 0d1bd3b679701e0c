package rules

type Status string

const (
	Undecided Status = "undecided"
	WhiteWins Status = "whiteWins"
	BlackWins Status = "blackWins"
	Draw      Status = "draw"
)

type ResultReason string

const (
	ReasonNone           ResultReason = ""
	ReasonUnion          ResultReason = "union"
	ReasonTimeout        ResultReason = "timeout"
	ReasonNoLegalActions ResultReason = "noLegalActions"
	ReasonNoProgress     ResultReason = "noProgress"
	ReasonRepetition     ResultReason = "repetition"
)

type Result struct {
	Status Status       `json:"status"`
	Reason ResultReason `json:"reason,omitempty"`
}

func (r Result) Decided() bool { return r.Status != Undecided && r.Status != "" }

func Win(c Color, reason ResultReason) Result {
	if c == White {
		return Result{Status: WhiteWins, Reason: reason}
	}
	return Result{Status: BlackWins, Reason: reason}
}

func Drawn(reason ResultReason) Result {
	return Result{Status: Draw, Reason: reason}
}

// Detect evaluates the terminal conditions visible in pos alone. Repetition
// needs the game history and is checked by Replay.
func Detect(pos Position, opts Options) Result {
	if c, ok := pos.KingUnited(); ok {
		return Win(c.Other(), ReasonUnion)
	}
	if pos.Phase != PhaseIdle {
		return Result{Status: Undecided}
	}
	if noProgress(&pos, opts) {
		return Drawn(ReasonNoProgress)
	}
	if len(LegalActions(pos, opts)) == 0 {
		return Drawn(ReasonNoLegalActions)
	}
	return Result{Status: Undecided}
}
