// Package reconcile keeps optimistic local histories consistent with the
// authoritative history of a match. It is pure and shared by the server and
// by clients that predict their own actions.
package reconcile

import (
	"fmt"

	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

type Kind string

const (
	// Identical histories need no work.
	Identical Kind = "identical"
	// FastForward means the authoritative history extends the local one.
	FastForward Kind = "fastForward"
	// Ahead means the local history extends the authoritative one; the extra
	// actions are pending confirmation.
	Ahead Kind = "ahead"
	// Mismatch means the histories diverge and the local one is discarded.
	Mismatch Kind = "mismatch"
)

// Outcome of comparing two histories. Index is the length of their common
// prefix.
type Outcome struct {
	Kind  Kind
	Index int
}

func Diff(local, authoritative []rules.Action) Outcome {
	n := min(len(local), len(authoritative))
	i := 0
	for i < n && local[i] == authoritative[i] {
		i++
	}
	switch {
	case i < n:
		return Outcome{Kind: Mismatch, Index: i}
	case len(local) == len(authoritative):
		return Outcome{Kind: Identical, Index: i}
	case len(local) < len(authoritative):
		return Outcome{Kind: FastForward, Index: i}
	default:
		return Outcome{Kind: Ahead, Index: i}
	}
}

// Replica is one participant's view of a match: the actions it believes
// happened and the position they lead to.
type Replica struct {
	initial   rules.Position
	opts      rules.Options
	replay    *rules.Replay
	confirmed int
}

func NewReplica(initial rules.Position, opts rules.Options) *Replica {
	return &Replica{
		initial: initial,
		opts:    opts,
		replay:  rules.NewReplay(initial, opts),
	}
}

// Predict applies a locally chosen action before the authority confirms it.
func (r *Replica) Predict(a rules.Action) error {
	return r.replay.Apply(a)
}

// Reconcile brings the replica in line with the authoritative history. A
// rollback flag means the authority truncated or replaced its history, so
// any difference is resolved by replacing the local history wholesale and
// the outcome is reported as Mismatch.
func (r *Replica) Reconcile(authoritative []rules.Action, rollback bool) (Outcome, error) {
	local := r.replay.Actions()
	out := Diff(local, authoritative)
	if rollback && out.Kind != Identical {
		out.Kind = Mismatch
	}

	switch out.Kind {
	case Identical:
	case Ahead:
		r.confirmed = len(authoritative)
		return out, nil
	case FastForward:
		for _, a := range authoritative[len(local):] {
			if err := r.replay.Apply(a); err != nil {
				return r.replace(authoritative, Outcome{Kind: Mismatch, Index: out.Index})
			}
		}
	case Mismatch:
		return r.replace(authoritative, out)
	}
	r.confirmed = len(authoritative)
	return out, nil
}

func (r *Replica) replace(authoritative []rules.Action, out Outcome) (Outcome, error) {
	fresh, err := rules.ReplayActions(r.initial, authoritative, r.opts)
	if err != nil {
		return out, fmt.Errorf("replay authoritative history: %w", err)
	}
	r.replay = fresh
	r.confirmed = len(authoritative)
	return out, nil
}

// Pending counts local actions the authority has not confirmed yet.
func (r *Replica) Pending() int {
	return r.replay.Len() - r.confirmed
}

func (r *Replica) Position() rules.Position { return r.replay.Position() }
func (r *Replica) Result() rules.Result { return r.replay.Result() }
func (r *Replica) Actions() []rules.Action { return r.replay.Actions() }
func (r *Replica) Len() int { return r.replay.Len() }
