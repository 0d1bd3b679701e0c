package rules

import (
	"fmt"
	"sort"
)

// Replay is a game history together with the position it leads to. It only
// grows through Apply, so the position is always the deterministic result of
// replaying the actions from the initial position.
type Replay struct {
	opts        Options
	initial     Position
	actions     []Action
	current     Position
	checkpoints []int
	seen        map[Position]int
	result      Result
}

func NewReplay(initial Position, opts Options) *Replay {
	r := &Replay{
		opts:    opts,
		initial: initial,
		current: initial,
		seen:    make(map[Position]int),
	}
	r.checkpoints = []int{0}
	r.record()
	return r
}

// ReplayActions rebuilds a history from scratch. It fails on the first action
// the rules reject.
func ReplayActions(initial Position, actions []Action, opts Options) (*Replay, error) {
	r := NewReplay(initial, opts)
	for i, a := range actions {
		if err := r.Apply(a); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return r, nil
}

func (r *Replay) Apply(a Action) error {
	if r.result.Decided() {
		return illegal(a, ReasonGameOver)
	}
	next, err := Apply(r.current, a, r.opts)
	if err != nil {
		return err
	}
	r.current = next
	r.actions = append(r.actions, a)
	if next.Phase == PhaseIdle {
		r.checkpoints = append(r.checkpoints, len(r.actions))
		r.record()
	}
	return nil
}

// record registers a turn boundary and re-evaluates the result.
func (r *Replay) record() {
	key := r.current
	key.HalfMove = 0
	r.seen[key]++
	r.result = Detect(r.current, r.opts)
	if !r.result.Decided() && r.opts.DrawAfterRepetitions > 0 && r.seen[key] >= r.opts.DrawAfterRepetitions {
		r.result = Drawn(ReasonRepetition)
	}
}

func (r *Replay) Initial() Position { return r.initial }
func (r *Replay) Position() Position { return r.current }
func (r *Replay) Options() Options { return r.opts }
func (r *Replay) Result() Result { return r.result }
func (r *Replay) Len() int { return len(r.actions) }

func (r *Replay) Actions() []Action {
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// LastCheckpoint is the history length at the start of the current turn.
func (r *Replay) LastCheckpoint() int {
	return r.checkpoints[len(r.checkpoints)-1]
}

// TurnCompleted reports whether the action at index i ended a turn.
func (r *Replay) TurnCompleted(i int) bool {
	j := sort.SearchInts(r.checkpoints, i+1)
	return j < len(r.checkpoints) && r.checkpoints[j] == i+1
}

// Truncate drops the history back to n actions by replaying the prefix.
func (r *Replay) Truncate(n int) error {
	if n < 0 || n > len(r.actions) {
		return fmt.Errorf("truncate to %d: history has %d actions", n, len(r.actions))
	}
	fresh, err := ReplayActions(r.initial, r.actions[:n], r.opts)
	if err != nil {
		return err
	}
	*r = *fresh
	return nil
}
