package model

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbeisheim/unionchess-backend/internal/reconcile"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

var (
	ErrOutOfDate          = errors.New("history is out of date")
	ErrTimeExpired        = errors.New("time expired")
	ErrMatchOver          = errors.New("match is over")
	ErrSideLocked         = errors.New("side is controlled by another party")
	ErrNothingToRollBack  = errors.New("no unfinished turn to roll back")
	ErrInvalidTimerConfig = errors.New("invalid timer configuration")
)

// StampedAction is a committed action with the instant it was committed.
type StampedAction struct {
	Action rules.Action `json:"action"`
	At     time.Time    `json:"at"`
}

// Settings fix the rules a match is played with.
type Settings struct {
	Options     rules.Options `json:"options"`
	Timer       *TimerConfig  `json:"timer,omitempty"`
	TimeoutRule TimeoutRule   `json:"timeoutRule"`
}

func (s Settings) Validate() error {
	if s.Timer == nil {
		return nil
	}
	t := *s.Timer
	if t.WhiteBudget <= 0 || t.BlackBudget <= 0 || t.WhiteIncrement < 0 || t.BlackIncrement < 0 {
		return fmt.Errorf("%w: budgets must be positive and increments non-negative", ErrInvalidTimerConfig)
	}
	return nil
}

// Record is everything persisted about a match. A match is rebuilt from a
// record by replaying its history.
type Record struct {
	Key        string          `json:"key"`
	Settings   Settings        `json:"settings"`
	Actions    []StampedAction `json:"actions"`
	CreatedAt  time.Time       `json:"createdAt"`
	WhiteParty string          `json:"whiteParty"`
	BlackParty string          `json:"blackParty"`
	// Result is only needed for outcomes the history does not imply, such
	// as a timeout.
	Result rules.Result `json:"result"`
}

// Match is the authoritative state of one game. Commits are serialized by
// the match's own mutex.
type Match struct {
	Key string

	mu        sync.Mutex
	settings  Settings
	replay    *rules.Replay
	stamps    []time.Time
	clock     *Clock
	sides     [2]Side
	result    rules.Result
	createdAt time.Time
	now       func() time.Time
}

func NewMatch(key string, settings Settings, now func() time.Time) *Match {
	if now == nil {
		now = time.Now
	}
	m := &Match{
		Key:       key,
		settings:  settings,
		replay:    rules.NewReplay(rules.InitialPosition(), settings.Options),
		createdAt: now(),
		now:       now,
	}
	if settings.Timer != nil {
		m.clock = NewClock(*settings.Timer)
	}
	m.result = m.replay.Result()
	return m
}

// Restore rebuilds a match from its record, replaying the history and the
// clock charges it implies.
func Restore(rec Record, now func() time.Time) (*Match, error) {
	m := NewMatch(rec.Key, rec.Settings, now)
	m.createdAt = rec.CreatedAt
	m.sides[rules.White].Party = rec.WhiteParty
	m.sides[rules.Black].Party = rec.BlackParty

	for i, sa := range rec.Actions {
		mover := m.replay.Position().SideToMove
		if err := m.replay.Apply(sa.Action); err != nil {
			return nil, fmt.Errorf("restore match %s: action %d: %w", rec.Key, i, err)
		}
		m.stamps = append(m.stamps, sa.At)
		if m.clock != nil {
			m.clock.Start(mover, sa.At)
			if m.replay.TurnCompleted(i) {
				m.clock.CompleteTurn(mover, sa.At)
			}
		}
	}
	m.result = m.replay.Result()
	switch {
	case m.result.Decided():
		if m.clock != nil && len(m.stamps) > 0 {
			m.clock.Stop(m.stamps[len(m.stamps)-1])
		}
	case rec.Result.Decided():
		m.result = rec.Result
		if m.clock != nil {
			if deadline, ok := m.clock.Deadline(); ok {
				m.clock.Flag(m.replay.Position().SideToMove, deadline)
			}
		}
	}
	return m, nil
}

func (m *Match) Record() Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	actions := m.replay.Actions()
	stamped := make([]StampedAction, len(actions))
	for i, a := range actions {
		stamped[i] = StampedAction{Action: a, At: m.stamps[i]}
	}
	return Record{
		Key:        m.Key,
		Settings:   m.settings,
		Actions:    stamped,
		CreatedAt:  m.createdAt,
		WhiteParty: m.sides[rules.White].Party,
		BlackParty: m.sides[rules.Black].Party,
		Result:     m.result,
	}
}

// Submit commits action on behalf of party. base is the history length the
// party saw when choosing the action; a stale base fails with ErrOutOfDate
// and changes nothing. It returns the new history length.
func (m *Match) Submit(party string, base int, action rules.Action) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.result.Decided() {
		return m.replay.Len(), ErrMatchOver
	}
	if base != m.replay.Len() {
		return m.replay.Len(), fmt.Errorf("%w: based on %d actions, match has %d", ErrOutOfDate, base, m.replay.Len())
	}
	pos := m.replay.Position()
	mover := pos.SideToMove
	if !m.sides[mover].LockFor(party).MayAct() {
		return m.replay.Len(), fmt.Errorf("%w: %s", ErrSideLocked, mover)
	}
	if _, err := rules.Apply(pos, action, m.settings.Options); err != nil {
		return m.replay.Len(), err
	}

	now := m.now()
	if m.clock != nil {
		m.clock.Start(mover, now)
		if m.clock.Remaining(mover, now) <= 0 {
			m.flag(mover, now)
			return m.replay.Len(), fmt.Errorf("%w: %s", ErrTimeExpired, mover)
		}
	}

	if err := m.replay.Apply(action); err != nil {
		return m.replay.Len(), err
	}
	m.stamps = append(m.stamps, now)
	if m.sides[mover].Party == "" {
		m.sides[mover].Party = party
	}
	if m.clock != nil && m.replay.TurnCompleted(m.replay.Len()-1) {
		m.clock.CompleteTurn(mover, now)
	}
	if res := m.replay.Result(); res.Decided() {
		m.result = res
		if m.clock != nil {
			m.clock.Stop(now)
		}
	}
	return m.replay.Len(), nil
}

func (m *Match) flag(c rules.Color, now time.Time) {
	m.clock.Flag(c, now)
	m.result = m.settings.TimeoutRule.Result(c, m.replay.Position())
}

// Rollback discards the unfinished turn of the side to move. Only a party
// allowed to act for that side may roll back.
func (m *Match) Rollback(party string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.result.Decided() {
		return m.replay.Len(), ErrMatchOver
	}
	mover := m.replay.Position().SideToMove
	if !m.sides[mover].LockFor(party).MayAct() {
		return m.replay.Len(), fmt.Errorf("%w: %s", ErrSideLocked, mover)
	}
	checkpoint := m.replay.LastCheckpoint()
	if checkpoint == m.replay.Len() {
		return checkpoint, ErrNothingToRollBack
	}
	if err := m.replay.Truncate(checkpoint); err != nil {
		return m.replay.Len(), err
	}
	m.stamps = m.stamps[:checkpoint]
	return checkpoint, nil
}

// Tick flags the side to move if its time ran out by now. It reports whether
// the match ended.
func (m *Match) Tick(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.result.Decided() || m.clock == nil {
		return false
	}
	color, expired := m.clock.Expired(now)
	if !expired {
		return false
	}
	m.flag(color, now)
	return true
}

// Deadline is when the side to move runs out of time, if a clock runs.
func (m *Match) Deadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clock == nil || m.result.Decided() {
		return time.Time{}, false
	}
	return m.clock.Deadline()
}

func (m *Match) Result() rules.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

func (m *Match) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replay.Len()
}

// ClaimSide gives party control of color. Claiming a side the party already
// holds updates its profile.
func (m *Match) ClaimSide(color rules.Color, party string, profile Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.sides[color].Party; current != "" && current != party {
		return fmt.Errorf("%w: %s", ErrSideLocked, color)
	}
	profile.Name = NormalizeDisplayName(profile.Name)
	m.sides[color] = Side{Party: party, Profile: profile}
	return nil
}

// DelegateFrontendAI hands color to an AI running in party's client. The
// party keeps submitting for the color, but observers see it AI controlled.
func (m *Match) DelegateFrontendAI(color rules.Color, party string, ai AIMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	side := m.sides[color]
	if side.Party != "" && side.Party != party {
		return fmt.Errorf("%w: %s", ErrSideLocked, color)
	}
	ai.FrontendAI = true
	side.Party = party
	side.Profile.AI = &ai
	if side.Profile.Name == "" {
		side.Profile.Name = NormalizeDisplayName(ai.ModelName)
	}
	m.sides[color] = side
	return nil
}

// ReleaseSide returns color to the unlocked state.
func (m *Match) ReleaseSide(color rules.Color, party string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sides[color].Party != party {
		return fmt.Errorf("%w: %s", ErrSideLocked, color)
	}
	m.sides[color] = Side{}
	return nil
}

func (m *Match) LocksFor(observer string) reconcile.Locks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locksLocked(observer)
}

func (m *Match) locksLocked(observer string) reconcile.Locks {
	return reconcile.Locks{
		White: m.sides[rules.White].LockFor(observer),
		Black: m.sides[rules.Black].LockFor(observer),
	}
}

// Snapshot is a consistent copy of a match as seen by one observer.
type Snapshot struct {
	Key       string
	Actions   []rules.Action
	Position  rules.Position
	Result    rules.Result
	Clock     *ClockView
	Tempo     Tempo
	Profiles  [2]Profile
	Locks     reconcile.Locks
	Settings  Settings
	CreatedAt time.Time
}

func (m *Match) Snapshot(observer string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Key:       m.Key,
		Actions:   m.replay.Actions(),
		Position:  m.replay.Position(),
		Result:    m.result,
		Profiles:  [2]Profile{m.sides[rules.White].Profile, m.sides[rules.Black].Profile},
		Locks:     m.locksLocked(observer),
		Settings:  m.settings,
		CreatedAt: m.createdAt,
	}
	if m.clock != nil {
		view := m.clock.View(m.now())
		snap.Clock = &view
		snap.Tempo = m.clock.Config().Tempo()
	}
	return snap
}
