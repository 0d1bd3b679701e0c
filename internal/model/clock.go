package model

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

// TimerConfig is the time control of a match.
type TimerConfig struct {
	WhiteBudget    time.Duration
	BlackBudget    time.Duration
	WhiteIncrement time.Duration
	BlackIncrement time.Duration
}

// SymmetricTimer gives both colors the same budget and increment.
func SymmetricTimer(budget, increment time.Duration) TimerConfig {
	return TimerConfig{
		WhiteBudget:    budget,
		BlackBudget:    budget,
		WhiteIncrement: increment,
		BlackIncrement: increment,
	}
}

func (t TimerConfig) Budget(c rules.Color) time.Duration {
	if c == rules.White {
		return t.WhiteBudget
	}
	return t.BlackBudget
}

func (t TimerConfig) Increment(c rules.Color) time.Duration {
	if c == rules.White {
		return t.WhiteIncrement
	}
	return t.BlackIncrement
}

type timerConfigJSON struct {
	WhiteSeconds          float64 `json:"whiteSeconds"`
	BlackSeconds          float64 `json:"blackSeconds"`
	WhiteIncrementSeconds float64 `json:"whiteIncrementSeconds"`
	BlackIncrementSeconds float64 `json:"blackIncrementSeconds"`
}

func (t TimerConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(timerConfigJSON{
		WhiteSeconds:          t.WhiteBudget.Seconds(),
		BlackSeconds:          t.BlackBudget.Seconds(),
		WhiteIncrementSeconds: t.WhiteIncrement.Seconds(),
		BlackIncrementSeconds: t.BlackIncrement.Seconds(),
	})
}

func (t *TimerConfig) UnmarshalJSON(data []byte) error {
	var in timerConfigJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = TimerConfig{
		WhiteBudget:    seconds(in.WhiteSeconds),
		BlackBudget:    seconds(in.BlackSeconds),
		WhiteIncrement: seconds(in.WhiteIncrementSeconds),
		BlackIncrement: seconds(in.BlackIncrementSeconds),
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Tempo is a coarse speed class of a time control.
type Tempo string

const (
	Lightspeed Tempo = "lightspeed"
	Blitz      Tempo = "blitz"
	Rapid      Tempo = "rapid"
	Classical  Tempo = "classical"
)

// EstimatedDuration approximates the length of a game of 40 moves per side.
func (t TimerConfig) EstimatedDuration() time.Duration {
	return t.WhiteBudget + t.BlackBudget + 20*(t.WhiteIncrement+t.BlackIncrement)
}

func (t TimerConfig) Tempo() Tempo {
	switch d := t.EstimatedDuration(); {
	case d < 6*time.Minute:
		return Lightspeed
	case d < 16*time.Minute:
		return Blitz
	case d < 50*time.Minute:
		return Rapid
	}
	return Classical
}

type ClockState string

const (
	ClockNotStarted ClockState = "notStarted"
	ClockRunning    ClockState = "running"
	ClockTimeout    ClockState = "timeout"
	ClockStopped    ClockState = "stopped"
)

// Clock tracks both colors' remaining time. Only the active color's time
// runs; it is charged at turn boundaries with the instant passed in by the
// caller.
type Clock struct {
	mu        sync.Mutex
	config    TimerConfig
	remaining [2]time.Duration
	active    rules.Color
	boundary  time.Time
	state     ClockState
}

func NewClock(config TimerConfig) *Clock {
	return &Clock{
		config:    config,
		remaining: [2]time.Duration{config.WhiteBudget, config.BlackBudget},
		state:     ClockNotStarted,
	}
}

func (c *Clock) Config() TimerConfig { return c.config }

// Start begins running active's time at now. Starting twice is a no-op.
func (c *Clock) Start(active rules.Color, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ClockNotStarted {
		c.state = ClockRunning
		c.active = active
		c.boundary = now
	}
}

func (c *Clock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining is color's time left as of now.
func (c *Clock) Remaining(color rules.Color, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked(color, now)
}

func (c *Clock) remainingLocked(color rules.Color, now time.Time) time.Duration {
	left := c.remaining[color]
	if c.state == ClockRunning && color == c.active {
		left -= now.Sub(c.boundary)
	}
	return left
}

// Charge subtracts the time color spent since the last boundary and moves
// the boundary to now. It returns the remaining time.
func (c *Clock) Charge(color rules.Color, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chargeLocked(color, now)
}

func (c *Clock) chargeLocked(color rules.Color, now time.Time) time.Duration {
	if c.state == ClockRunning && color == c.active {
		c.remaining[color] -= now.Sub(c.boundary)
		c.boundary = now
	}
	return c.remaining[color]
}

func (c *Clock) Increment(color rules.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining[color] += c.config.Increment(color)
}

// CompleteTurn charges color, credits its increment and hands the clock to
// the opponent.
func (c *Clock) CompleteTurn(color rules.Color, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chargeLocked(color, now)
	c.remaining[color] += c.config.Increment(color)
	if c.state == ClockRunning {
		c.active = color.Other()
	}
}

// Expired reports whether the active color ran out of time by now.
func (c *Clock) Expired(now time.Time) (rules.Color, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ClockRunning {
		return c.active, false
	}
	return c.active, c.remainingLocked(c.active, now) <= 0
}

// Deadline is the instant the active color's time runs out.
func (c *Clock) Deadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ClockRunning {
		return time.Time{}, false
	}
	return c.boundary.Add(c.remaining[c.active]), true
}

// Flag marks color as out of time and stops the clock.
func (c *Clock) Flag(color rules.Color, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chargeLocked(color, now)
	if c.remaining[color] > 0 {
		c.remaining[color] = 0
	}
	c.state = ClockTimeout
}

func (c *Clock) Stop(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ClockRunning {
		c.chargeLocked(c.active, now)
		c.state = ClockStopped
	}
}

// ClockView is a point-in-time reading of a clock.
type ClockView struct {
	White          time.Duration
	Black          time.Duration
	WhiteIncrement time.Duration
	BlackIncrement time.Duration
	Active         rules.Color
	State          ClockState
}

func (c *Clock) View(now time.Time) ClockView {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ClockView{
		White:          c.remainingLocked(rules.White, now),
		Black:          c.remainingLocked(rules.Black, now),
		WhiteIncrement: c.config.WhiteIncrement,
		BlackIncrement: c.config.BlackIncrement,
		Active:         c.active,
		State:          c.state,
	}
}

// TimeoutRule decides the result when a color runs out of time.
type TimeoutRule string

const (
	TimeoutLoses TimeoutRule = "lose"
	// TimeoutDrawsOnInsufficient draws when the opponent has nothing but its
	// king, which can never form a union.
	TimeoutDrawsOnInsufficient TimeoutRule = "drawOnInsufficientMaterial"
)

func (r TimeoutRule) Result(flagged rules.Color, pos rules.Position) rules.Result {
	if r == TimeoutDrawsOnInsufficient && pos.OnlyKing(flagged.Other()) {
		return rules.Drawn(rules.ReasonTimeout)
	}
	return rules.Win(flagged.Other(), rules.ReasonTimeout)
}
