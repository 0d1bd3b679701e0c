package model

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbeisheim/unionchess-backend/internal/reconcile"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

// fakeClock is a controllable time source for matches.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func sq(t *testing.T, s string) rules.Square {
	t.Helper()
	out, err := rules.ParseSquare(s)
	require.NoError(t, err)
	return out
}

func timedSettings() Settings {
	timer := SymmetricTimer(600*time.Second, 5*time.Second)
	return Settings{Options: rules.DefaultOptions(), Timer: &timer, TimeoutRule: TimeoutLoses}
}

func TestSubmitFirstCommitterWins(t *testing.T) {
	m := NewMatch("m1", Settings{Options: rules.DefaultOptions()}, nil)

	n, err := m.Submit("alice", 0, rules.Lift(sq(t, "e2")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Submit("alice", 0, rules.Lift(sq(t, "d2")))
	assert.ErrorIs(t, err, ErrOutOfDate)
	assert.Equal(t, 1, m.Len())

	_, err = m.Submit("alice", 1, rules.Place(sq(t, "e4")))
	require.NoError(t, err)
}

func TestConcurrentSubmitsAtSameBase(t *testing.T) {
	m := NewMatch("m1", Settings{Options: rules.DefaultOptions()}, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		stale    int
	)
	for file := 0; file < 8; file++ {
		wg.Add(1)
		go func(from rules.Square) {
			defer wg.Done()
			_, err := m.Submit("alice", 0, rules.Lift(from))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrOutOfDate):
				stale++
			default:
				t.Errorf("lift %s: %v", from, err)
			}
		}(sq(t, fmt.Sprintf("%c2", 'a'+file)))
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 7, stale)
	assert.Equal(t, 1, m.Len())
	assert.Len(t, m.Record().Actions, 1)
}

func TestSubmitEnforcesControl(t *testing.T) {
	m := NewMatch("m1", Settings{Options: rules.DefaultOptions()}, nil)
	require.NoError(t, m.ClaimSide(rules.White, "alice", Profile{Name: "  Alice  "}))

	_, err := m.Submit("bob", 0, rules.Lift(sq(t, "e2")))
	assert.ErrorIs(t, err, ErrSideLocked)

	_, err = m.Submit("alice", 0, rules.Lift(sq(t, "e2")))
	require.NoError(t, err)
	_, err = m.Submit("alice", 1, rules.Place(sq(t, "e4")))
	require.NoError(t, err)

	// An unlocked side is claimed by whoever acts first.
	_, err = m.Submit("bob", 2, rules.Lift(sq(t, "e7")))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Locks{White: reconcile.LockedByRemoteParty, Black: reconcile.LockedByLocalPlayer}, m.LocksFor("bob"))
	assert.Equal(t, reconcile.Locks{White: reconcile.LockedByLocalPlayer, Black: reconcile.LockedByRemoteParty}, m.LocksFor("alice"))
	assert.Equal(t, reconcile.Locks{White: reconcile.LockedByRemoteParty, Black: reconcile.LockedByRemoteParty}, m.LocksFor("carol"))

	snap := m.Snapshot("alice")
	assert.Equal(t, "Alice", snap.Profiles[rules.White].Name)
}

func TestSubmitRejectsIllegalWithoutCharging(t *testing.T) {
	fc := &fakeClock{t: epoch}
	m := NewMatch("m1", timedSettings(), fc.now)

	_, err := m.Submit("alice", 0, rules.Place(sq(t, "e4")))
	assert.ErrorIs(t, err, rules.ErrIllegalAction)
	assert.Equal(t, 0, m.Len())
	snap := m.Snapshot("alice")
	require.NotNil(t, snap.Clock)
	assert.Equal(t, ClockNotStarted, snap.Clock.State)
	assert.Equal(t, Rapid, snap.Tempo)
}

func TestSubmitChargesClock(t *testing.T) {
	fc := &fakeClock{t: epoch}
	m := NewMatch("m1", timedSettings(), fc.now)

	_, err := m.Submit("alice", 0, rules.Lift(sq(t, "e2")))
	require.NoError(t, err)
	fc.advance(5 * time.Second)
	_, err = m.Submit("alice", 1, rules.Place(sq(t, "e4")))
	require.NoError(t, err)

	snap := m.Snapshot("alice")
	assert.Equal(t, 600*time.Second, snap.Clock.White)
	assert.Equal(t, rules.Black, snap.Clock.Active)

	fc.advance(20 * time.Second)
	snap = m.Snapshot("bob")
	assert.Equal(t, 580*time.Second, snap.Clock.Black)
}

func TestSubmitAfterTimeExpired(t *testing.T) {
	fc := &fakeClock{t: epoch}
	timer := SymmetricTimer(10*time.Second, 0)
	m := NewMatch("m1", Settings{Options: rules.DefaultOptions(), Timer: &timer}, fc.now)

	_, err := m.Submit("alice", 0, rules.Lift(sq(t, "e2")))
	require.NoError(t, err)
	fc.advance(11 * time.Second)

	_, err = m.Submit("alice", 1, rules.Place(sq(t, "e4")))
	assert.ErrorIs(t, err, ErrTimeExpired)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, rules.Win(rules.Black, rules.ReasonTimeout), m.Result())

	_, err = m.Submit("alice", 1, rules.Place(sq(t, "e4")))
	assert.ErrorIs(t, err, ErrMatchOver)
}

func TestTickFlagsExpiredSide(t *testing.T) {
	fc := &fakeClock{t: epoch}
	timer := SymmetricTimer(10*time.Second, 0)
	m := NewMatch("m1", Settings{Options: rules.DefaultOptions(), Timer: &timer, TimeoutRule: TimeoutLoses}, fc.now)

	assert.False(t, m.Tick(epoch.Add(time.Hour)), "clock not started")

	_, err := m.Submit("alice", 0, rules.Lift(sq(t, "e2")))
	require.NoError(t, err)
	_, err = m.Submit("alice", 1, rules.Place(sq(t, "e4")))
	require.NoError(t, err)

	deadline, ok := m.Deadline()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(10*time.Second), deadline)

	assert.False(t, m.Tick(epoch.Add(9*time.Second)))
	assert.True(t, m.Tick(epoch.Add(10*time.Second)))
	assert.Equal(t, rules.Win(rules.White, rules.ReasonTimeout), m.Result())
	assert.False(t, m.Tick(epoch.Add(11*time.Second)))

	_, ok = m.Deadline()
	assert.False(t, ok)
}

func TestRollback(t *testing.T) {
	m := NewMatch("m1", Settings{Options: rules.DefaultOptions()}, nil)

	_, err := m.Rollback("alice")
	assert.ErrorIs(t, err, ErrNothingToRollBack)

	_, err = m.Submit("alice", 0, rules.Lift(sq(t, "e2")))
	require.NoError(t, err)

	_, err = m.Rollback("bob")
	assert.ErrorIs(t, err, ErrSideLocked)

	n, err := m.Rollback("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, rules.PhaseIdle, m.Snapshot("alice").Position.Phase)
	assert.Empty(t, m.Record().Actions)
}

func TestFrontendAIDelegation(t *testing.T) {
	m := NewMatch("m1", Settings{Options: rules.DefaultOptions()}, nil)
	require.NoError(t, m.DelegateFrontendAI(rules.Black, "alice", AIMeta{ModelName: "hedwig", Strength: 3}))

	assert.Equal(t, reconcile.LockedByLocalFrontendAI, m.LocksFor("alice").Black)
	assert.Equal(t, reconcile.LockedByRemoteParty, m.LocksFor("bob").Black)

	snap := m.Snapshot("bob")
	require.NotNil(t, snap.Profiles[rules.Black].AI)
	assert.True(t, snap.Profiles[rules.Black].AI.FrontendAI)
	assert.Equal(t, "hedwig", snap.Profiles[rules.Black].Name)

	assert.ErrorIs(t, m.DelegateFrontendAI(rules.Black, "bob", AIMeta{}), ErrSideLocked)
	assert.ErrorIs(t, m.ReleaseSide(rules.Black, "bob"), ErrSideLocked)
	require.NoError(t, m.ReleaseSide(rules.Black, "alice"))
	assert.Equal(t, reconcile.Unlocked, m.LocksFor("bob").Black)
}

func TestRestoreFromRecord(t *testing.T) {
	fc := &fakeClock{t: epoch}
	m := NewMatch("m1", timedSettings(), fc.now)
	steps := []rules.Action{
		rules.Lift(sq(t, "e2")), rules.Place(sq(t, "e4")),
		rules.Lift(sq(t, "d7")), rules.Place(sq(t, "d5")),
		rules.Lift(sq(t, "e4")), rules.Place(sq(t, "d5")),
	}
	for i, a := range steps {
		fc.advance(3 * time.Second)
		_, err := m.Submit([]string{"alice", "bob"}[(i/2)%2], i, a)
		require.NoError(t, err)
	}
	fc.advance(7 * time.Second)

	restored, err := Restore(m.Record(), fc.now)
	require.NoError(t, err)

	want, got := m.Snapshot("alice"), restored.Snapshot("alice")
	assert.Equal(t, want.Position, got.Position)
	assert.Equal(t, want.Actions, got.Actions)
	assert.Equal(t, *want.Clock, *got.Clock)
	assert.Equal(t, want.Locks, got.Locks)
	assert.Equal(t, want.CreatedAt, got.CreatedAt)

	rec := m.Record()
	rec.Actions[1].Action = rules.Place(sq(t, "e6"))
	_, err = Restore(rec, fc.now)
	assert.ErrorIs(t, err, rules.ErrIllegalAction)
}

func TestRestoreKeepsTimeout(t *testing.T) {
	fc := &fakeClock{t: epoch}
	timer := SymmetricTimer(10*time.Second, 0)
	m := NewMatch("m1", Settings{Options: rules.DefaultOptions(), Timer: &timer}, fc.now)
	_, err := m.Submit("alice", 0, rules.Lift(sq(t, "e2")))
	require.NoError(t, err)
	_, err = m.Submit("alice", 1, rules.Place(sq(t, "e4")))
	require.NoError(t, err)
	require.True(t, m.Tick(epoch.Add(10*time.Second)))

	fc.advance(time.Hour)
	restored, err := Restore(m.Record(), fc.now)
	require.NoError(t, err)
	assert.Equal(t, rules.Win(rules.White, rules.ReasonTimeout), restored.Result())

	snap := restored.Snapshot("alice")
	assert.Equal(t, ClockTimeout, snap.Clock.State)
	assert.Equal(t, time.Duration(0), snap.Clock.Black)
	assert.False(t, restored.Tick(fc.now()))
}

func TestNormalizeDisplayName(t *testing.T) {
	assert.Equal(t, "Anonymous", NormalizeDisplayName("   "))
	assert.Equal(t, "Ada Lovelace", NormalizeDisplayName(" Ada \t Lovelace\n"))
	assert.Equal(t, "ABC", NormalizeDisplayName("ＡＢＣ"))
	assert.Len(t, []rune(NormalizeDisplayName("ééééééééééééééééééééééééééééééééééééééé")), 32)
}
