package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

var epoch = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func sampleRecord(t *testing.T) model.Record {
	t.Helper()
	timer := model.SymmetricTimer(180*time.Second, 2*time.Second)
	e2, err := rules.ParseSquare("e2")
	require.NoError(t, err)
	e4, err := rules.ParseSquare("e4")
	require.NoError(t, err)
	return model.Record{
		Key: "match-1",
		Settings: model.Settings{
			Options:     rules.Options{Chain: rules.ChainOptional, DrawAfterRepetitions: 3, NoProgressHalfMoves: 100},
			Timer:       &timer,
			TimeoutRule: model.TimeoutDrawsOnInsufficient,
		},
		Actions: []model.StampedAction{
			{Action: rules.Lift(e2), At: epoch.Add(time.Second)},
			{Action: rules.Place(e4), At: epoch.Add(3 * time.Second)},
		},
		CreatedAt:  epoch,
		WhiteParty: "alice",
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.LoadMatch(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	rec := sampleRecord(t)
	require.NoError(t, s.SaveMatch(ctx, rec))
	assert.Equal(t, 1, s.Len())

	// Mutating the caller's copy must not reach the stored record.
	rec.Actions[0].Action = rules.Promote(rules.Queen)
	rec.Settings.Timer.WhiteBudget = time.Hour

	loaded, err := s.LoadMatch(ctx, "match-1")
	require.NoError(t, err)
	assert.Equal(t, rules.KindLift, loaded.Actions[0].Action.Kind)
	assert.Equal(t, 180*time.Second, loaded.Settings.Timer.WhiteBudget)
}

func TestMemoryStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	assert.ErrorIs(t, s.SaveMatch(ctx, sampleRecord(t)), context.Canceled)
	_, err := s.LoadMatch(ctx, "match-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArchiveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	archive, err := NewArchive(dir, 2)
	require.NoError(t, err)

	rec := sampleRecord(t)
	replay, err := rules.ReplayActions(rules.InitialPosition(), []rules.Action{rec.Actions[0].Action, rec.Actions[1].Action}, rec.Settings.Options)
	require.NoError(t, err)

	result := rules.Win(rules.White, rules.ReasonTimeout)
	row, err := NewArchivedMatch(rec, result, replay.Position(), epoch.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, archive.Write(row))

	files, err := Files(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "match-1.parquet")}, files)

	rows, err := ReadFile(files[0], 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.Equal(t, row, got)
	assert.Equal(t, result, got.Result())
	assert.Equal(t, int32(2), got.ActionCount)
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b 1 AHah e3 -", got.FinalNotation)

	decoded, err := got.Record()
	require.NoError(t, err)
	assert.Equal(t, rec.Key, decoded.Key)
	assert.True(t, rec.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, rec.Settings, decoded.Settings)
	require.Len(t, decoded.Actions, 2)
	for i := range rec.Actions {
		assert.Equal(t, rec.Actions[i].Action, decoded.Actions[i].Action)
		assert.True(t, rec.Actions[i].At.Equal(decoded.Actions[i].At))
	}
}

func TestArchiveRejectsPathKeys(t *testing.T) {
	archive, err := NewArchive(t.TempDir(), 1)
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		assert.Error(t, archive.Write(ArchivedMatch{Key: key}), key)
	}
}
