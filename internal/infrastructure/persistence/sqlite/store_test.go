package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T, consistency student.Consistency) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "data", "counseling.db")

	s, err := Open(context.Background(), cfg, consistency, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, student.ConsistencyLastWriterWins)
	require.NoError(t, s.Ping(ctx))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	assert.Zero(t, snap.Version)

	rec := snap.Upsert("b@x.io", now)
	require.NoError(t, rec.SubmitAcademics(&student.Academics{
		Marks:       student.Marks{Physics12: 80, Chemistry12: 70, Math12: 90, English12: 60},
		Preference1: branch.Civil,
		Preference2: branch.Chemical,
	}, now))
	snap.Upsert("a@x.io", now)
	require.NoError(t, s.Save(ctx, snap))
	assert.Equal(t, int64(1), snap.Version)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Records, 2)
	assert.Equal(t, student.Email("b@x.io"), loaded.Records[0].Email)
	agg, ok := loaded.Records[0].Aggregate()
	assert.True(t, ok)
	assert.Equal(t, 300, agg)
}

func TestStore_OptimisticConflict(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, student.ConsistencyOptimistic)

	first, _ := s.Load(ctx)
	second, _ := s.Load(ctx)

	first.Upsert("a@x.io", now)
	require.NoError(t, s.Save(ctx, first))

	second.Upsert("b@x.io", now)
	assert.ErrorIs(t, s.Save(ctx, second), shared.ErrConcurrentModification)
}

func TestStore_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, student.ConsistencyLastWriterWins)

	first, _ := s.Load(ctx)
	second, _ := s.Load(ctx)
	first.Upsert("a@x.io", now)
	require.NoError(t, s.Save(ctx, first))
	second.Upsert("b@x.io", now)
	require.NoError(t, s.Save(ctx, second))

	final, _ := s.Load(ctx)
	require.Equal(t, 1, final.Len())
	assert.Equal(t, student.Email("b@x.io"), final.Records[0].Email)
	assert.Equal(t, int64(2), final.Version)
}

func TestStore_CorruptedPayloadLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, student.ConsistencyLastWriterWins)
	_, err := s.db.ExecContext(ctx, `UPDATE counseling_records SET payload = 'garbage' WHERE id = 1`)
	require.NoError(t, err)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
}

func TestStore_RecordCycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, student.ConsistencyLastWriterWins)

	code := branch.Civil
	res := &allocation.Result{
		CycleID:   "c1",
		StartedAt: now,
		Assignments: []allocation.Assignment{
			{Email: "a@x.io", Branch: &code, Choice: allocation.ChoiceFirst},
			{Email: "b@x.io", Choice: allocation.ChoiceNone},
		},
	}
	require.NoError(t, s.RecordCycle(ctx, res))

	n, err := s.CycleCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Error(t, s.RecordCycle(ctx, res), "cycle ids are unique")
}
