package record_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/record"
	"qrattend/internal/store"
)

func sample(id, subject, name, date, tm string) record.AttendanceRecord {
	return record.AttendanceRecord{
		ID:          id,
		Subject:     subject,
		StudentName: name,
		Date:        date,
		Time:        tm,
		Month:       date[:7],
	}
}

func TestLoadFailsSoft(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := record.NewStore(kv)

	assert.Empty(t, s.Load(ctx), "absent key loads as empty")

	require.NoError(t, kv.Set(ctx, store.KeyAttendanceDB, "{{corrupt"))
	assert.Empty(t, s.Load(ctx), "corrupt state loads as empty")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := record.NewStore(store.NewMemory())

	recs := []record.AttendanceRecord{
		sample("1", "Math", "alice", "2026-09-01", "09:00:00"),
		sample("2", "Physics", "bob", "2026-09-01", "10:00:00"),
	}
	require.NoError(t, s.Save(ctx, recs))
	assert.Equal(t, recs, s.Load(ctx))

	// Save overwrites the full collection.
	require.NoError(t, s.Save(ctx, recs[:1]))
	assert.Equal(t, recs[:1], s.Load(ctx))
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	s := record.NewStore(store.NewMemory())

	require.NoError(t, s.Append(ctx, sample("1", "Math", "alice", "2026-09-01", "09:00:00")))
	require.NoError(t, s.Append(ctx, sample("2", "Math", "bob", "2026-09-01", "09:01:00")))
	assert.Len(t, s.Load(ctx), 2)
}

func TestDeleteMatchingTupleRemovesAllMatches(t *testing.T) {
	ctx := context.Background()
	s := record.NewStore(store.NewMemory())

	// Two records with identical tuples but distinct ids.
	a := sample("1", "Math", "alice", "2026-09-01", "09:00:00")
	b := sample("2", "Math", "alice", "2026-09-01", "09:00:00")
	c := sample("3", "Physics", "alice", "2026-09-01", "09:00:00")
	require.NoError(t, s.Save(ctx, []record.AttendanceRecord{a, b, c}))

	removed, err := s.DeleteMatching(ctx, func(r record.AttendanceRecord) bool {
		return r.MatchesTuple(a)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "tuple deletes remove every match")

	left := s.Load(ctx)
	require.Len(t, left, 1)
	assert.Equal(t, "3", left[0].ID)
}

func TestDeleteByID(t *testing.T) {
	ctx := context.Background()
	s := record.NewStore(store.NewMemory())

	a := sample("1", "Math", "alice", "2026-09-01", "09:00:00")
	b := sample("2", "Math", "alice", "2026-09-01", "09:00:00")
	require.NoError(t, s.Save(ctx, []record.AttendanceRecord{a, b}))

	ok, err := s.DeleteByID(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, s.Load(ctx), 1)

	ok, err = s.DeleteByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
