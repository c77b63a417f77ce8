package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "butterfly.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "butterfly.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), "sqlite3", path)
		require.NoError(t, err)
		require.NoError(t, s.Ping(context.Background()))
		require.NoError(t, s.Close())
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever")
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	require.NoError(t, s.CreateUser(ctx, "ada", "correct horse"))
	assert.ErrorIs(t, s.CreateUser(ctx, "ada", "another password"), ErrUserExists)
	assert.ErrorIs(t, s.CreateUser(ctx, "bob", "short"), ErrWeakPassword)
	assert.Error(t, s.CreateUser(ctx, "  ", "long enough"))

	assert.NoError(t, s.Authenticate(ctx, "ada", "correct horse"))
	assert.ErrorIs(t, s.Authenticate(ctx, "ada", "wrong horse"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.Authenticate(ctx, "nobody", "correct horse"), ErrInvalidCredentials)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPredictions(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, label := range []string{"MONARCH", "VICEROY", "JULIA"} {
		p := &Prediction{
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Source:     SourceAPI,
			Label:      label,
			Confidence: 0.5 + float64(i)/10,
		}
		require.NoError(t, s.RecordPrediction(ctx, p))
		assert.NotEmpty(t, p.ID)
	}

	got, err := s.RecentPredictions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "JULIA", got[0].Label)
	assert.Equal(t, "VICEROY", got[1].Label)
	assert.Equal(t, SourceAPI, got[0].Source)
	assert.InDelta(t, 0.7, got[0].Confidence, 1e-9)
	assert.True(t, got[0].CreatedAt.Equal(base.Add(2*time.Minute)))
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: "pgx"}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Store{driver: "sqlite3"}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}
