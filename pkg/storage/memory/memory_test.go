package memory

import (
	"context"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	key, err := s.Store(ctx, strings.NewReader("a,b\n1,2\n"), "datasets/d1/v1.csv")
	require.NoError(t, err)
	assert.Equal(t, "datasets/d1/v1.csv", key)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCleanupBeforeHonoursPrefix(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now.Add(-48 * time.Hour) })

	_, _ = s.Store(ctx, strings.NewReader("x"), "staging/old.csv")
	_, _ = s.Store(ctx, strings.NewReader("x"), "datasets/d1/old.csv")
	s.WithClock(func() time.Time { return now })
	_, _ = s.Store(ctx, strings.NewReader("x"), "staging/new.csv")

	removed, err := s.CleanupBefore(ctx, "staging/", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"datasets/d1/old.csv", "staging/new.csv"}, s.Keys())
}
