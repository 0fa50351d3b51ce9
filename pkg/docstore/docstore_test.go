package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/dataset-processor/pkg/logger"
)

type record struct {
	ID      string `json:"id"`
	Dataset string `json:"dataset"`
	Count   int    `json:"count"`
}

func records(s Store) *Collection[record] {
	return NewCollection(s, "records", func(r *record) (string, string) { return r.ID, r.Dataset })
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	c := records(s)

	t.Run("insert and find", func(t *testing.T) {
		require.NoError(t, c.Insert(ctx, &record{ID: "a", Dataset: "d1", Count: 1}))
		require.NoError(t, c.Insert(ctx, &record{ID: "b", Dataset: "d1"}))
		require.NoError(t, c.Insert(ctx, &record{ID: "c", Dataset: "d2"}))

		got, err := c.FindOne(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, &record{ID: "a", Dataset: "d1", Count: 1}, got)

		d1, err := c.Find(ctx, "d1")
		require.NoError(t, err)
		require.Len(t, d1, 2)
		assert.Equal(t, "a", d1[0].ID)
		assert.Equal(t, "b", d1[1].ID)

		all, err := c.Find(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("duplicate insert", func(t *testing.T) {
		err := c.Insert(ctx, &record{ID: "a", Dataset: "d1"})
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("save replaces", func(t *testing.T) {
		require.NoError(t, c.Save(ctx, &record{ID: "b", Dataset: "d1", Count: 7}))
		got, err := c.FindOne(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, 7, got.Count)
	})

	t.Run("update", func(t *testing.T) {
		updated, err := c.Update(ctx, "a", func(r *record) error {
			r.Count += 10
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 11, updated.Count)

		_, err = c.Update(ctx, "missing", func(*record) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)

		abort := errors.New("abort")
		_, err = c.Update(ctx, "a", func(r *record) error {
			r.Count = -1
			return abort
		})
		assert.ErrorIs(t, err, abort)
		got, err := c.FindOne(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 11, got.Count)
	})

	t.Run("concurrent updates do not lose writes", func(t *testing.T) {
		require.NoError(t, c.Insert(ctx, &record{ID: "counter", Dataset: "d3"}))
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.Update(ctx, "counter", func(r *record) error {
					r.Count++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		got, err := c.FindOne(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, 8, got.Count)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "c"))
		_, err := c.FindOne(ctx, "c")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, c.Delete(ctx, "c"), ErrNotFound)

		d2, err := c.Find(ctx, "d2")
		require.NoError(t, err)
		assert.Empty(t, d2)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, "raw", Document{ID: "x", Data: []byte(`{"n":1}`)}))

	data, err := s.Get(ctx, "raw", "x")
	require.NoError(t, err)
	data[0] = '!'

	again, err := s.Get(ctx, "raw", "x")
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(again))
}

// Runs against a real server when DOCSTORE_REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("DOCSTORE_REDIS_ADDR")
	if addr == "" {
		t.Skip("DOCSTORE_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := fmt.Sprintf("test-%s", uuid.NewString())
	s := NewRedisStore(client, prefix, logger.NewTestLogger())
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = s.Close()
	})
	testStore(t, s)
}
