package session

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := &Session{UserID: 42, Workflow: "executor_registration", Step: "name", Answers: Answers{}}
	require.NoError(t, store.Put(ctx, s))

	got, err := store.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "name", got.Step)

	require.NoError(t, store.Delete(ctx, 42))
	got, err = store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting twice is fine.
	require.NoError(t, store.Delete(ctx, 42))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := &Session{UserID: 1, Answers: Answers{"jobs": {"1", "2"}}, Pending: []string{"a"}}
	require.NoError(t, store.Put(ctx, s))

	s.Answers["jobs"][0] = "mutated"
	s.Pending = append(s.Pending, "b")

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, got.Answers["jobs"])
	assert.Equal(t, []string{"a"}, got.Pending)

	got.Answers["name"] = []string{"x"}
	again, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, again.Answers.Has("name"))
}

func TestMemoryStore_DeleteIdle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.Put(ctx, &Session{UserID: 1, UpdatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.Put(ctx, &Session{UserID: 2, UpdatedAt: now}))

	removed, err := store.DeleteIdle(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				id := int64(w*1000 + i)
				_ = store.Put(ctx, &Session{UserID: id, Step: strconv.Itoa(i)})
				_, _ = store.Get(ctx, id)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 1000, store.Len())
}

func TestAnswersHelpers(t *testing.T) {
	a := Answers{"age": {"29"}, "links": {"https://a.com", "https://b.com"}}
	assert.Equal(t, 29, a.Int("age"))
	assert.Equal(t, "https://a.com", a.Get("links"))
	assert.Equal(t, "", a.Get("missing"))
	assert.True(t, a.Has("links"))

	s := &Session{Answers: a}
	assert.Equal(t, []string{"age", "links"}, s.Keys())
}
