package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"hairstudio/internal/domain"
	"hairstudio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("InsertAndGet", func(t *testing.T) {
		id, err := store.Insert(ctx, "things", &models.Document{Fields: map[string]any{"date": "2025-06-10", "n": 1}})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		doc, err := store.Get(ctx, "things", id)
		require.NoError(t, err)
		assert.Equal(t, "2025-06-10", doc.Fields["date"])
		assert.Equal(t, float64(1), doc.Fields["n"])
	})

	t.Run("DuplicateID", func(t *testing.T) {
		_, err := store.Insert(ctx, "things", &models.Document{ID: "fixed"})
		require.NoError(t, err)
		_, err = store.Insert(ctx, "things", &models.Document{ID: "fixed"})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("UpdateMerges", func(t *testing.T) {
		_, err := store.Insert(ctx, "merge", &models.Document{ID: "m", Fields: map[string]any{"a": "1", "b": "2"}})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "merge", "m", map[string]any{"b": nil, "c": "3"}))

		doc, err := store.Get(ctx, "merge", "m")
		require.NoError(t, err)
		assert.Equal(t, "1", doc.Fields["a"])
		assert.Nil(t, doc.Fields["b"])
		_, hasB := doc.Fields["b"]
		assert.True(t, hasB)
		assert.Equal(t, "3", doc.Fields["c"])
	})

	t.Run("ReturnedDocumentsAreCopies", func(t *testing.T) {
		doc, err := store.Get(ctx, "merge", "m")
		require.NoError(t, err)
		doc.Fields["a"] = "changed"

		again, err := store.Get(ctx, "merge", "m")
		require.NoError(t, err)
		assert.Equal(t, "1", again.Fields["a"])
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "things", "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, store.Update(ctx, "things", "missing", nil), domain.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "things", "missing"), domain.ErrNotFound)
	})

	t.Run("ListWithFilter", func(t *testing.T) {
		for _, d := range []string{"2025-06-01", "2025-06-15", "2025-07-01"} {
			_, err := store.Insert(ctx, "days", &models.Document{ID: d, Fields: map[string]any{"date": d, "status": "confirmed"}})
			require.NoError(t, err)
		}
		docs, err := store.List(ctx, "days", models.Filter{
			Range:  &models.RangeFilter{Field: "date", From: "2025-06-01", To: "2025-06-30"},
			Equals: map[string]any{"status": "confirmed"},
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "2025-06-01", docs[0].ID)

		docs, err = store.List(ctx, "empty", models.Filter{})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "days", "2025-07-01"))
		_, err := store.Get(ctx, "days", "2025-07-01")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestMemoryDateLocker(t *testing.T) {
	locker := NewMemoryDateLocker()
	ctx := context.Background()

	t.Run("SerializesSameDate", func(t *testing.T) {
		var mu sync.Mutex
		inside := 0
		maxInside := 0
		var wg sync.WaitGroup

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, "2025-06-10")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxInside)
	})

	t.Run("DifferentDatesIndependent", func(t *testing.T) {
		unlockA, err := locker.Lock(ctx, "2025-06-10")
		require.NoError(t, err)
		defer unlockA()

		unlockB, err := locker.Lock(ctx, "2025-06-11")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("HonorsContext", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "2025-06-12")
		require.NoError(t, err)

		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(tctx, "2025-06-12")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		unlock()
		unlock() // second call is a no-op

		again, err := locker.Lock(ctx, "2025-06-12")
		require.NoError(t, err)
		again()
	})
}
