package repository

import (
	"context"
	"testing"
	"time"

	"hairstudio/internal/domain"
	"hairstudio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityRepository(t *testing.T) {
	repo := NewAvailabilityRepository(NewMemoryStore())
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	t.Run("MissingDateIsNil", func(t *testing.T) {
		got, err := repo.Get(ctx, "2025-06-10")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("UpsertKeepsCreatedAt", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &models.Availability{
			Date:         "2025-06-10",
			IsWorkingDay: true,
			WorkingHours: &models.WorkingHours{Start: "10:00", End: "12:00"},
		}))

		clock = clock.Add(time.Hour)
		require.NoError(t, repo.Upsert(ctx, &models.Availability{
			Date:            "2025-06-10",
			IsWorkingDay:    false,
			CustomTimeSlots: []string{"11:00"},
		}))

		got, err := repo.Get(ctx, "2025-06-10")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.IsWorkingDay)
		assert.Nil(t, got.WorkingHours)
		assert.Equal(t, []string{"11:00"}, got.CustomTimeSlots)
		assert.True(t, got.CreatedAt.Equal(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)))
		assert.True(t, got.UpdatedAt.Equal(clock))
	})

	t.Run("ListRangeSorted", func(t *testing.T) {
		for _, d := range []string{"2025-06-20", "2025-06-05", "2025-07-01"} {
			require.NoError(t, repo.Upsert(ctx, &models.Availability{Date: d, IsWorkingDay: true}))
		}
		list, err := repo.ListRange(ctx, "2025-06-01", "2025-06-30")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "2025-06-05", list[0].Date)
		assert.Equal(t, "2025-06-10", list[1].Date)
		assert.Equal(t, "2025-06-20", list[2].Date)
	})
}

func TestAppointmentRepository(t *testing.T) {
	repo := NewAppointmentRepository(NewMemoryStore())
	ctx := context.Background()

	insert := func(date, at, status string) string {
		id, err := repo.Insert(ctx, &models.Appointment{
			CustomerName: "Anna",
			Date:         date,
			Time:         at,
			Duration:     60,
			Status:       status,
		})
		require.NoError(t, err)
		return id
	}

	first := insert("2025-06-10", "12:00", models.StatusConfirmed)
	insert("2025-06-10", "10:00", models.StatusConfirmed)
	insert("2025-06-10", "14:00", models.StatusCancelled)
	insert("2025-06-11", "10:00", models.StatusConfirmed)

	t.Run("Get", func(t *testing.T) {
		got, err := repo.Get(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, first, got.ID)
		assert.Equal(t, "12:00", got.Time)
		assert.Nil(t, got.CustomerEmail)

		_, err = repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListByDate", func(t *testing.T) {
		all, err := repo.ListByDate(ctx, "2025-06-10", "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "10:00", all[0].Time)

		confirmed, err := repo.ListByDate(ctx, "2025-06-10", models.StatusConfirmed)
		require.NoError(t, err)
		assert.Len(t, confirmed, 2)

		n, err := repo.CountConfirmed(ctx, "2025-06-10")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("ListRange", func(t *testing.T) {
		list, err := repo.ListRange(ctx, "2025-06-10", "2025-06-11", models.StatusConfirmed)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "2025-06-11", list[2].Date)
	})

	t.Run("UpdateStoresNull", func(t *testing.T) {
		require.NoError(t, repo.Update(ctx, first, map[string]any{"customer_email": "a@b.c"}))
		got, err := repo.Get(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "a@b.c", models.StringValue(got.CustomerEmail))

		require.NoError(t, repo.Update(ctx, first, map[string]any{"customer_email": nil}))
		got, err = repo.Get(ctx, first)
		require.NoError(t, err)
		assert.Nil(t, got.CustomerEmail)

		assert.ErrorIs(t, repo.Update(ctx, "nope", map[string]any{"status": "x"}), domain.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, first))
		_, err := repo.Get(ctx, first)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
