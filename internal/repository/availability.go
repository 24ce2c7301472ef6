package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"hairstudio/internal/domain"
	"hairstudio/internal/models"
)

// AvailabilityRepository stores one availability document per date, keyed by the date.
type AvailabilityRepository struct {
	store domain.DocumentStore
	now   func() time.Time
}

func NewAvailabilityRepository(store domain.DocumentStore) *AvailabilityRepository {
	return &AvailabilityRepository{store: store, now: time.Now}
}

// Get returns nil without error when the date has no record.
func (r *AvailabilityRepository) Get(ctx context.Context, date string) (*models.Availability, error) {
	doc, err := r.store.Get(ctx, models.CollectionAvailability, date)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability %s: %w", date, err)
	}
	return decodeAvailability(doc)
}

func (r *AvailabilityRepository) ListRange(ctx context.Context, from, to string) ([]*models.Availability, error) {
	docs, err := r.store.List(ctx, models.CollectionAvailability, models.Filter{
		Range: &models.RangeFilter{Field: "date", From: from, To: to},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}

	result := make([]*models.Availability, 0, len(docs))
	for _, doc := range docs {
		a, err := decodeAvailability(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// Upsert creates the record or overwrites it, keeping the original creation time.
func (r *AvailabilityRepository) Upsert(ctx context.Context, a *models.Availability) error {
	existing, err := r.Get(ctx, a.Date)
	if err != nil {
		return err
	}

	now := r.now()
	a.UpdatedAt = now
	if existing == nil {
		a.CreatedAt = now
	} else {
		a.CreatedAt = existing.CreatedAt
	}

	fields, err := models.ToFields(a)
	if err != nil {
		return err
	}

	if existing == nil {
		if _, err := r.store.Insert(ctx, models.CollectionAvailability, &models.Document{ID: a.Date, Fields: fields}); err != nil {
			return fmt.Errorf("failed to insert availability %s: %w", a.Date, err)
		}
		return nil
	}
	if err := r.store.Update(ctx, models.CollectionAvailability, a.Date, fields); err != nil {
		return fmt.Errorf("failed to update availability %s: %w", a.Date, err)
	}
	return nil
}

func decodeAvailability(doc *models.Document) (*models.Availability, error) {
	var a models.Availability
	if err := models.FromFields(doc.Fields, &a); err != nil {
		return nil, err
	}
	if a.Date == "" {
		a.Date = doc.ID
	}
	return &a, nil
}
