package repository

import (
	"context"
	"fmt"
	"sort"

	"hairstudio/internal/domain"
	"hairstudio/internal/models"

	"github.com/google/uuid"
)

type AppointmentRepository struct {
	store domain.DocumentStore
}

func NewAppointmentRepository(store domain.DocumentStore) *AppointmentRepository {
	return &AppointmentRepository{store: store}
}

// Get returns domain.ErrNotFound for unknown ids.
func (r *AppointmentRepository) Get(ctx context.Context, id string) (*models.Appointment, error) {
	doc, err := r.store.Get(ctx, models.CollectionAppointments, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return decodeAppointment(doc)
}

// ListByDate returns the date's appointments ordered by time. An empty status matches all.
func (r *AppointmentRepository) ListByDate(ctx context.Context, date, status string) ([]*models.Appointment, error) {
	filter := models.Filter{Equals: map[string]any{"date": date}}
	if status != "" {
		filter.Equals["status"] = status
	}
	return r.list(ctx, filter)
}

// ListRange returns appointments with from <= date <= to, ordered by date and time.
func (r *AppointmentRepository) ListRange(ctx context.Context, from, to, status string) ([]*models.Appointment, error) {
	filter := models.Filter{Range: &models.RangeFilter{Field: "date", From: from, To: to}}
	if status != "" {
		filter.Equals = map[string]any{"status": status}
	}
	return r.list(ctx, filter)
}

func (r *AppointmentRepository) list(ctx context.Context, filter models.Filter) ([]*models.Appointment, error) {
	docs, err := r.store.List(ctx, models.CollectionAppointments, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	result := make([]*models.Appointment, 0, len(docs))
	for _, doc := range docs {
		a, err := decodeAppointment(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		if result[i].Time != result[j].Time {
			return result[i].Time < result[j].Time
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Insert assigns an id when missing and writes every field, nulls included.
func (r *AppointmentRepository) Insert(ctx context.Context, a *models.Appointment) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	fields, err := models.ToFields(a)
	if err != nil {
		return "", err
	}
	id, err := r.store.Insert(ctx, models.CollectionAppointments, &models.Document{ID: a.ID, Fields: fields})
	if err != nil {
		return "", fmt.Errorf("failed to insert appointment: %w", err)
	}
	return id, nil
}

func (r *AppointmentRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := r.store.Update(ctx, models.CollectionAppointments, id, fields); err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, models.CollectionAppointments, id); err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) CountConfirmed(ctx context.Context, date string) (int, error) {
	list, err := r.ListByDate(ctx, date, models.StatusConfirmed)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func decodeAppointment(doc *models.Document) (*models.Appointment, error) {
	var a models.Appointment
	if err := models.FromFields(doc.Fields, &a); err != nil {
		return nil, err
	}
	a.ID = doc.ID
	return &a, nil
}
