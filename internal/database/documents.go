package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"hairstudio/internal/domain"
	"hairstudio/internal/models"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (db *DB) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	var body string
	err := db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}

	fields, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	return &models.Document{ID: id, Fields: fields}, nil
}

// List pushes the range and string equality conditions into SQL; the rest of
// the filter is checked on the decoded documents.
func (db *DB) List(ctx context.Context, collection string, filter models.Filter) ([]*models.Document, error) {
	query, args, err := buildListQuery(collection, filter)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan %s document: %w", collection, err)
		}
		fields, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(fields) {
			continue
		}
		docs = append(docs, &models.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
	}
	return docs, nil
}

func buildListQuery(collection string, filter models.Filter) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, body FROM documents WHERE collection = ?`)
	args := []interface{}{collection}

	if r := filter.Range; r != nil {
		if !fieldNamePattern.MatchString(r.Field) {
			return "", nil, domain.InvalidInput("invalid filter field %q", r.Field)
		}
		if r.From != "" {
			sb.WriteString(` AND json_extract(body, ?) >= ?`)
			args = append(args, "$."+r.Field, r.From)
		}
		if r.To != "" {
			sb.WriteString(` AND json_extract(body, ?) <= ?`)
			args = append(args, "$."+r.Field, r.To)
		}
	}

	for field, value := range filter.Equals {
		if !fieldNamePattern.MatchString(field) {
			return "", nil, domain.InvalidInput("invalid filter field %q", field)
		}
		if s, ok := value.(string); ok {
			sb.WriteString(` AND json_extract(body, ?) = ?`)
			args = append(args, "$."+field, s)
		}
	}

	sb.WriteString(` ORDER BY id`)
	return sb.String(), args, nil
}

func (db *DB) Insert(ctx context.Context, collection string, doc *models.Document) (string, error) {
	body, err := encodeBody(doc.Fields)
	if err != nil {
		return "", err
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, id, body, now, now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return "", fmt.Errorf("%s/%s: %w", collection, id, domain.ErrAlreadyExists)
		}
		return "", fmt.Errorf("failed to insert document %s/%s: %w", collection, id, err)
	}
	return id, nil
}

// Update merges fields into the stored body; nil values are kept as explicit nulls.
func (db *DB) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	changes, err := models.ToFields(fields)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load document %s/%s: %w", collection, id, err)
	}

	current, err := decodeBody(body)
	if err != nil {
		return err
	}
	for k, v := range changes {
		current[k] = v
	}

	merged, err := encodeBody(current)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		merged, time.Now().UTC(), collection, id,
	); err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, collection, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return nil
}

func encodeBody(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func decodeBody(body string) (map[string]any, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}
