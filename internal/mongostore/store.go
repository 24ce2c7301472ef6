// Package mongostore keeps the document collections in MongoDB.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hairstudio/internal/config"
	"hairstudio/internal/domain"
	"hairstudio/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements domain.DocumentStore; the document id is kept in _id.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zerolog.Logger
}

// Connect opens the client, pings the server and ensures the date indexes.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *zerolog.Logger) (*Store, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database), logger: logger}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info().Str("database", cfg.Database).Msg("Connected to MongoDB")
	return s, nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, name := range []string{models.CollectionAvailability, models.CollectionAppointments} {
		_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "date", Value: 1}},
			Options: options.Index().SetName("date_idx"),
		})
		if err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return toDocument(raw)
}

func (s *Store) List(ctx context.Context, collection string, filter models.Filter) ([]*models.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(collection).Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs := make([]*models.Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", collection, err)
		}
		doc, err := toDocument(raw)
		if err != nil {
			return nil, err
		}
		// mongo сопоставляет null и отсутствующее поле; сверяем как остальные хранилища
		if !filter.Matches(doc.Fields) {
			continue
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
	}
	return docs, nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc *models.Document) (string, error) {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}

	body, err := toBSON(id, doc.Fields)
	if err != nil {
		return "", err
	}

	if _, err := s.db.Collection(collection).InsertOne(ctx, body); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%s/%s: %w", collection, id, domain.ErrAlreadyExists)
		}
		return "", fmt.Errorf("failed to insert document %s/%s: %w", collection, id, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	set, err := toSet(fields)
	if err != nil {
		return err
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return nil
}

func buildFilter(filter models.Filter) bson.M {
	query := bson.M{}
	if r := filter.Range; r != nil {
		bounds := bson.M{}
		if r.From != "" {
			bounds["$gte"] = r.From
		}
		if r.To != "" {
			bounds["$lte"] = r.To
		}
		if len(bounds) == 0 {
			bounds["$type"] = "string"
		}
		query[r.Field] = bounds
	}
	for field, value := range filter.Equals {
		query[field] = value
	}
	return query
}

// toBSON normalizes fields through JSON so numbers and nested values are
// stored the same way the other backends store them.
func toBSON(id string, fields map[string]any) (bson.M, error) {
	normalized, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	body := bson.M{}
	for k, v := range normalized {
		body[k] = v
	}
	body["_id"] = id
	body["stored_at"] = time.Now().UTC()
	return body, nil
}

func toSet(fields map[string]any) (bson.M, error) {
	normalized, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	for k, v := range normalized {
		if k == "_id" {
			continue
		}
		set[k] = v
	}
	set["stored_at"] = time.Now().UTC()
	return set, nil
}

func toDocument(raw bson.M) (*models.Document, error) {
	id, _ := raw["_id"].(string)
	delete(raw, "_id")
	delete(raw, "stored_at")

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &models.Document{ID: id, Fields: fields}, nil
}

func normalize(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	return models.ToFields(fields)
}
