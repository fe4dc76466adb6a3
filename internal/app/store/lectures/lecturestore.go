// internal/app/store/lectures/lecturestore.go
package lecturestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("lectures")}
}

// Create inserts l.
func (s *Store) Create(ctx context.Context, l *models.Lecture) error {
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	_, err := s.c.InsertOne(ctx, l)
	return err
}

// UpsertByLegacyID inserts l, or overwrites the lecture that already
// carries l.LegacyID. l is refreshed from the stored document.
func (s *Store) UpsertByLegacyID(ctx context.Context, l *models.Lecture) error {
	if l.LegacyID == nil {
		return errors.New("lecture has no legacy_id")
	}
	now := time.Now().UTC()
	set := bson.M{
		"event_id":   l.EventID,
		"person_id":  l.PersonID,
		"title":      l.Title,
		"updated_at": now,
	}
	if l.StartTime != nil {
		set["start_time"] = *l.StartTime
	}
	if l.EndTime != nil {
		set["end_time"] = *l.EndTime
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	return s.c.FindOneAndUpdate(ctx,
		bson.M{"legacy_id": *l.LegacyID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"created_at": now}},
		opts).Decode(l)
}

// ListByPerson returns the lectures a person gives.
func (s *Store) ListByPerson(ctx context.Context, personID primitive.ObjectID) ([]models.Lecture, error) {
	cur, err := s.c.Find(ctx, bson.M{"person_id": personID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Lecture
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByPerson returns the number of lectures a person gives.
func (s *Store) CountByPerson(ctx context.Context, personID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"person_id": personID})
}

// Reparent moves every lecture of from to to and returns how many moved.
func (s *Store) Reparent(ctx context.Context, from, to primitive.ObjectID) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"person_id": from},
		bson.M{"$set": bson.M{"person_id": to, "updated_at": time.Now().UTC()}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
