// internal/app/store/events/eventstore.go
package eventstore

import (
	"context"
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
	return &Store{c: db.Collection("events")}
}

// GetByID loads an event by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	var ev models.Event
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetByCode loads an event by its code.
func (s *Store) GetByCode(ctx context.Context, code string) (*models.Event, error) {
	var ev models.Event
	if err := s.c.FindOne(ctx, bson.M{"code": code}).Decode(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Create inserts ev.
func (s *Store) Create(ctx context.Context, ev *models.Event) error {
	if ev.ID.IsZero() {
		ev.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	ev.CreatedAt, ev.UpdatedAt = now, now
	_, err := s.c.InsertOne(ctx, ev)
	return err
}

// ListUpcoming returns events that may still be running at from, soonest
// first. End dates are days in the event's own zone, so anything that
// ended less than a day before from is included.
func (s *Store) ListUpcoming(ctx context.Context, from time.Time) ([]models.Event, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"end_date": bson.M{"$gte": from.Add(-24 * time.Hour)}},
		options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkSynced records at as the event's last completed membership sync.
func (s *Store) MarkSynced(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"sync_time": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
