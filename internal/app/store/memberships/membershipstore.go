// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"time"

	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store persists event memberships. There is at most one membership per
// (person_id, event_id); a second Create returns a duplicate key error.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("memberships")}
}

// GetByID loads a membership by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Get loads the membership of personID in eventID.
func (s *Store) Get(ctx context.Context, personID, eventID primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	if err := s.c.FindOne(ctx, bson.M{"person_id": personID, "event_id": eventID}).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByEvent returns all memberships of an event.
func (s *Store) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.Membership, error) {
	return s.find(ctx, bson.M{"event_id": eventID})
}

// ListByPerson returns all memberships of a person.
func (s *Store) ListByPerson(ctx context.Context, personID primitive.ObjectID) ([]models.Membership, error) {
	return s.find(ctx, bson.M{"person_id": personID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Membership, error) {
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Membership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByPerson returns the number of memberships a person holds.
func (s *Store) CountByPerson(ctx context.Context, personID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"person_id": personID})
}

// CountByAttendance returns the number of memberships of an event per attendance status.
func (s *Store) CountByAttendance(ctx context.Context, eventID primitive.ObjectID) (map[string]int, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$match": bson.M{"event_id": eventID}},
		{"$group": bson.M{"_id": "$attendance", "n": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := make(map[string]int)
	for cur.Next(ctx) {
		var row struct {
			Attendance string `bson:"_id"`
			N          int    `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		result[row.Attendance] = row.N
	}
	return result, cur.Err()
}

// Create inserts m, assigning its ID and CreatedAt.
func (s *Store) Create(ctx context.Context, m *models.Membership) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, m)
	return err
}

// Update replaces the stored membership with m.
func (s *Store) Update(ctx context.Context, m *models.Membership) error {
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete removes a membership. Deleting a missing membership is not an error.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
