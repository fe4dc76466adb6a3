// internal/app/store/invitations/invitationstore.go
package invitationstore

import (
	"context"
	"time"

	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("invitations")}
}

// GetByCode loads an invitation by its padded code.
func (s *Store) GetByCode(ctx context.Context, code string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.c.FindOne(ctx, bson.M{"code": code}).Decode(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create inserts inv. Codes are unique.
func (s *Store) Create(ctx context.Context, inv *models.Invitation) error {
	if inv.ID.IsZero() {
		inv.ID = primitive.NewObjectID()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, inv)
	return err
}

// RepointMembership moves every invitation of membership from to membership to.
func (s *Store) RepointMembership(ctx context.Context, from, to primitive.ObjectID) (int64, error) {
	res, err := s.c.UpdateMany(ctx, bson.M{"membership_id": from}, bson.M{"$set": bson.M{"membership_id": to}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Delete removes an invitation once its RSVP has been recorded.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
