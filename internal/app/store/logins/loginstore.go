// internal/app/store/logins/loginstore.go
package loginstore

import (
	"context"
	"time"

	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store persists login accounts. Each login belongs to at most one person
// and its email is unique.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("logins")}
}

// GetByPerson loads the login linked to personID.
func (s *Store) GetByPerson(ctx context.Context, personID primitive.ObjectID) (*models.Login, error) {
	return s.findOne(ctx, bson.M{"person_id": personID})
}

// GetByEmail loads a login by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.Login, error) {
	return s.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.Login, error) {
	var l models.Login
	if err := s.c.FindOne(ctx, filter).Decode(&l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts l. If CreatedAt is zero, it's set to time.Now().UTC().
func (s *Store) Create(ctx context.Context, l *models.Login) error {
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	l.Email = normalize.Email(l.Email)
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, l)
	return err
}

// Update replaces the stored login with l and bumps UpdatedAt.
func (s *Store) Update(ctx context.Context, l *models.Login) error {
	l.Email = normalize.Email(l.Email)
	l.UpdatedAt = time.Now().UTC()
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": l.ID}, l)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete removes a login.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
