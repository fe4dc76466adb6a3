// internal/app/store/people/personstore.go
package personstore

import (
	"context"
	"time"

	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store persists people. Writes return duplicate key errors unchanged so
// callers can test them with wafflemongo.IsDup.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("people")}
}

// GetByID loads a person by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Person, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByLegacyID loads the person linked to a legacy record.
func (s *Store) GetByLegacyID(ctx context.Context, legacyID int64) (*models.Person, error) {
	return s.findOne(ctx, bson.M{"legacy_id": legacyID})
}

// GetByEmail looks up a person by case-insensitive email. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.Person, error) {
	return s.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.Person, error) {
	var p models.Person
	if err := s.c.FindOne(ctx, filter).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts p, assigning its ID and CreatedAt. The email is stored normalized.
func (s *Store) Create(ctx context.Context, p *models.Person) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	p.Email = normalize.Email(p.Email)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, p)
	return err
}

// Update replaces the stored person with p. UpdatedAt and UpdatedBy are
// stored as given; they record who last changed the data, not when the
// row was written.
func (s *Store) Update(ctx context.Context, p *models.Person) error {
	p.Email = normalize.Email(p.Email)
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete removes a person. Deleting a missing person is not an error.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
