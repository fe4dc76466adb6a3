// internal/app/store/synclocks/store.go
package synclocks

import (
	"context"
	"time"

	"github.com/dalemusser/workshophub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store hands out per-event sync leases. A lease is a document keyed by
// event code; it can be taken when absent, expired, or already held by the
// same owner.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("sync_locks"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Acquire takes the lease on eventCode for owner until ttl elapses.
// Returns models.ErrSyncLocked if another owner holds an unexpired lease.
func (s *Store) Acquire(ctx context.Context, eventCode, owner string, ttl time.Duration) error {
	now := s.now()
	filter := bson.M{
		"_id": eventCode,
		"$or": []bson.M{
			{"expires_at": bson.M{"$lte": now}},
			{"owner": owner},
		},
	}
	update := bson.M{"$set": bson.M{
		"owner":       owner,
		"acquired_at": now,
		"expires_at":  now.Add(ttl),
	}}
	_, err := s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// The filter missed an existing live lease, so the upsert
		// collided with it on _id.
		if wafflemongo.IsDup(err) {
			return models.ErrSyncLocked
		}
		return err
	}
	return nil
}

// Release drops the lease if owner still holds it.
func (s *Store) Release(ctx context.Context, eventCode, owner string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": eventCode, "owner": owner})
	return err
}

// Get loads the lease on eventCode.
func (s *Store) Get(ctx context.Context, eventCode string) (*models.SyncLock, error) {
	var l models.SyncLock
	if err := s.c.FindOne(ctx, bson.M{"_id": eventCode}).Decode(&l); err != nil {
		return nil, err
	}
	return &l, nil
}

// CleanupExpired deletes leases that have expired and returns how many were removed.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": s.now()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
