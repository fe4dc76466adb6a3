// internal/app/store/mergeoutbox/store.go
package mergeoutbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/workshophub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the outbox of legacy person merge requests. Rows move
// pending -> leased -> done, or back to pending with a later
// next_attempt_at, or to dead once retries are exhausted.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("merge_outbox"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DedupeKey identifies a merge of replaceID into withID.
func DedupeKey(replaceID, withID int64) string {
	return fmt.Sprintf("replace:%d:%d", replaceID, withID)
}

// Enqueue records a request to merge replaceID into withID. Enqueueing a
// pair that is already queued, delivered or dead leaves the row alone.
func (s *Store) Enqueue(ctx context.Context, replaceID, withID int64) error {
	now := s.now()
	_, err := s.c.UpdateOne(ctx,
		bson.M{"dedupe_key": DedupeKey(replaceID, withID)},
		bson.M{"$setOnInsert": bson.M{
			"_id":               uuid.NewString(),
			"replace_legacy_id": replaceID,
			"with_legacy_id":    withID,
			"status":            models.MergeStatusPending,
			"attempt_count":     0,
			"next_attempt_at":   now,
			"created_at":        now,
			"updated_at":        now,
		}},
		options.Update().SetUpsert(true))
	if wafflemongo.IsDup(err) {
		// Lost an upsert race with an identical request.
		return nil
	}
	return err
}

// Lease claims the oldest due request for owner until ttl elapses. Requests
// whose lease has expired are claimable again. Returns mongo.ErrNoDocuments
// when nothing is due.
func (s *Store) Lease(ctx context.Context, owner string, ttl time.Duration) (*models.MergeRequest, error) {
	now := s.now()
	filter := bson.M{"$or": []bson.M{
		{"status": models.MergeStatusPending, "next_attempt_at": bson.M{"$lte": now}},
		{"status": models.MergeStatusLeased, "lease_expires_at": bson.M{"$lte": now}},
	}}
	update := bson.M{
		"$set": bson.M{
			"status":           models.MergeStatusLeased,
			"lease_owner":      owner,
			"lease_expires_at": now.Add(ttl),
			"updated_at":       now,
		},
		"$inc": bson.M{"attempt_count": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}}).
		SetReturnDocument(options.After)

	var req models.MergeRequest
	if err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Ack marks a leased request delivered.
func (s *Store) Ack(ctx context.Context, id, owner string) error {
	now := s.now()
	return s.finish(ctx, id, owner, bson.M{
		"$set": bson.M{
			"status":       models.MergeStatusDone,
			"processed_at": now,
			"updated_at":   now,
		},
		"$unset": bson.M{"lease_owner": "", "lease_expires_at": "", "last_error": ""},
	})
}

// Retry returns a leased request to pending, due again at next.
func (s *Store) Retry(ctx context.Context, id, owner string, next time.Time, lastErr string) error {
	return s.finish(ctx, id, owner, bson.M{
		"$set": bson.M{
			"status":          models.MergeStatusPending,
			"next_attempt_at": next.UTC(),
			"last_error":      lastErr,
			"updated_at":      s.now(),
		},
		"$unset": bson.M{"lease_owner": "", "lease_expires_at": ""},
	})
}

// Dead parks a request that will not be retried.
func (s *Store) Dead(ctx context.Context, id, owner, lastErr string) error {
	now := s.now()
	return s.finish(ctx, id, owner, bson.M{
		"$set": bson.M{
			"status":       models.MergeStatusDead,
			"last_error":   lastErr,
			"processed_at": now,
			"updated_at":   now,
		},
		"$unset": bson.M{"lease_owner": "", "lease_expires_at": ""},
	})
}

// finish applies update only while owner still holds the lease, so a worker
// whose lease expired cannot overwrite the outcome of a later attempt.
func (s *Store) finish(ctx context.Context, id, owner string, update bson.M) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.MergeStatusLeased, "lease_owner": owner},
		update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// GetByKey loads the request for a (replaceID, withID) pair.
func (s *Store) GetByKey(ctx context.Context, replaceID, withID int64) (*models.MergeRequest, error) {
	var req models.MergeRequest
	if err := s.c.FindOne(ctx, bson.M{"dedupe_key": DedupeKey(replaceID, withID)}).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// CountByStatus returns the number of requests per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$group": bson.M{"_id": "$status", "n": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			N      int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.Status] = row.N
	}
	return out, cur.Err()
}
