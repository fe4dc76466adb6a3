// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"people", ensurePeople},
		{"events", ensureEvents},
		{"memberships", ensureMemberships},
		{"invitations", ensureInvitations},
		{"lectures", ensureLectures},
		{"logins", ensureLogins},
		{"merge_outbox", ensureMergeOutbox},
		{"sync_locks", ensureSyncLocks},
	}
	for _, s := range sets {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	av := false
	bv := false
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 { // E11000 duplicate key error index
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// duplicateHints are shown when a unique index cannot be built over existing data.
var duplicateHints = map[string]string{
	"people": `db.people.aggregate([{ $group: { _id: "$email", n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`,
	"memberships": `db.memberships.aggregate([{ $group: { _id: { p: "$person_id", e: "$event_id" }, n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`,
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var desiredName string
		var desiredUnique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			desiredUnique = m.Options.Unique
		}
		unique := desiredUnique != nil && *desiredUnique
		desiredSig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", desiredName),
			zap.String("keys", desiredSig),
			zap.Bool("unique", unique))

		if ex, ok := listExisting(ctx, coll)[desiredSig]; ok {
			if sameBoolPtr(desiredUnique, ex.Unique) && (desiredName == "" || ex.Name == desiredName) {
				log.Debug("reusing existing index")
				continue
			}
			// Name or uniqueness differs: drop and recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop existing index failed", zap.String("existing", ex.Name), zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), desiredName, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			log.Warn("index ensure failed", zap.Duration("took", time.Since(start)), zap.Error(err))
			if isDuplicateKeyErr(err) && unique {
				helper := ""
				if h, ok := duplicateHints[coll.Name()]; ok {
					helper = ". Example finder: " + h
				}
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)%s", coll.Name(), desiredName, helper))
				continue
			}
			errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensurePeople(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("people"), []mongo.IndexModel{
		// Email is the fallback identity key.
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_people_email"),
		},
		// legacy_id is absent until the first sync assigns one.
		{
			Keys: bson.D{{Key: "legacy_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_people_legacy_id").
				SetPartialFilterExpression(bson.M{"legacy_id": bson.M{"$exists": true}}),
		},
	})
}

func ensureEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("events"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_events_code"),
		},
		// ListUpcoming
		{
			Keys:    bson.D{{Key: "end_date", Value: 1}, {Key: "start_date", Value: 1}},
			Options: options.Index().SetName("idx_events_end_start"),
		},
	})
}

func ensureMemberships(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("memberships"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "person_id", Value: 1}, {Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_memberships_person_event"),
		},
		// Per-event listing and attendance counts.
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "attendance", Value: 1}},
			Options: options.Index().SetName("idx_memberships_event_attendance"),
		},
	})
}

func ensureInvitations(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("invitations"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_invitations_code"),
		},
		{
			Keys:    bson.D{{Key: "membership_id", Value: 1}},
			Options: options.Index().SetName("idx_invitations_membership"),
		},
	})
}

func ensureLectures(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("lectures"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "person_id", Value: 1}},
			Options: options.Index().SetName("idx_lectures_person"),
		},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "start_time", Value: 1}},
			Options: options.Index().SetName("idx_lectures_event_start"),
		},
		{
			Keys: bson.D{{Key: "legacy_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_lectures_legacy_id").
				SetPartialFilterExpression(bson.M{"legacy_id": bson.M{"$exists": true}}),
		},
	})
}

func ensureLogins(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("logins"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_logins_email"),
		},
		{
			Keys:    bson.D{{Key: "person_id", Value: 1}},
			Options: options.Index().SetName("idx_logins_person"),
		},
	})
}

func ensureMergeOutbox(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("merge_outbox"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "dedupe_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_merge_outbox_dedupe_key"),
		},
		// Lease scans due rows oldest first.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}},
			Options: options.Index().SetName("idx_merge_outbox_status_next"),
		},
	})
}

func ensureSyncLocks(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("sync_locks"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_sync_locks_expires"),
		},
	})
}
