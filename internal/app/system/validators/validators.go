// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	// helper: ensure collection exists (with truthful logging) and then validator (if provided)
	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			// DocumentDB or other deployments may not support collMod/validators.
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	// Records mirrored from the legacy system
	ensure("people", peopleSchema())
	ensure("events", eventsSchema())
	ensure("memberships", membershipsSchema())
	ensure("invitations", invitationsSchema())
	ensure("lectures", lecturesSchema())

	ensure("merge_outbox", mergeOutboxSchema())

	// These don't strictly need validators; we still ensure the collections exist.
	ensure("logins", nil)
	ensure("sync_locks", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func toArray(vals []string) bson.A {
	a := make(bson.A, 0, len(vals))
	for _, v := range vals {
		a = append(a, v)
	}
	return a
}

func peopleSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "firstname", "lastname"},
			"properties": bson.M{
				"email":     bson.M{"bsonType": "string", "minLength": 3, "pattern": "^\\S+@\\S+$"},
				"firstname": bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"lastname":  bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"legacy_id": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 1},
			},
		},
	}
}

func eventsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"code", "start_date", "end_date"},
			"properties": bson.M{
				"code":             bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"start_date":       bson.M{"bsonType": "date"},
				"end_date":         bson.M{"bsonType": "date"},
				"event_format":     bson.M{"enum": bson.A{"", models.FormatPhysical, models.FormatOnline, models.FormatHybrid}},
				"max_participants": bson.M{"bsonType": bson.A{"int", "long"}},
				"max_virtual":      bson.M{"bsonType": bson.A{"int", "long"}},
			},
		},
	}
}

func membershipsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"event_id", "person_id", "role"},
			"properties": bson.M{
				"event_id":   bson.M{"bsonType": "objectId"},
				"person_id":  bson.M{"bsonType": "objectId"},
				"role":       bson.M{"enum": toArray(models.Roles)},
				"attendance": bson.M{"bsonType": "string"},
			},
		},
	}
}

func invitationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"code", "membership_id", "expires"},
			"properties": bson.M{
				"code":          bson.M{"bsonType": "string", "minLength": 1},
				"membership_id": bson.M{"bsonType": "objectId"},
				"expires":       bson.M{"bsonType": "date"},
			},
		},
	}
}

func lecturesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"event_id", "person_id"},
			"properties": bson.M{
				"event_id":  bson.M{"bsonType": "objectId"},
				"person_id": bson.M{"bsonType": "objectId"},
			},
		},
	}
}

func mergeOutboxSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"dedupe_key", "replace_legacy_id", "with_legacy_id", "status", "next_attempt_at"},
			"properties": bson.M{
				"dedupe_key":        bson.M{"bsonType": "string", "minLength": 1},
				"replace_legacy_id": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 1},
				"with_legacy_id":    bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 1},
				"status": bson.M{"enum": bson.A{
					models.MergeStatusPending, models.MergeStatusLeased, models.MergeStatusDone, models.MergeStatusDead,
				}},
				"attempt_count":   bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"next_attempt_at": bson.M{"bsonType": "date"},
			},
		},
	}
}
