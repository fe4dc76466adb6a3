package indexes_test

import (
	"testing"

	"github.com/dalemusser/workshophub/internal/app/system/indexes"
	"github.com/dalemusser/workshophub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func indexNames(t *testing.T, db *mongo.Database, coll string) map[string]bool {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cur, err := db.Collection(coll).Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes on %s failed: %v", coll, err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			t.Fatalf("Decode index failed: %v", err)
		}
		names[idx["name"].(string)] = true
	}
	return names
}

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesNamedIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	want := map[string][]string{
		"people":       {"uniq_people_email", "uniq_people_legacy_id"},
		"events":       {"uniq_events_code", "idx_events_end_start"},
		"memberships":  {"uniq_memberships_person_event", "idx_memberships_event_attendance"},
		"invitations":  {"uniq_invitations_code", "idx_invitations_membership"},
		"lectures":     {"idx_lectures_person", "idx_lectures_event_start", "uniq_lectures_legacy_id"},
		"logins":       {"uniq_logins_email", "idx_logins_person"},
		"merge_outbox": {"uniq_merge_outbox_dedupe_key", "idx_merge_outbox_status_next"},
		"sync_locks":   {"idx_sync_locks_expires"},
	}
	for coll, names := range want {
		got := indexNames(t, db, coll)
		for _, n := range names {
			if !got[n] {
				t.Errorf("%s: missing index %s", coll, n)
			}
		}
	}
}

func TestEnsureAll_RenamesExistingIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := db.Collection("events").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("old_code_name"),
	})
	if err != nil {
		t.Fatalf("CreateOne failed: %v", err)
	}

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	got := indexNames(t, db, "events")
	if got["old_code_name"] {
		t.Error("old index name should have been dropped")
	}
	if !got["uniq_events_code"] {
		t.Error("expected uniq_events_code")
	}
}

func TestEnsureAll_PeopleLegacyIDIsPartial(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	// Two people without a legacy id must not collide.
	people := db.Collection("people")
	if _, err := people.InsertOne(ctx, bson.M{"email": "a@example.com"}); err != nil {
		t.Fatalf("insert a failed: %v", err)
	}
	if _, err := people.InsertOne(ctx, bson.M{"email": "b@example.com"}); err != nil {
		t.Fatalf("insert b failed: %v", err)
	}

	if _, err := people.InsertOne(ctx, bson.M{"email": "c@example.com", "legacy_id": int64(7)}); err != nil {
		t.Fatalf("insert c failed: %v", err)
	}
	if _, err := people.InsertOne(ctx, bson.M{"email": "d@example.com", "legacy_id": int64(7)}); !mongo.IsDuplicateKeyError(err) {
		t.Errorf("expected duplicate key error for repeated legacy_id, got %v", err)
	}
}

func TestEnsureAll_FailsOnDuplicateData(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logins := db.Collection("logins")
	for i := 0; i < 2; i++ {
		if _, err := logins.InsertOne(ctx, bson.M{"email": "same@example.com"}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	if err := indexes.EnsureAll(ctx, db); err == nil {
		t.Fatal("expected EnsureAll to fail when logins.email has duplicates")
	}
}
