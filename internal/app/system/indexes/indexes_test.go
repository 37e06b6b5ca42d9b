package indexes_test

import (
	"context"
	"testing"

	"github.com/dalemusser/groupchat/internal/app/system/indexes"
	"github.com/dalemusser/groupchat/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func indexNames(t *testing.T, ctx context.Context, c *mongo.Collection) map[string]bool {
	t.Helper()
	cur, err := c.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// EnsureAll should succeed on a clean database
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

func TestEnsureAll_CreatesChatGroupIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names := indexNames(t, ctx, db.Collection("chat_groups"))
	for _, name := range []string{
		"uniq_chat_groups_group_id",
		"idx_chat_groups_member_active_archived_updated",
		"idx_chat_groups_active_retention",
	} {
		if !names[name] {
			t.Errorf("expected index %q to exist on chat_groups collection", name)
		}
	}
}

func TestEnsureAll_CreatesGroupMessageIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names := indexNames(t, ctx, db.Collection("group_messages"))
	for _, name := range []string{
		"uniq_group_messages_message_id",
		"idx_group_messages_group_deleted_created",
		"idx_group_messages_group_mentions",
		"idx_group_messages_group_pinned",
		"idx_group_messages_generating_created",
	} {
		if !names[name] {
			t.Errorf("expected index %q to exist on group_messages collection", name)
		}
	}
}

func TestEnsureAll_RenamesExistingIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// an index with the right keys under an old name gets aligned
	c := db.Collection("group_messages")
	_, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "is_generating", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		t.Fatalf("seed index failed: %v", err)
	}

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	names := indexNames(t, ctx, c)
	if !names["idx_group_messages_generating_created"] {
		t.Error("expected index to be renamed to idx_group_messages_generating_created")
	}
	if names["is_generating_1_created_at_1"] {
		t.Error("expected default-named index to be dropped")
	}
}

func TestEnsureAll_CreatesAuditIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	names := indexNames(t, ctx, db.Collection("chat_audit_events"))
	for _, name := range []string{"idx_chat_audit_group_timestamp", "idx_chat_audit_type_timestamp"} {
		if !names[name] {
			t.Errorf("expected index %q to exist on chat_audit_events collection", name)
		}
	}
}

func TestEnsureAll_UpgradesToUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c := db.Collection("group_messages")
	_, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "message_id", Value: 1}},
	})
	if err != nil {
		t.Fatalf("seed index failed: %v", err)
	}

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	if _, err := c.InsertOne(ctx, bson.M{"message_id": "m1"}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := c.InsertOne(ctx, bson.M{"message_id": "m1"}); err == nil {
		t.Error("expected duplicate message_id to be rejected")
	}
}
