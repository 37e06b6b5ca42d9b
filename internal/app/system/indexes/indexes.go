package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
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

	if err := ensureChatGroups(ctx, db); err != nil {
		problems = append(problems, "chat_groups: "+err.Error())
	}
	if err := ensureGroupMessages(ctx, db); err != nil {
		problems = append(problems, "group_messages: "+err.Error())
	}
	if err := ensureAuditEvents(ctx, db); err != nil {
		problems = append(problems, "chat_audit_events: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func listIndexes(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	bySig := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			return nil, err
		}
		bySig[keySig(idx.Key)] = idx
	}
	return bySig, cur.Err()
}

// ensureIndexSet creates the desired indexes. An index with the same keys
// but another name or uniqueness is dropped and recreated; a matching one is
// left alone.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	existing, err := listIndexes(ctx, coll)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}

	var errs []string
	for _, m := range models {
		name := *m.Options.Name
		unique := m.Options.Unique != nil && *m.Options.Unique
		sig := keySig(m.Keys.(bson.D))

		if ex, ok := existing[sig]; ok {
			if ex.Name == name && ex.Unique == unique {
				continue
			}
			zap.L().Info("replacing index",
				zap.String("collection", coll.Name()),
				zap.String("from", ex.Name),
				zap.String("to", name))
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: drop %s: %v", name, ex.Name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if unique && wafflemongo.IsDup(err) {
				err = fmt.Errorf("duplicates present on %s", sig)
			}
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureChatGroups(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("chat_groups")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// 1) Opaque public id
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_chat_groups_group_id"),
		},

		// 2) "My groups" list: membership + visibility + recency
		{
			Keys: bson.D{
				{Key: "members.member_id", Value: 1},
				{Key: "is_active", Value: 1},
				{Key: "is_archived", Value: 1},
				{Key: "updated_at", Value: -1},
				{Key: "group_id", Value: -1},
			},
			Options: options.Index().SetName("idx_chat_groups_member_active_archived_updated"),
		},

		// 3) Retention sweep
		{
			Keys: bson.D{
				{Key: "is_active", Value: 1},
				{Key: "settings.message_retention_days", Value: 1},
			},
			Options: options.Index().SetName("idx_chat_groups_active_retention"),
		},
	})
}

func ensureGroupMessages(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("group_messages")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// 1) Opaque public id
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_group_messages_message_id"),
		},

		// 2) Timeline pages and unread counts (keyset on created_at + message_id)
		{
			Keys: bson.D{
				{Key: "group_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "message_id", Value: -1},
			},
			Options: options.Index().SetName("idx_group_messages_group_deleted_created"),
		},

		// 3) Mentions of a member
		{
			Keys: bson.D{
				{Key: "group_id", Value: 1},
				{Key: "mentions.member_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_group_messages_group_mentions"),
		},

		// 4) Pinned list
		{
			Keys: bson.D{
				{Key: "group_id", Value: 1},
				{Key: "is_pinned", Value: 1},
				{Key: "pinned_at", Value: -1},
			},
			Options: options.Index().SetName("idx_group_messages_group_pinned"),
		},

		// 5) Stuck placeholder sweep
		{
			Keys: bson.D{
				{Key: "is_generating", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_group_messages_generating_created"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("chat_audit_events")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Per-group trail, newest first
		{
			Keys: bson.D{
				{Key: "group_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_chat_audit_group_timestamp"),
		},
		// Filtering by event type
		{
			Keys: bson.D{
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_chat_audit_type_timestamp"),
		},
	})
}
