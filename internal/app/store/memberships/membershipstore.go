// internal/app/store/memberships/membershipstore.go
package membershipstore

// Members are embedded in chat_groups. Every mutation here is a single
// conditional update on the group document so that concurrent adds/removes
// cannot lose each other's writes. When a condition fails the group is
// re-read only to classify the error.

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/groupchat/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("chat_groups")}
}

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrMemberNotFound  = errors.New("member not found in group")
	ErrDuplicateMember = errors.New("member is already in this group")
	ErrGroupFull       = errors.New("group has reached its member limit")
	ErrLastOwner       = errors.New("group must keep at least one owner")
)

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// anotherOwner matches groups where some member other than memberID is an owner.
func anotherOwner(memberID string) bson.M {
	return bson.M{"members": bson.M{"$elemMatch": bson.M{
		"member_id": bson.M{"$ne": memberID},
		"role":      models.RoleOwner,
	}}}
}

// notOwner matches groups where memberID is present and is not an owner.
func notOwner(memberID string) bson.M {
	return bson.M{"members": bson.M{"$elemMatch": bson.M{
		"member_id": memberID,
		"role":      bson.M{"$ne": models.RoleOwner},
	}}}
}

func afterUpdate() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

// Add appends m to the group's members if it is not already present and the
// group is below settings.max_members.
func (s *Store) Add(ctx context.Context, groupID string, m models.Member) (models.ChatGroup, error) {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = now()
	}
	filter := bson.M{
		"group_id":          groupID,
		"is_active":         true,
		"members.member_id": bson.M{"$ne": m.MemberID},
		"$expr": bson.M{"$lt": bson.A{
			bson.M{"$size": "$members"},
			"$settings.max_members",
		}},
	}
	update := bson.M{
		"$push": bson.M{"members": m},
		"$set":  bson.M{"updated_at": now()},
	}

	var g models.ChatGroup
	err := s.c.FindOneAndUpdate(ctx, filter, update, afterUpdate()).Decode(&g)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.ChatGroup{}, err
	}

	cur, err := s.load(ctx, groupID)
	if err != nil {
		return models.ChatGroup{}, err
	}
	if _, ok := cur.FindMember(m.MemberID); ok {
		return models.ChatGroup{}, ErrDuplicateMember
	}
	return models.ChatGroup{}, ErrGroupFull
}

// Remove pulls memberID from the group. Removing an owner only succeeds
// while another owner remains.
func (s *Store) Remove(ctx context.Context, groupID, memberID string) (models.ChatGroup, error) {
	filter := bson.M{
		"group_id":  groupID,
		"is_active": true,
		"$or":       bson.A{notOwner(memberID), bson.M{"$and": bson.A{bson.M{"members.member_id": memberID}, anotherOwner(memberID)}}},
	}
	update := bson.M{
		"$pull": bson.M{"members": bson.M{"member_id": memberID}},
		"$set":  bson.M{"updated_at": now()},
	}

	var g models.ChatGroup
	err := s.c.FindOneAndUpdate(ctx, filter, update, afterUpdate()).Decode(&g)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.ChatGroup{}, err
	}
	return models.ChatGroup{}, s.classifyMissing(ctx, groupID, memberID)
}

// SetRole changes a member's role. Demoting an owner only succeeds while
// another owner remains.
func (s *Store) SetRole(ctx context.Context, groupID, memberID, role string) (models.ChatGroup, error) {
	filter := bson.M{
		"group_id":          groupID,
		"is_active":         true,
		"members.member_id": memberID,
	}
	if role != models.RoleOwner {
		filter["$or"] = bson.A{notOwner(memberID), anotherOwner(memberID)}
	}
	update := bson.M{"$set": bson.M{
		"members.$[m].role": role,
		"updated_at":        now(),
	}}
	opts := afterUpdate().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"m.member_id": memberID}},
	})

	var g models.ChatGroup
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&g)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.ChatGroup{}, err
	}
	return models.ChatGroup{}, s.classifyMissing(ctx, groupID, memberID)
}

// SetLastRead records the member's read cursor.
func (s *Store) SetLastRead(ctx context.Context, groupID, memberID, messageID string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"group_id": groupID, "is_active": true, "members.member_id": memberID},
		bson.M{"$set": bson.M{"members.$[m].last_read_message_id": messageID}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"m.member_id": memberID}},
		}),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// SetMuted toggles notifications for a member.
func (s *Store) SetMuted(ctx context.Context, groupID, memberID string, muted bool) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"group_id": groupID, "is_active": true, "members.member_id": memberID},
		bson.M{"$set": bson.M{"members.$[m].is_muted": muted}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"m.member_id": memberID}},
		}),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *Store) load(ctx context.Context, groupID string) (models.ChatGroup, error) {
	var g models.ChatGroup
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "is_active": true}).Decode(&g)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ChatGroup{}, ErrGroupNotFound
		}
		return models.ChatGroup{}, err
	}
	return g, nil
}

// classifyMissing explains why a member update matched nothing.
func (s *Store) classifyMissing(ctx context.Context, groupID, memberID string) error {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}
	if _, ok := g.FindMember(memberID); !ok {
		return ErrMemberNotFound
	}
	return ErrLastOwner
}
