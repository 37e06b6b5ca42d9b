// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/groupchat/internal/app/system/paging"
	"github.com/dalemusser/groupchat/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the name of the chat group collection.
const Collection = "chat_groups"

type Store struct {
	c *mongo.Collection
}

var (
	ErrNotFound       = errors.New("group not found")
	ErrDuplicateGroup = errors.New("a group with this id already exists")
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// NewGroupID returns a fresh opaque group identifier.
func NewGroupID() string {
	return "grp_" + uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Create inserts a new active group. Members must already contain the
// creator as owner; Create only fills ids, counters and timestamps.
func (s *Store) Create(ctx context.Context, g models.ChatGroup) (models.ChatGroup, error) {
	ts := now()
	if g.GroupID == "" {
		g.GroupID = NewGroupID()
	}
	g.IsActive = true
	g.MessageCount = 0
	g.LastMessage = nil
	if g.Tags == nil {
		g.Tags = []string{}
	}
	if g.Members == nil {
		g.Members = []models.Member{}
	}
	for i := range g.Members {
		if g.Members[i].JoinedAt.IsZero() {
			g.Members[i].JoinedAt = ts
		}
	}
	g.CreatedAt = ts
	g.UpdatedAt = ts

	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.ChatGroup{}, ErrDuplicateGroup
		}
		return models.ChatGroup{}, err
	}
	return g, nil
}

// GetForMember returns an active group only if memberID belongs to it.
// A missing group and a non-member caller both yield ErrNotFound.
func (s *Store) GetForMember(ctx context.Context, groupID, memberID string) (models.ChatGroup, error) {
	return s.findOne(ctx, bson.M{
		"group_id":          groupID,
		"is_active":         true,
		"members.member_id": memberID,
	})
}

// GetActive returns an active group regardless of membership.
func (s *Store) GetActive(ctx context.Context, groupID string) (models.ChatGroup, error) {
	return s.findOne(ctx, bson.M{"group_id": groupID, "is_active": true})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.ChatGroup, error) {
	var g models.ChatGroup
	if err := s.c.FindOne(ctx, filter).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ChatGroup{}, ErrNotFound
		}
		return models.ChatGroup{}, err
	}
	return g, nil
}

// ListOptions controls ListForMember.
type ListOptions struct {
	Cursor     string
	Limit      int
	IsArchived bool
}

// Page is one page of groups, newest activity first.
type Page struct {
	Groups     []models.ChatGroup
	NextCursor string
	HasMore    bool
}

// ListForMember lists active groups containing memberID ordered by
// updated_at descending. NextCursor points at the last returned group.
func (s *Store) ListForMember(ctx context.Context, memberID string, opts ListOptions) (Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = paging.GroupPageSize
	}

	filter := bson.M{
		"members.member_id": memberID,
		"is_active":         true,
	}
	if opts.IsArchived {
		filter["is_archived"] = true
	} else {
		filter["is_archived"] = bson.M{"$ne": true}
	}
	if opts.Cursor != "" {
		cur, err := paging.DecodeCursor(opts.Cursor)
		if err != nil {
			return Page{}, err
		}
		for k, v := range cur.Window("updated_at", "group_id", paging.Backward) {
			filter[k] = v
		}
	}

	find := options.Find().
		SetSort(paging.Sort("updated_at", "group_id", paging.Backward)).
		SetLimit(paging.LimitPlusOne(limit))

	cur, err := s.c.Find(ctx, filter, find)
	if err != nil {
		return Page{}, err
	}
	defer cur.Close(ctx)

	var groups []models.ChatGroup
	if err := cur.All(ctx, &groups); err != nil {
		return Page{}, err
	}
	if groups == nil {
		groups = []models.ChatGroup{}
	}

	page := Page{Groups: groups}
	page.HasMore = paging.Trim(&page.Groups, limit)
	if page.HasMore {
		last := page.Groups[len(page.Groups)-1]
		page.NextCursor = paging.EncodeCursor(last.UpdatedAt, last.GroupID)
	}
	return page, nil
}

// Update carries the allow-listed group fields. Nil fields are untouched;
// Settings is merged per field.
type Update struct {
	Name        *string
	Description *string
	Avatar      *string
	Settings    *models.SettingsPatch
	Tags        *[]string
	IsArchived  *bool
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Avatar == nil &&
		u.Settings == nil && u.Tags == nil && u.IsArchived == nil
}

func (u Update) setDoc() bson.M {
	set := bson.M{"updated_at": now()}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Avatar != nil {
		set["avatar"] = *u.Avatar
	}
	if u.Tags != nil {
		tags := *u.Tags
		if tags == nil {
			tags = []string{}
		}
		set["tags"] = tags
	}
	if u.IsArchived != nil {
		set["is_archived"] = *u.IsArchived
	}
	if p := u.Settings; p != nil {
		if p.AllowMemberInvite != nil {
			set["settings.allow_member_invite"] = *p.AllowMemberInvite
		}
		if p.AllowMemberAddBot != nil {
			set["settings.allow_member_add_bot"] = *p.AllowMemberAddBot
		}
		if p.BotRespondOnMention != nil {
			set["settings.bot_respond_on_mention"] = *p.BotRespondOnMention
		}
		if p.MaxMembers != nil {
			set["settings.max_members"] = *p.MaxMembers
		}
		if p.MessageRetentionDays != nil {
			set["settings.message_retention_days"] = *p.MessageRetentionDays
		}
	}
	return set
}

// UpdateFields applies u to an active group and returns the new document.
func (s *Store) UpdateFields(ctx context.Context, groupID string, u Update) (models.ChatGroup, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var g models.ChatGroup
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"group_id": groupID, "is_active": true},
		bson.M{"$set": u.setDoc()},
		opts,
	).Decode(&g)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ChatGroup{}, ErrNotFound
		}
		return models.ChatGroup{}, err
	}
	return g, nil
}

// SoftDelete marks a group inactive. Messages are left in place.
func (s *Store) SoftDelete(ctx context.Context, groupID string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"group_id": groupID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordMessage stores the last-message preview and bumps message_count.
// Re-applying the same message id is a no-op.
func (s *Store) RecordMessage(ctx context.Context, groupID string, last models.LastMessage) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{
			"group_id":                groupID,
			"last_message.message_id": bson.M{"$ne": last.MessageID},
		},
		bson.M{
			"$set": bson.M{"last_message": last, "updated_at": now()},
			"$inc": bson.M{"message_count": 1},
		},
	)
	return err
}

// ListWithRetention returns active groups that have a message retention window.
func (s *Store) ListWithRetention(ctx context.Context) ([]models.ChatGroup, error) {
	proj := options.Find().SetProjection(bson.M{"group_id": 1, "settings": 1})
	cur, err := s.c.Find(ctx, bson.M{
		"is_active":                       true,
		"settings.message_retention_days": bson.M{"$gt": 0},
	}, proj)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ChatGroup
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
