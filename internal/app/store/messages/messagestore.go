// internal/app/store/messages/messagestore.go
package messagestore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/dalemusser/groupchat/internal/app/system/paging"
	"github.com/dalemusser/groupchat/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the name of the group message collection.
const Collection = "group_messages"

// RetentionDeleter is recorded in deleted_by for messages removed by retention.
const RetentionDeleter = "retention"

type Store struct {
	c *mongo.Collection
}

var (
	ErrNotFound         = errors.New("message not found")
	ErrDuplicateMessage = errors.New("a message with this id already exists")
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// NewMessageID returns a fresh opaque message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func afterUpdate() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func decodeOne(res *mongo.SingleResult) (models.GroupMessage, error) {
	var m models.GroupMessage
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.GroupMessage{}, ErrNotFound
		}
		return models.GroupMessage{}, err
	}
	return m, nil
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]models.GroupMessage, error) {
	defer cur.Close(ctx)
	out := []models.GroupMessage{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert stores a new message, filling id, empty collections and timestamps.
func (s *Store) Insert(ctx context.Context, m models.GroupMessage) (models.GroupMessage, error) {
	if m.MessageID == "" {
		m.MessageID = NewMessageID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	m.CreatedAt = m.CreatedAt.UTC().Truncate(time.Millisecond)
	m.UpdatedAt = m.CreatedAt
	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}
	if m.Mentions == nil {
		m.Mentions = []models.Mention{}
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []models.ReadReceipt{}
	}

	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.GroupMessage{}, ErrDuplicateMessage
		}
		return models.GroupMessage{}, err
	}
	return m, nil
}

// GetByID returns a message by id, deleted or not.
func (s *Store) GetByID(ctx context.Context, messageID string) (models.GroupMessage, error) {
	return decodeOne(s.c.FindOne(ctx, bson.M{"message_id": messageID}))
}

// GetInGroup returns a live (not deleted) message belonging to groupID.
func (s *Store) GetInGroup(ctx context.Context, groupID, messageID string) (models.GroupMessage, error) {
	return decodeOne(s.c.FindOne(ctx, bson.M{
		"message_id": messageID,
		"group_id":   groupID,
		"is_deleted": false,
	}))
}

// ListOptions controls List. Before=true pages towards older messages.
type ListOptions struct {
	Cursor string
	Limit  int
	Before bool
}

// Page is one page of messages in chronological order.
type Page struct {
	Messages   []models.GroupMessage
	NextCursor string
	HasMore    bool
}

// List pages through a group's live messages keyed on (created_at, message_id).
// NextCursor is built from the last message actually returned, so following
// pages neither skip nor repeat a message.
func (s *Store) List(ctx context.Context, groupID string, opts ListOptions) (Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = paging.MessagePageSize
	}
	dir := paging.Forward
	if opts.Before {
		dir = paging.Backward
	}

	filter := bson.M{"group_id": groupID, "is_deleted": false}
	if opts.Cursor != "" {
		cur, err := paging.DecodeCursor(opts.Cursor)
		if err != nil {
			return Page{}, err
		}
		for k, v := range cur.Window("created_at", "message_id", dir) {
			filter[k] = v
		}
	}

	find := options.Find().
		SetSort(paging.Sort("created_at", "message_id", dir)).
		SetLimit(paging.LimitPlusOne(limit))
	cur, err := s.c.Find(ctx, filter, find)
	if err != nil {
		return Page{}, err
	}
	msgs, err := decodeAll(ctx, cur)
	if err != nil {
		return Page{}, err
	}

	page := Page{Messages: msgs}
	page.HasMore = paging.Trim(&page.Messages, limit)
	if page.HasMore {
		last := page.Messages[len(page.Messages)-1]
		page.NextCursor = paging.EncodeCursor(last.CreatedAt, last.MessageID)
	}
	if dir == paging.Backward {
		paging.Reverse(page.Messages)
	}
	return page, nil
}

// Recent returns up to n messages created at or before upTo, oldest first.
// System, deleted and generating messages are included; callers filter.
func (s *Store) Recent(ctx context.Context, groupID string, upTo time.Time, n int) ([]models.GroupMessage, error) {
	find := options.Find().
		SetSort(paging.Sort("created_at", "message_id", paging.Backward)).
		SetLimit(int64(n))
	cur, err := s.c.Find(ctx, bson.M{
		"group_id":   groupID,
		"created_at": bson.M{"$lte": upTo},
	}, find)
	if err != nil {
		return nil, err
	}
	msgs, err := decodeAll(ctx, cur)
	if err != nil {
		return nil, err
	}
	paging.Reverse(msgs)
	return msgs, nil
}

// Edit replaces a live message's text, pushing the previous text onto
// edit_history in the same update.
func (s *Store) Edit(ctx context.Context, groupID, messageID, text string, mentions []models.Mention) (models.GroupMessage, error) {
	ts := now()
	if mentions == nil {
		mentions = []models.Mention{}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"edit_history": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$edit_history", bson.A{}}},
				bson.A{bson.M{"text": "$text", "edited_at": ts}},
			}},
			"text":       bson.M{"$literal": text},
			"mentions":   bson.M{"$literal": mentions},
			"is_edited":  true,
			"updated_at": ts,
		}}},
	}
	return decodeOne(s.c.FindOneAndUpdate(ctx,
		bson.M{"message_id": messageID, "group_id": groupID, "is_deleted": false},
		pipeline, afterUpdate()))
}

// SoftDelete flags a message deleted. The document is kept.
func (s *Store) SoftDelete(ctx context.Context, groupID, messageID, deletedBy string) error {
	ts := now()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"message_id": messageID, "group_id": groupID, "is_deleted": false},
		bson.M{"$set": bson.M{
			"is_deleted": true,
			"deleted_at": ts,
			"deleted_by": deletedBy,
			"updated_at": ts,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleReaction removes the (member, emoji) pair if present, otherwise adds
// it. Both branches are conditional updates, so two concurrent toggles can
// never leave a duplicate pair behind.
func (s *Store) ToggleReaction(ctx context.Context, groupID, messageID string, r models.Reaction) (models.GroupMessage, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	pair := bson.M{"member_id": r.MemberID, "emoji": r.Emoji}
	base := func() bson.M {
		return bson.M{"message_id": messageID, "group_id": groupID, "is_deleted": false}
	}

	for attempt := 0; attempt < 3; attempt++ {
		has := base()
		has["reactions"] = bson.M{"$elemMatch": pair}
		m, err := decodeOne(s.c.FindOneAndUpdate(ctx, has,
			bson.M{"$pull": bson.M{"reactions": pair}, "$set": bson.M{"updated_at": now()}},
			afterUpdate()))
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return models.GroupMessage{}, err
		}

		lacks := base()
		lacks["reactions"] = bson.M{"$not": bson.M{"$elemMatch": pair}}
		m, err = decodeOne(s.c.FindOneAndUpdate(ctx, lacks,
			bson.M{"$push": bson.M{"reactions": r}, "$set": bson.M{"updated_at": now()}},
			afterUpdate()))
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return models.GroupMessage{}, err
		}

		if _, err := s.GetInGroup(ctx, groupID, messageID); err != nil {
			return models.GroupMessage{}, err
		}
	}
	return models.GroupMessage{}, ErrNotFound
}

// MarkReadUpTo adds a read receipt for memberID to every message in the group
// created at or before upTo that the member has not read yet.
func (s *Store) MarkReadUpTo(ctx context.Context, groupID, memberID string, upTo time.Time) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{
			"group_id":          groupID,
			"created_at":        bson.M{"$lte": upTo},
			"read_by.member_id": bson.M{"$ne": memberID},
		},
		bson.M{"$push": bson.M{"read_by": models.ReadReceipt{MemberID: memberID, ReadAt: now()}}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountAfter counts live messages in the group created strictly after the
// given time. A nil time counts every live message.
func (s *Store) CountAfter(ctx context.Context, groupID string, after *time.Time) (int64, error) {
	filter := bson.M{"group_id": groupID, "is_deleted": false}
	if after != nil {
		filter["created_at"] = bson.M{"$gt": *after}
	}
	return s.c.CountDocuments(ctx, filter)
}

// SetPinned pins or unpins a live message.
func (s *Store) SetPinned(ctx context.Context, groupID, messageID string, pinned bool, by string) (models.GroupMessage, error) {
	ts := now()
	update := bson.M{
		"$set": bson.M{"is_pinned": true, "pinned_at": ts, "pinned_by": by, "updated_at": ts},
	}
	if !pinned {
		update = bson.M{
			"$set":   bson.M{"is_pinned": false, "updated_at": ts},
			"$unset": bson.M{"pinned_at": "", "pinned_by": ""},
		}
	}
	return decodeOne(s.c.FindOneAndUpdate(ctx,
		bson.M{"message_id": messageID, "group_id": groupID, "is_deleted": false},
		update, afterUpdate()))
}

// ListPinned returns the group's pinned live messages, most recently pinned first.
func (s *Store) ListPinned(ctx context.Context, groupID string) ([]models.GroupMessage, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"group_id": groupID, "is_pinned": true, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "pinned_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

// Search finds live messages whose text contains q, case-insensitively,
// newest first. q is matched literally.
func (s *Store) Search(ctx context.Context, groupID, q string, limit int) ([]models.GroupMessage, error) {
	cur, err := s.c.Find(ctx,
		bson.M{
			"group_id":   groupID,
			"is_deleted": false,
			"text":       bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"},
		},
		options.Find().
			SetSort(paging.Sort("created_at", "message_id", paging.Backward)).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

// ListMentioning returns live messages that mention memberID, newest first.
func (s *Store) ListMentioning(ctx context.Context, groupID, memberID string, limit int) ([]models.GroupMessage, error) {
	cur, err := s.c.Find(ctx,
		bson.M{
			"group_id":           groupID,
			"is_deleted":         false,
			"mentions.member_id": memberID,
		},
		options.Find().
			SetSort(paging.Sort("created_at", "message_id", paging.Backward)).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

// GenerationResult is the terminal state of a bot placeholder.
type GenerationResult struct {
	Text           string
	Failed         bool
	ErrorMessage   string
	GenerationTime time.Duration
	TokenCount     int
	FinishReason   string
}

// FinishGeneration moves a placeholder out of the generating state. Only the
// first terminal update wins; a placeholder that has already finished
// returns ErrNotFound.
func (s *Store) FinishGeneration(ctx context.Context, messageID string, r GenerationResult) (models.GroupMessage, error) {
	set := bson.M{
		"text":          r.Text,
		"is_generating": false,
		"error":         r.Failed,
		"updated_at":    now(),
	}
	if r.Failed {
		set["error_message"] = r.ErrorMessage
		set["bot_meta.error"] = r.ErrorMessage
	} else {
		set["bot_meta.generation_time"] = r.GenerationTime.Milliseconds()
		if r.TokenCount > 0 {
			set["bot_meta.token_count"] = r.TokenCount
		}
		if r.FinishReason != "" {
			set["bot_meta.finish_reason"] = r.FinishReason
		}
	}
	return decodeOne(s.c.FindOneAndUpdate(ctx,
		bson.M{"message_id": messageID, "is_generating": true},
		bson.M{"$set": set}, afterUpdate()))
}

// ListStuckGenerating returns placeholders still generating that were
// created before the given time.
func (s *Store) ListStuckGenerating(ctx context.Context, before time.Time, limit int) ([]models.GroupMessage, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"is_generating": true, "created_at": bson.M{"$lt": before}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

// SoftDeleteOlderThan soft-deletes a group's live messages created before cutoff.
func (s *Store) SoftDeleteOlderThan(ctx context.Context, groupID string, cutoff time.Time) (int64, error) {
	ts := now()
	res, err := s.c.UpdateMany(ctx,
		bson.M{
			"group_id":   groupID,
			"is_deleted": false,
			"created_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"is_deleted": true,
			"deleted_at": ts,
			"deleted_by": RetentionDeleter,
			"updated_at": ts,
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
