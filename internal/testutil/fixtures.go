package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/groupchat/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// UserMember builds a user member with the given role.
func UserMember(userID, name, role string) models.Member {
	return models.Member{
		MemberID:    userID,
		MemberType:  models.MemberTypeUser,
		Role:        role,
		DisplayName: name,
		JoinedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

// BotMember builds a bot member backed by the given endpoint.
func BotMember(botID, endpoint, model string) models.Member {
	return models.Member{
		MemberID:    "bot_" + botID + "_" + uuid.NewString()[:8],
		MemberType:  models.MemberTypeBot,
		Role:        models.RoleMember,
		BotID:       botID,
		BotEndpoint: endpoint,
		BotModel:    model,
		DisplayName: "Bot " + botID,
		JoinedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

// CreateGroup inserts an active group owned by ownerID with any extra members.
func (f *Fixtures) CreateGroup(ctx context.Context, name, ownerID string, extra ...models.Member) models.ChatGroup {
	f.t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	members := append([]models.Member{UserMember(ownerID, "Owner "+ownerID, models.RoleOwner)}, extra...)
	g := models.ChatGroup{
		GroupID:   "grp_" + uuid.NewString(),
		Name:      name,
		CreatedBy: ownerID,
		Members:   members,
		Settings:  models.DefaultGroupSettings(),
		IsActive:  true,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("chat_groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	return g
}

// CreateMessage inserts a text message from sender into the group at the given time.
func (f *Fixtures) CreateMessage(ctx context.Context, groupID string, sender models.Member, text string, at time.Time) models.GroupMessage {
	f.t.Helper()

	at = at.UTC().Truncate(time.Millisecond)
	senderType := models.SenderTypeUser
	msgType := models.MessageTypeText
	if sender.IsBot() {
		senderType = models.SenderTypeBot
		msgType = models.MessageTypeBotResponse
	}
	m := models.GroupMessage{
		MessageID:   uuid.NewString(),
		GroupID:     groupID,
		SenderID:    sender.MemberID,
		SenderType:  senderType,
		SenderName:  sender.DisplayName,
		MessageType: msgType,
		Text:        text,
		Mentions:    []models.Mention{},
		Reactions:   []models.Reaction{},
		ReadBy:      []models.ReadReceipt{},
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if _, err := f.db.Collection("group_messages").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test message: %v", err)
	}
	return m
}
