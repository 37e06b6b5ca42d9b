// internal/domain/models/chatgroup.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Member roles inside a chat group.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Member types.
const (
	MemberTypeUser = "user"
	MemberTypeBot  = "bot"
)

// Group-level limits.
const (
	MaxGroupNameLen        = 100
	MaxGroupDescriptionLen = 500
	DefaultMaxMembers      = 50
	LastMessagePreviewLen  = 100
)

// ChatGroup is a persistent multi-party conversation shared by users and bots.
//
// NOTE:
//   - Members are embedded; every membership mutation is a single-document
//     conditional update on this record.
//   - An inactive group (is_active=false) is invisible to member-facing reads.
type ChatGroup struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	GroupID     string             `bson:"group_id" json:"group_id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Avatar      string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	CreatedBy   string             `bson:"created_by" json:"created_by"`

	Members  []Member      `bson:"members" json:"members"`
	Settings GroupSettings `bson:"settings" json:"settings"`

	IsActive   bool `bson:"is_active" json:"is_active"`
	IsArchived bool `bson:"is_archived" json:"is_archived"`

	LastMessage  *LastMessage `bson:"last_message,omitempty" json:"last_message,omitempty"`
	MessageCount int64        `bson:"message_count" json:"message_count"`
	Tags         []string     `bson:"tags" json:"tags"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Member is one participant of a ChatGroup.
type Member struct {
	MemberID    string `bson:"member_id" json:"member_id"`
	MemberType  string `bson:"member_type" json:"member_type"`
	Role        string `bson:"role" json:"role"`
	BotID       string `bson:"bot_id,omitempty" json:"bot_id,omitempty"`
	BotEndpoint string `bson:"bot_endpoint,omitempty" json:"bot_endpoint,omitempty"`
	BotModel    string `bson:"bot_model,omitempty" json:"bot_model,omitempty"`
	DisplayName string `bson:"display_name" json:"display_name"`
	Avatar      string `bson:"avatar,omitempty" json:"avatar,omitempty"`

	JoinedAt          time.Time `bson:"joined_at" json:"joined_at"`
	IsMuted           bool      `bson:"is_muted" json:"is_muted"`
	LastReadMessageID string    `bson:"last_read_message_id,omitempty" json:"last_read_message_id,omitempty"`
}

// IsBot reports whether the member is an LLM-backed participant.
func (m Member) IsBot() bool { return m.MemberType == MemberTypeBot }

// GroupSettings controls who may invite and how bots behave.
type GroupSettings struct {
	AllowMemberInvite    bool `bson:"allow_member_invite" json:"allow_member_invite"`
	AllowMemberAddBot    bool `bson:"allow_member_add_bot" json:"allow_member_add_bot"`
	BotRespondOnMention  bool `bson:"bot_respond_on_mention" json:"bot_respond_on_mention"`
	MaxMembers           int  `bson:"max_members" json:"max_members"`
	MessageRetentionDays int  `bson:"message_retention_days" json:"message_retention_days"`
}

// DefaultGroupSettings returns the settings a new group starts with.
func DefaultGroupSettings() GroupSettings {
	return GroupSettings{
		AllowMemberInvite:   false,
		AllowMemberAddBot:   false,
		BotRespondOnMention: true,
		MaxMembers:          DefaultMaxMembers,
	}
}

// SettingsPatch is a shallow per-field update of GroupSettings.
// Nil fields are left unchanged.
type SettingsPatch struct {
	AllowMemberInvite    *bool `json:"allow_member_invite,omitempty"`
	AllowMemberAddBot    *bool `json:"allow_member_add_bot,omitempty"`
	BotRespondOnMention  *bool `json:"bot_respond_on_mention,omitempty"`
	MaxMembers           *int  `json:"max_members,omitempty"`
	MessageRetentionDays *int  `json:"message_retention_days,omitempty"`
}

// Apply merges the patch over s and returns the result.
func (p SettingsPatch) Apply(s GroupSettings) GroupSettings {
	if p.AllowMemberInvite != nil {
		s.AllowMemberInvite = *p.AllowMemberInvite
	}
	if p.AllowMemberAddBot != nil {
		s.AllowMemberAddBot = *p.AllowMemberAddBot
	}
	if p.BotRespondOnMention != nil {
		s.BotRespondOnMention = *p.BotRespondOnMention
	}
	if p.MaxMembers != nil {
		s.MaxMembers = *p.MaxMembers
	}
	if p.MessageRetentionDays != nil {
		s.MessageRetentionDays = *p.MessageRetentionDays
	}
	return s
}

// LastMessage is the denormalized preview of the newest message in a group.
type LastMessage struct {
	MessageID  string    `bson:"message_id" json:"message_id"`
	Text       string    `bson:"text" json:"text"`
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	SenderName string    `bson:"sender_name" json:"sender_name"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// FindMember returns the member with the given id, if present.
func (g ChatGroup) FindMember(memberID string) (Member, bool) {
	for _, m := range g.Members {
		if m.MemberID == memberID {
			return m, true
		}
	}
	return Member{}, false
}

// OwnerCount returns how many members hold the owner role.
func (g ChatGroup) OwnerCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Role == RoleOwner {
			n++
		}
	}
	return n
}
