// internal/domain/models/groupmessage.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message types.
const (
	MessageTypeText        = "text"
	MessageTypeSystem      = "system"
	MessageTypeBotResponse = "bot_response"
	MessageTypeFile        = "file"
	MessageTypeImage       = "image"
)

// Sender types. A system message uses SenderTypeSystem with SystemSenderID.
const (
	SenderTypeUser   = "user"
	SenderTypeBot    = "bot"
	SenderTypeSystem = "system"

	SystemSenderID   = "system"
	SystemSenderName = "System"
)

// ReplyPreviewLen caps ReplyTo.PreviewText.
const ReplyPreviewLen = 100

// GroupMessage is one entry in a group's timeline.
type GroupMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MessageID string             `bson:"message_id" json:"message_id"`
	GroupID   string             `bson:"group_id" json:"group_id"`

	SenderID     string `bson:"sender_id" json:"sender_id"`
	SenderType   string `bson:"sender_type" json:"sender_type"`
	SenderName   string `bson:"sender_name" json:"sender_name"`
	SenderAvatar string `bson:"sender_avatar,omitempty" json:"sender_avatar,omitempty"`

	MessageType string    `bson:"message_type" json:"message_type"`
	Text        string    `bson:"text" json:"text"`
	Content     []any     `bson:"content,omitempty" json:"content,omitempty"`
	Mentions    []Mention `bson:"mentions" json:"mentions"`
	ReplyTo     *ReplyTo  `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	BotMeta     *BotMeta  `bson:"bot_meta,omitempty" json:"bot_meta,omitempty"`

	Reactions   []Reaction    `bson:"reactions" json:"reactions"`
	ReadBy      []ReadReceipt `bson:"read_by" json:"read_by"`
	IsEdited    bool          `bson:"is_edited" json:"is_edited"`
	EditHistory []EditEntry   `bson:"edit_history,omitempty" json:"edit_history,omitempty"`

	IsDeleted bool       `bson:"is_deleted" json:"is_deleted"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedBy string     `bson:"deleted_by,omitempty" json:"deleted_by,omitempty"`

	IsPinned bool       `bson:"is_pinned" json:"is_pinned"`
	PinnedAt *time.Time `bson:"pinned_at,omitempty" json:"pinned_at,omitempty"`
	PinnedBy string     `bson:"pinned_by,omitempty" json:"pinned_by,omitempty"`

	Error        bool   `bson:"error" json:"error"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
	IsGenerating bool   `bson:"is_generating" json:"is_generating"`

	Metadata map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Mention marks a span of Text that references a group member.
type Mention struct {
	MemberID    string `bson:"member_id" json:"member_id"`
	MemberType  string `bson:"member_type" json:"member_type"`
	DisplayName string `bson:"display_name" json:"display_name"`
	StartIndex  int    `bson:"start_index" json:"start_index"`
	EndIndex    int    `bson:"end_index" json:"end_index"`
}

// ReplyTo is a snapshot of the message being replied to.
type ReplyTo struct {
	MessageID   string `bson:"message_id" json:"message_id"`
	SenderID    string `bson:"sender_id" json:"sender_id"`
	SenderName  string `bson:"sender_name" json:"sender_name"`
	PreviewText string `bson:"preview_text" json:"preview_text"`
}

// BotMeta records how a bot response was (or failed to be) produced.
type BotMeta struct {
	BotID            string `bson:"bot_id" json:"bot_id"`
	Endpoint         string `bson:"endpoint" json:"endpoint"`
	Model            string `bson:"model,omitempty" json:"model,omitempty"`
	TokenCount       int    `bson:"token_count,omitempty" json:"token_count,omitempty"`
	FinishReason     string `bson:"finish_reason,omitempty" json:"finish_reason,omitempty"`
	ProcessingTime   int64  `bson:"processing_time,omitempty" json:"processing_time,omitempty"`
	GenerationTime   int64  `bson:"generation_time,omitempty" json:"generation_time,omitempty"`
	Truncated        bool   `bson:"truncated,omitempty" json:"truncated,omitempty"`
	ReplyToMessageID string `bson:"reply_to_message_id,omitempty" json:"reply_to_message_id,omitempty"`
	Error            string `bson:"error,omitempty" json:"error,omitempty"`
}

// Reaction is a single (member, emoji) pair on a message.
type Reaction struct {
	Emoji      string    `bson:"emoji" json:"emoji"`
	MemberID   string    `bson:"member_id" json:"member_id"`
	MemberName string    `bson:"member_name" json:"member_name"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// ReadReceipt records when a member first read a message.
type ReadReceipt struct {
	MemberID string    `bson:"member_id" json:"member_id"`
	ReadAt   time.Time `bson:"read_at" json:"read_at"`
}

// EditEntry keeps the text a message had before an edit.
type EditEntry struct {
	Text     string    `bson:"text" json:"text"`
	EditedAt time.Time `bson:"edited_at" json:"edited_at"`
}

// HasBotMention reports whether any mention targets a bot.
func (m GroupMessage) HasBotMention() bool {
	for _, mn := range m.Mentions {
		if mn.MemberType == MemberTypeBot {
			return true
		}
	}
	return false
}
