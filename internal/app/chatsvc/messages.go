package chatsvc

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupchat/internal/app/store/audit"
	"github.com/dalemusser/groupchat/internal/app/system/apperr"
	"github.com/dalemusser/groupchat/internal/app/system/htmlsanitize"
	"github.com/dalemusser/groupchat/internal/app/system/paging"
	"github.com/dalemusser/groupchat/internal/app/timeline"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"go.uber.org/zap"
)

// SendMessageInput is a user message as submitted.
type SendMessageInput struct {
	Text             string
	MessageType      string // text (default), file or image
	ReplyToMessageID string
	Mentions         []models.Mention
	Content          []any
	Metadata         map[string]any
}

// SendMessage stores a user message and, when it mentions bots, starts the
// bot fan-out without waiting for it.
func (s *Service) SendMessage(ctx context.Context, groupID, callerID string, in SendMessageInput) (models.GroupMessage, error) {
	msgType := in.MessageType
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	switch msgType {
	case models.MessageTypeText, models.MessageTypeFile, models.MessageTypeImage:
	default:
		return models.GroupMessage{}, apperr.InvalidArgument("unsupported message type")
	}
	text := htmlsanitize.Plain(in.Text)
	if text == "" && msgType != models.MessageTypeFile {
		return models.GroupMessage{}, apperr.InvalidArgument("message text is required")
	}

	g, sender, err := s.memberOf(ctx, groupID, callerID)
	if err != nil {
		return models.GroupMessage{}, err
	}
	// Only well-formed sends by members spend tokens.
	if s.limiter != nil && !s.limiter.Allow(callerID) {
		return models.GroupMessage{}, apperr.RateLimited("too many messages, slow down")
	}

	m := models.GroupMessage{
		GroupID:      groupID,
		SenderID:     callerID,
		SenderType:   models.SenderTypeUser,
		SenderName:   displayName(sender),
		SenderAvatar: sender.Avatar,
		MessageType:  msgType,
		Text:         text,
		Content:      in.Content,
		Mentions:     ResolveMentions(g, in.Mentions, text),
		Metadata:     in.Metadata,
	}
	if in.ReplyToMessageID != "" {
		parent, err := s.messages.GetInGroup(ctx, groupID, in.ReplyToMessageID)
		if errors.Is(err, messagestore.ErrNotFound) {
			return models.GroupMessage{}, apperr.InvalidArgument("reply target not found")
		}
		if err != nil {
			return models.GroupMessage{}, err
		}
		m.ReplyTo = &models.ReplyTo{
			MessageID:   parent.MessageID,
			SenderID:    parent.SenderID,
			SenderName:  parent.SenderName,
			PreviewText: timeline.Truncate(parent.Text, models.ReplyPreviewLen),
		}
	}

	saved, err := s.timeline.Append(ctx, m)
	if err != nil {
		return models.GroupMessage{}, err
	}

	if saved.HasBotMention() {
		s.log.Info("triggering bot responses",
			zap.String("group_id", groupID),
			zap.String("message_id", saved.MessageID))
	}
	s.fanout.Dispatch(ctx, g, saved)
	return saved, nil
}

// ResolveMentions keeps mentions of current members, takes member type and
// name from the live member list and clamps spans to text.
func ResolveMentions(g models.ChatGroup, in []models.Mention, text string) []models.Mention {
	n := utf8.RuneCountInString(text)
	out := make([]models.Mention, 0, len(in))
	for _, mn := range in {
		m, ok := g.FindMember(mn.MemberID)
		if !ok {
			continue
		}
		start, end := mn.StartIndex, mn.EndIndex
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		if start > end {
			start = end
		}
		out = append(out, models.Mention{
			MemberID:    m.MemberID,
			MemberType:  m.MemberType,
			DisplayName: displayName(m),
			StartIndex:  start,
			EndIndex:    end,
		})
	}
	return out
}

// ListMessages pages through the group's live messages.
func (s *Service) ListMessages(ctx context.Context, groupID, callerID string, opts messagestore.ListOptions) (messagestore.Page, error) {
	if _, _, err := s.memberOf(ctx, groupID, callerID); err != nil {
		return messagestore.Page{}, err
	}
	opts.Limit = clampLimit(opts.Limit, paging.MessagePageSize)
	page, err := s.messages.List(ctx, groupID, opts)
	if err != nil {
		return messagestore.Page{}, classify(err)
	}
	return page, nil
}

// EditMessage replaces the text of the caller's own message.
func (s *Service) EditMessage(ctx context.Context, groupID, callerID, messageID, text string, mentions []models.Mention) (models.GroupMessage, error) {
	text = htmlsanitize.Plain(text)
	if text == "" {
		return models.GroupMessage{}, apperr.InvalidArgument("message text is required")
	}
	g, _, err := s.memberOf(ctx, groupID, callerID)
	if err != nil {
		return models.GroupMessage{}, err
	}
	msg, err := s.messages.GetInGroup(ctx, groupID, messageID)
	if err != nil {
		return models.GroupMessage{}, classify(err)
	}
	if !grouppolicy.CanEditMessage(msg, callerID) {
		return models.GroupMessage{}, apperr.Forbidden("you can only edit your own messages")
	}

	if mentions == nil {
		mentions = msg.Mentions
	}
	edited, err := s.messages.Edit(ctx, groupID, messageID, text, ResolveMentions(g, mentions, text))
	if err != nil {
		return models.GroupMessage{}, classify(err)
	}
	s.timeline.Updated(ctx, edited)
	return edited, nil
}

// DeleteMessage soft-deletes a message. Senders may delete their own;
// owners and admins may delete any.
func (s *Service) DeleteMessage(ctx context.Context, groupID, callerID, messageID string) error {
	g, _, err := s.memberOf(ctx, groupID, callerID)
	if err != nil {
		return err
	}
	msg, err := s.messages.GetInGroup(ctx, groupID, messageID)
	if err != nil {
		return classify(err)
	}
	if !grouppolicy.CanDeleteMessage(g, msg, callerID) {
		return apperr.Forbidden("you do not have permission to delete this message")
	}
	if err := s.messages.SoftDelete(ctx, groupID, messageID, callerID); err != nil {
		return classify(err)
	}

	if msg.SenderID != callerID {
		s.audit.MessageDeletedByModerator(ctx, groupID, callerID, msg)
	}
	msg.IsDeleted = true
	msg.DeletedBy = callerID
	s.timeline.Deleted(ctx, msg)
	return nil
}

// React toggles the caller's emoji reaction on a message.
func (s *Service) React(ctx context.Context, groupID, callerID, messageID, emoji string) (models.GroupMessage, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return models.GroupMessage{}, apperr.InvalidArgument("emoji is required")
	}
	_, me, err := s.memberOf(ctx, groupID, callerID)
	if err != nil {
		return models.GroupMessage{}, err
	}
	msg, err := s.messages.ToggleReaction(ctx, groupID, messageID, models.Reaction{
		Emoji:      emoji,
		MemberID:   callerID,
		MemberName: displayName(me),
	})
	if err != nil {
		return models.GroupMessage{}, classify(err)
	}
	s.timeline.Updated(ctx, msg)
	return msg, nil
}

// SetPinned pins or unpins a message.
func (s *Service) SetPinned(ctx context.Context, groupID, callerID, messageID string, pinned bool) (models.GroupMessage, error) {
	if _, _, err := s.memberOf(ctx, groupID, callerID); err != nil {
		return models.GroupMessage{}, err
	}
	msg, err := s.messages.SetPinned(ctx, groupID, messageID, pinned, callerID)
	if err != nil {
		return models.GroupMessage{}, classify(err)
	}
	s.timeline.Updated(ctx, msg)
	return msg, nil
}

// ListPinned returns the group's pinned messages.
func (s *Service) ListPinned(ctx context.Context, groupID, callerID string) ([]models.GroupMessage, error) {
	if _, _, err := s.memberOf(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	return s.messages.ListPinned(ctx, groupID)
}

// MarkRead moves the caller's read cursor to lastMessageID and records a
// read receipt on every earlier message the caller had not read. It returns
// how many receipts were added; repeating the call adds none.
func (s *Service) MarkRead(ctx context.Context, groupID, callerID, lastMessageID string) (int64, error) {
	if strings.TrimSpace(lastMessageID) == "" {
		return 0, apperr.InvalidArgument("last message id is required")
	}
	if _, _, err := s.memberOf(ctx, groupID, callerID); err != nil {
		return 0, err
	}
	target, err := s.messages.GetByID(ctx, lastMessageID)
	if err != nil {
		return 0, classify(err)
	}
	if target.GroupID != groupID {
		return 0, apperr.NotFound("message not found")
	}

	if err := s.members.SetLastRead(ctx, groupID, callerID, lastMessageID); err != nil {
		return 0, classify(err)
	}
	return s.messages.MarkReadUpTo(ctx, groupID, callerID, target.CreatedAt)
}

// UnreadCount counts live messages newer than the caller's last-read
// message. Without a cursor, or when the cursor message no longer exists,
// every live message counts.
func (s *Service) UnreadCount(ctx context.Context, groupID, callerID string) (int64, error) {
	_, me, err := s.memberOf(ctx, groupID, callerID)
	if err != nil {
		return 0, err
	}
	if me.LastReadMessageID == "" {
		return s.messages.CountAfter(ctx, groupID, nil)
	}
	last, err := s.messages.GetByID(ctx, me.LastReadMessageID)
	if errors.Is(err, messagestore.ErrNotFound) {
		return s.messages.CountAfter(ctx, groupID, nil)
	}
	if err != nil {
		return 0, err
	}
	return s.messages.CountAfter(ctx, groupID, &last.CreatedAt)
}

// Search finds messages containing q, newest first.
func (s *Service) Search(ctx context.Context, groupID, callerID, q string, limit int) ([]models.GroupMessage, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.InvalidArgument("search query is required")
	}
	if _, _, err := s.memberOf(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	return s.messages.Search(ctx, groupID, q, clampLimit(limit, paging.SearchPageSize))
}

// Mentions lists messages that mention the caller, newest first.
func (s *Service) Mentions(ctx context.Context, groupID, callerID string, limit int) ([]models.GroupMessage, error) {
	if _, _, err := s.memberOf(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	return s.messages.ListMentioning(ctx, groupID, callerID, clampLimit(limit, paging.SearchPageSize))
}

// ListAudit returns the group's audit trail, newest first. Owners and
// admins only.
func (s *Service) ListAudit(ctx context.Context, groupID, callerID string, limit int) ([]audit.Event, error) {
	g, err := s.groupFor(ctx, groupID, callerID)
	if err != nil {
		return nil, err
	}
	if !grouppolicy.CanUpdateGroup(g, callerID) {
		return nil, apperr.Forbidden("only owners and admins can view the audit log")
	}
	return s.audits.GetByGroup(ctx, groupID, int64(clampLimit(limit, paging.MessagePageSize)))
}
