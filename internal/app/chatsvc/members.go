package chatsvc

import (
	"context"
	"strings"

	"github.com/dalemusser/groupchat/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupchat/internal/app/system/apperr"
	"github.com/dalemusser/groupchat/internal/app/system/htmlsanitize"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddMemberInput describes the member to add.
type AddMemberInput struct {
	MemberID    string
	MemberType  string
	Role        string // defaults to member
	DisplayName string
	Avatar      string

	// Bot members only.
	BotID       string
	BotEndpoint string
	BotModel    string
}

// AddBotInput describes a bot to add. The membership id is generated.
type AddBotInput struct {
	BotID       string
	BotEndpoint string
	BotModel    string
	DisplayName string
	Avatar      string
}

// NewBotMemberID returns a membership id for botID. The same bot added to two
// groups gets two distinct ids.
func NewBotMemberID(botID string) string {
	return "bot_" + botID + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func displayName(m models.Member) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.MemberID
}

// AddMember adds a user or bot to the group.
func (s *Service) AddMember(ctx context.Context, groupID, callerID string, in AddMemberInput) (models.ChatGroup, error) {
	in.MemberID = strings.TrimSpace(in.MemberID)
	if in.MemberID == "" {
		return models.ChatGroup{}, apperr.InvalidArgument("member id is required")
	}
	if !grouppolicy.ValidMemberType(in.MemberType) {
		return models.ChatGroup{}, apperr.InvalidArgument("valid member type (user or bot) is required")
	}
	if in.Role == "" || in.MemberType == models.MemberTypeBot {
		// Bots never hold management roles.
		in.Role = models.RoleMember
	}
	if !grouppolicy.ValidRole(in.Role) {
		return models.ChatGroup{}, apperr.InvalidArgument("valid role (owner, admin, member) is required")
	}
	if in.MemberType == models.MemberTypeBot && (strings.TrimSpace(in.BotID) == "" || strings.TrimSpace(in.BotEndpoint) == "") {
		return models.ChatGroup{}, apperr.InvalidArgument("bot id and endpoint are required")
	}

	g, err := s.groupFor(ctx, groupID, callerID)
	if err != nil {
		return models.ChatGroup{}, err
	}
	if !grouppolicy.CanAddMember(g, callerID, in.MemberType) {
		return models.ChatGroup{}, apperr.Forbidden("you do not have permission to add members")
	}
	if in.Role != models.RoleMember && !grouppolicy.CanChangeRoles(g, callerID) {
		return models.ChatGroup{}, apperr.Forbidden("only owners can add members with elevated roles")
	}

	m := models.Member{
		MemberID:    in.MemberID,
		MemberType:  in.MemberType,
		Role:        in.Role,
		DisplayName: htmlsanitize.Plain(in.DisplayName),
		Avatar:      in.Avatar,
	}
	if m.IsBot() {
		m.BotID = in.BotID
		m.BotEndpoint = in.BotEndpoint
		m.BotModel = in.BotModel
	}

	updated, err := s.members.Add(ctx, groupID, m)
	if err != nil {
		return models.ChatGroup{}, classify(err)
	}

	s.log.Info("member added",
		zap.String("group_id", groupID),
		zap.String("member_id", m.MemberID),
		zap.String("member_type", m.MemberType),
		zap.String("added_by", callerID))
	s.audit.MemberAdded(ctx, groupID, callerID, m)
	s.postSystem(ctx, groupID, displayName(m)+" joined the group")
	return updated, nil
}

// AddBot adds a bot under a freshly generated membership id.
func (s *Service) AddBot(ctx context.Context, groupID, callerID string, in AddBotInput) (models.ChatGroup, error) {
	botID := strings.TrimSpace(in.BotID)
	if botID == "" || strings.TrimSpace(in.BotEndpoint) == "" {
		return models.ChatGroup{}, apperr.InvalidArgument("bot id and endpoint are required")
	}
	name := in.DisplayName
	if strings.TrimSpace(name) == "" {
		name = botID
	}
	return s.AddMember(ctx, groupID, callerID, AddMemberInput{
		MemberID:    NewBotMemberID(botID),
		MemberType:  models.MemberTypeBot,
		Role:        models.RoleMember,
		DisplayName: name,
		Avatar:      in.Avatar,
		BotID:       botID,
		BotEndpoint: in.BotEndpoint,
		BotModel:    in.BotModel,
	})
}

// RemoveMember removes targetID. Members may remove themselves; owners may
// remove anyone; admins may remove non-owners. The last owner stays.
func (s *Service) RemoveMember(ctx context.Context, groupID, callerID, targetID string) (models.ChatGroup, error) {
	g, err := s.groupFor(ctx, groupID, callerID)
	if err != nil {
		return models.ChatGroup{}, err
	}
	target, ok := g.FindMember(targetID)
	if !ok {
		return models.ChatGroup{}, apperr.NotFound("member not found")
	}
	if !grouppolicy.CanRemoveMember(g, callerID, targetID) {
		return models.ChatGroup{}, apperr.Forbidden("you do not have permission to remove this member")
	}
	if grouppolicy.IsLastOwner(g, targetID) {
		s.audit.MemberRemoveDenied(ctx, groupID, callerID, targetID, "last owner")
		return models.ChatGroup{}, apperr.LastOwner("cannot remove the last owner")
	}

	updated, err := s.members.Remove(ctx, groupID, targetID)
	if err != nil {
		return models.ChatGroup{}, classify(err)
	}

	s.audit.MemberRemoved(ctx, groupID, callerID, targetID)
	if callerID == targetID {
		s.postSystem(ctx, groupID, displayName(target)+" left the group")
	} else {
		s.postSystem(ctx, groupID, displayName(target)+" was removed from the group")
	}
	return updated, nil
}

// LeaveGroup removes the caller from the group.
func (s *Service) LeaveGroup(ctx context.Context, groupID, callerID string) error {
	_, err := s.RemoveMember(ctx, groupID, callerID, callerID)
	return err
}

// SetMuted turns the caller's own notifications for the group on or off.
func (s *Service) SetMuted(ctx context.Context, groupID, callerID string, muted bool) error {
	if _, err := s.groupFor(ctx, groupID, callerID); err != nil {
		return err
	}
	if err := s.members.SetMuted(ctx, groupID, callerID, muted); err != nil {
		return classify(err)
	}
	return nil
}

// UpdateMemberRole sets targetID's role. Owners only; the last owner cannot
// be demoted.
func (s *Service) UpdateMemberRole(ctx context.Context, groupID, callerID, targetID, role string) (models.ChatGroup, error) {
	if !grouppolicy.ValidRole(role) {
		return models.ChatGroup{}, apperr.InvalidArgument("valid role (owner, admin, member) is required")
	}
	g, err := s.groupFor(ctx, groupID, callerID)
	if err != nil {
		return models.ChatGroup{}, err
	}
	if !grouppolicy.CanChangeRoles(g, callerID) {
		return models.ChatGroup{}, apperr.Forbidden("only owners can change member roles")
	}
	target, ok := g.FindMember(targetID)
	if !ok {
		return models.ChatGroup{}, apperr.NotFound("member not found")
	}
	if target.Role == role {
		return g, nil
	}
	if target.IsBot() {
		return models.ChatGroup{}, apperr.InvalidArgument("bots cannot change role")
	}
	if grouppolicy.IsLastOwner(g, targetID) {
		return models.ChatGroup{}, apperr.LastOwner("cannot demote the last owner")
	}

	updated, err := s.members.SetRole(ctx, groupID, targetID, role)
	if err != nil {
		return models.ChatGroup{}, classify(err)
	}
	s.audit.RoleChanged(ctx, groupID, callerID, targetID, target.Role, role)
	s.postSystem(ctx, groupID, displayName(target)+" is now "+role)
	return updated, nil
}

// postSystem appends a system notice. The membership change it announces has
// already happened, so a failure here is logged and swallowed.
func (s *Service) postSystem(ctx context.Context, groupID, text string) {
	_, err := s.timeline.Append(ctx, models.GroupMessage{
		GroupID:     groupID,
		SenderID:    models.SystemSenderID,
		SenderType:  models.SenderTypeSystem,
		SenderName:  models.SystemSenderName,
		MessageType: models.MessageTypeSystem,
		Text:        text,
	})
	if err != nil {
		s.log.Error("failed to post system message",
			zap.String("group_id", groupID),
			zap.String("text", text),
			zap.Error(err))
	}
}
