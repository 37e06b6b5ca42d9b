package chatsvc

import (
	"context"
	"unicode/utf8"

	groupstore "github.com/dalemusser/groupchat/internal/app/store/groups"

	"github.com/dalemusser/groupchat/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupchat/internal/app/system/apperr"
	"github.com/dalemusser/groupchat/internal/app/system/htmlsanitize"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"go.uber.org/zap"
)

// CreateGroupInput is the caller-supplied part of a new group.
type CreateGroupInput struct {
	Name        string
	Description string
	Avatar      string
	Settings    *models.SettingsPatch
	Tags        []string

	// Creator presentation for the owner member record.
	CreatorName   string
	CreatorAvatar string
}

func cleanName(name string) (string, error) {
	name = htmlsanitize.Plain(name)
	if name == "" {
		return "", apperr.InvalidArgument("group name is required")
	}
	if utf8.RuneCountInString(name) > models.MaxGroupNameLen {
		return "", apperr.InvalidArgument("group name must be 100 characters or less")
	}
	return name, nil
}

func cleanDescription(desc string) (string, error) {
	desc = htmlsanitize.Plain(desc)
	if utf8.RuneCountInString(desc) > models.MaxGroupDescriptionLen {
		return "", apperr.InvalidArgument("group description must be 500 characters or less")
	}
	return desc, nil
}

func checkSettings(p *models.SettingsPatch) error {
	if p == nil {
		return nil
	}
	if p.MaxMembers != nil && *p.MaxMembers < 1 {
		return apperr.InvalidArgument("max_members must be at least 1")
	}
	if p.MessageRetentionDays != nil && *p.MessageRetentionDays < 0 {
		return apperr.InvalidArgument("message_retention_days cannot be negative")
	}
	return nil
}

// CreateGroup creates a group with callerID as its sole owner.
func (s *Service) CreateGroup(ctx context.Context, callerID string, in CreateGroupInput) (models.ChatGroup, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return models.ChatGroup{}, err
	}
	desc, err := cleanDescription(in.Description)
	if err != nil {
		return models.ChatGroup{}, err
	}
	if err := checkSettings(in.Settings); err != nil {
		return models.ChatGroup{}, err
	}

	settings := models.DefaultGroupSettings()
	if in.Settings != nil {
		settings = in.Settings.Apply(settings)
	}
	creatorName := htmlsanitize.Plain(in.CreatorName)
	if creatorName == "" {
		creatorName = callerID
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	g, err := s.groups.Create(ctx, models.ChatGroup{
		Name:        name,
		Description: desc,
		Avatar:      in.Avatar,
		CreatedBy:   callerID,
		Members: []models.Member{{
			MemberID:    callerID,
			MemberType:  models.MemberTypeUser,
			Role:        models.RoleOwner,
			DisplayName: creatorName,
			Avatar:      in.CreatorAvatar,
		}},
		Settings: settings,
		Tags:     tags,
	})
	if err != nil {
		return models.ChatGroup{}, err
	}

	s.log.Info("group created", zap.String("group_id", g.GroupID), zap.String("created_by", callerID))
	s.audit.GroupCreated(ctx, g)
	return g, nil
}

// GetGroup returns the group if callerID is a member.
func (s *Service) GetGroup(ctx context.Context, groupID, callerID string) (models.ChatGroup, error) {
	return s.groupFor(ctx, groupID, callerID)
}

// ListGroups pages through the caller's groups, most recently active first.
func (s *Service) ListGroups(ctx context.Context, callerID string, opts groupstore.ListOptions) (groupstore.Page, error) {
	opts.Limit = clampLimit(opts.Limit, 0)
	page, err := s.groups.ListForMember(ctx, callerID, opts)
	if err != nil {
		return groupstore.Page{}, classify(err)
	}
	return page, nil
}

// UpdateGroup applies u. Owners and admins only.
func (s *Service) UpdateGroup(ctx context.Context, groupID, callerID string, u groupstore.Update) (models.ChatGroup, error) {
	g, err := s.groupFor(ctx, groupID, callerID)
	if err != nil {
		return models.ChatGroup{}, err
	}
	if !grouppolicy.CanUpdateGroup(g, callerID) {
		return models.ChatGroup{}, apperr.Forbidden("only owners and admins can update the group")
	}
	if u.IsEmpty() {
		return g, nil
	}

	var fields []string
	if u.Name != nil {
		name, err := cleanName(*u.Name)
		if err != nil {
			return models.ChatGroup{}, err
		}
		u.Name = &name
		fields = append(fields, "name")
	}
	if u.Description != nil {
		desc, err := cleanDescription(*u.Description)
		if err != nil {
			return models.ChatGroup{}, err
		}
		u.Description = &desc
		fields = append(fields, "description")
	}
	if u.Avatar != nil {
		fields = append(fields, "avatar")
	}
	if u.Settings != nil {
		if err := checkSettings(u.Settings); err != nil {
			return models.ChatGroup{}, err
		}
		fields = append(fields, "settings")
	}
	if u.Tags != nil {
		fields = append(fields, "tags")
	}
	if u.IsArchived != nil {
		fields = append(fields, "is_archived")
	}

	updated, err := s.groups.UpdateFields(ctx, groupID, u)
	if err != nil {
		return models.ChatGroup{}, classify(err)
	}
	s.audit.GroupUpdated(ctx, groupID, callerID, fields)
	if u.IsArchived != nil && *u.IsArchived && !g.IsArchived {
		s.audit.GroupArchived(ctx, groupID, callerID)
	}
	return updated, nil
}

// DeleteGroup soft-deletes the group. Owners only. Messages are kept.
func (s *Service) DeleteGroup(ctx context.Context, groupID, callerID string) error {
	g, err := s.groupFor(ctx, groupID, callerID)
	if err != nil {
		return err
	}
	if !grouppolicy.CanDeleteGroup(g, callerID) {
		return apperr.Forbidden("only owners can delete the group")
	}
	if err := s.groups.SoftDelete(ctx, groupID); err != nil {
		return classify(err)
	}
	s.log.Info("group deleted", zap.String("group_id", groupID), zap.String("deleted_by", callerID))
	s.audit.GroupDeleted(ctx, groupID, callerID)
	return nil
}
