// internal/app/policy/grouppolicy/grouppolicy.go
package grouppolicy

// Permission rules for chat groups. Every function here is a pure check over
// an already-loaded group; callers load the group (which also proves the
// caller is a member) and then ask.

import (
	"github.com/dalemusser/groupchat/internal/domain/models"
)

// roleOf returns the caller's role, or "" when not a member.
func roleOf(g models.ChatGroup, callerID string) string {
	m, ok := g.FindMember(callerID)
	if !ok {
		return ""
	}
	return m.Role
}

func isManager(role string) bool {
	return role == models.RoleOwner || role == models.RoleAdmin
}

// ValidRole reports whether role is one of owner, admin or member.
func ValidRole(role string) bool {
	switch role {
	case models.RoleOwner, models.RoleAdmin, models.RoleMember:
		return true
	}
	return false
}

// ValidMemberType reports whether t is user or bot.
func ValidMemberType(t string) bool {
	return t == models.MemberTypeUser || t == models.MemberTypeBot
}

// CanUpdateGroup: owners and admins.
func CanUpdateGroup(g models.ChatGroup, callerID string) bool {
	return isManager(roleOf(g, callerID))
}

// CanDeleteGroup: owners only.
func CanDeleteGroup(g models.ChatGroup, callerID string) bool {
	return roleOf(g, callerID) == models.RoleOwner
}

// CanAddMember reports whether callerID may add a member of memberType.
// Owners and admins always can; plain members need the matching group flag.
func CanAddMember(g models.ChatGroup, callerID, memberType string) bool {
	role := roleOf(g, callerID)
	if role == "" {
		return false
	}
	if isManager(role) {
		return true
	}
	switch memberType {
	case models.MemberTypeUser:
		return g.Settings.AllowMemberInvite
	case models.MemberTypeBot:
		return g.Settings.AllowMemberAddBot
	}
	return false
}

// CanRemoveMember: anyone may remove themself; owners may remove anyone;
// admins may remove non-owners.
func CanRemoveMember(g models.ChatGroup, callerID, targetID string) bool {
	role := roleOf(g, callerID)
	if role == "" {
		return false
	}
	if callerID == targetID {
		return true
	}
	if role == models.RoleOwner {
		return true
	}
	if role == models.RoleAdmin {
		return roleOf(g, targetID) != models.RoleOwner
	}
	return false
}

// CanChangeRoles: owners only.
func CanChangeRoles(g models.ChatGroup, callerID string) bool {
	return roleOf(g, callerID) == models.RoleOwner
}

// CanEditMessage: only the original sender.
func CanEditMessage(msg models.GroupMessage, callerID string) bool {
	return msg.SenderID == callerID
}

// CanDeleteMessage: the sender, or an owner/admin of the group.
func CanDeleteMessage(g models.ChatGroup, msg models.GroupMessage, callerID string) bool {
	if msg.SenderID == callerID {
		return true
	}
	return isManager(roleOf(g, callerID))
}

// IsLastOwner reports whether memberID is the group's only owner.
func IsLastOwner(g models.ChatGroup, memberID string) bool {
	return roleOf(g, memberID) == models.RoleOwner && g.OwnerCount() == 1
}
