// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/groupchat/internal/app/store/audit"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"go.uber.org/zap"
)

// Destination settings.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Group controls group lifecycle events (create, update, delete).
	Group string
	// Membership controls member add/remove/role events.
	Membership string
	// Moderation controls deletions by owners/admins and retention expiry.
	Moderation string
}

// ValidMode reports whether s is a recognised destination setting.
func ValidMode(s string) bool {
	switch s {
	case ModeAll, ModeDB, ModeLog, ModeOff:
		return true
	}
	return false
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.String("group_id", event.GroupID),
		zap.Bool("success", event.Success),
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.TargetID != "" {
		fields = append(fields, zap.String("target_id", event.TargetID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryGroup:
		setting = l.config.Group
	case audit.CategoryMembership:
		setting = l.config.Membership
	case audit.CategoryModeration:
		setting = l.config.Moderation
	}
	if setting == "" {
		setting = ModeAll
	}
	if setting == ModeOff {
		return
	}

	if setting == ModeAll || setting == ModeLog {
		l.logToZap(event)
	}

	if (setting == ModeAll || setting == ModeDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Group Events ---

// GroupCreated logs a new group.
func (l *Logger) GroupCreated(ctx context.Context, g models.ChatGroup) {
	l.Log(ctx, audit.Event{
		GroupID:   g.GroupID,
		Category:  audit.CategoryGroup,
		EventType: audit.EventGroupCreated,
		ActorID:   g.CreatedBy,
		Success:   true,
		Details:   map[string]string{"name": g.Name},
	})
}

// GroupUpdated logs a metadata or settings change. fields lists what changed.
func (l *Logger) GroupUpdated(ctx context.Context, groupID, actorID string, fields []string) {
	l.Log(ctx, audit.Event{
		GroupID:   groupID,
		Category:  audit.CategoryGroup,
		EventType: audit.EventGroupUpdated,
		ActorID:   actorID,
		Success:   true,
		Details:   map[string]string{"fields": strings.Join(fields, ",")},
	})
}

// GroupArchived logs a group being archived.
func (l *Logger) GroupArchived(ctx context.Context, groupID, actorID string) {
	l.Log(ctx, audit.Event{
		GroupID:   groupID,
		Category:  audit.CategoryGroup,
		EventType: audit.EventGroupArchived,
		ActorID:   actorID,
		Success:   true,
	})
}

// GroupDeleted logs a soft delete.
func (l *Logger) GroupDeleted(ctx context.Context, groupID, actorID string) {
	l.Log(ctx, audit.Event{
		GroupID:   groupID,
		Category:  audit.CategoryGroup,
		EventType: audit.EventGroupDeleted,
		ActorID:   actorID,
		Success:   true,
	})
}

// --- Membership Events ---

// MemberAdded logs a user or bot joining a group.
func (l *Logger) MemberAdded(ctx context.Context, groupID, actorID string, m models.Member) {
	eventType := audit.EventMemberAdded
	details := map[string]string{"role": m.Role, "member_type": m.MemberType}
	if m.IsBot() {
		eventType = audit.EventBotAdded
		details["bot_id"] = m.BotID
		details["endpoint"] = m.BotEndpoint
	}
	l.Log(ctx, audit.Event{
		GroupID:   groupID,
		Category:  audit.CategoryMembership,
		EventType: eventType,
		ActorID:   actorID,
		TargetID:  m.MemberID,
		Success:   true,
		Details:   details,
	})
}

// MemberRemoved logs a removal. A member removing themself is logged as
// having left.
func (l *Logger) MemberRemoved(ctx context.Context, groupID, actorID, targetID string) {
	eventType := audit.EventMemberRemoved
	if actorID == targetID {
		eventType = audit.EventMemberLeft
	}
	l.Log(ctx, audit.Event{
		GroupID:   groupID,
		Category:  audit.CategoryMembership,
		EventType: eventType,
		ActorID:   actorID,
		TargetID:  targetID,
		Success:   true,
	})
}

// MemberRemoveDenied logs a removal blocked by the last-owner rule.
func (l *Logger) MemberRemoveDenied(ctx context.Context, groupID, actorID, targetID, reason string) {
	l.Log(ctx, audit.Event{
		GroupID:       groupID,
		Category:      audit.CategoryMembership,
		EventType:     audit.EventMemberRemoved,
		ActorID:       actorID,
		TargetID:      targetID,
		Success:       false,
		FailureReason: reason,
	})
}

// RoleChanged logs a role update.
func (l *Logger) RoleChanged(ctx context.Context, groupID, actorID, targetID, from, to string) {
	l.Log(ctx, audit.Event{
		GroupID:   groupID,
		Category:  audit.CategoryMembership,
		EventType: audit.EventMemberRoleChanged,
		ActorID:   actorID,
		TargetID:  targetID,
		Success:   true,
		Details:   map[string]string{"from": from, "to": to},
	})
}

// --- Moderation Events ---

// MessageDeletedByModerator logs an owner or admin deleting someone else's message.
func (l *Logger) MessageDeletedByModerator(ctx context.Context, groupID, actorID string, msg models.GroupMessage) {
	l.Log(ctx, audit.Event{
		GroupID:   groupID,
		Category:  audit.CategoryModeration,
		EventType: audit.EventMessageDeletedByModerator,
		ActorID:   actorID,
		TargetID:  msg.MessageID,
		Success:   true,
		Details:   map[string]string{"sender_id": msg.SenderID},
	})
}

// MessagesExpired logs a retention sweep over one group.
func (l *Logger) MessagesExpired(ctx context.Context, groupID string, n int64, cutoff time.Time) {
	l.Log(ctx, audit.Event{
		GroupID:   groupID,
		Category:  audit.CategoryModeration,
		EventType: audit.EventMessagesExpired,
		ActorID:   "retention",
		Success:   true,
		Details: map[string]string{
			"count":  strconv.FormatInt(n, 10),
			"cutoff": cutoff.UTC().Format(time.RFC3339),
		},
	})
}
