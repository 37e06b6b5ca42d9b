// Package chatsvc implements the group chat operations: group lifecycle,
// membership changes and the message timeline. Permission rules come from
// grouppolicy; persistence is delegated to the stores.
//
// Every error returned to callers is an *apperr.Error (or an unclassified
// infrastructure error) so the HTTP layer can pick a status code.
package chatsvc

import (
	"context"
	"errors"

	groupstore "github.com/dalemusser/groupchat/internal/app/store/groups"
	membershipstore "github.com/dalemusser/groupchat/internal/app/store/memberships"
	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/store/audit"
	"github.com/dalemusser/groupchat/internal/app/system/apperr"
	"github.com/dalemusser/groupchat/internal/app/system/auditlog"
	"github.com/dalemusser/groupchat/internal/app/system/paging"
	"github.com/dalemusser/groupchat/internal/app/timeline"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Dispatcher starts a bot fan-out for a freshly stored message. It must not
// block on the fan-out itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, g models.ChatGroup, trigger models.GroupMessage)
}

// Limiter gates message sends per user.
type Limiter interface {
	Allow(key string) bool
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, models.ChatGroup, models.GroupMessage) {}

// Deps are the collaborators of a Service. DB is required; the rest are
// optional.
type Deps struct {
	DB       *mongo.Database
	Timeline *timeline.Writer
	Fanout   Dispatcher
	Limiter  Limiter
	Audit    *auditlog.Logger
	Logger   *zap.Logger
}

// Service is safe for concurrent use.
type Service struct {
	groups   *groupstore.Store
	members  *membershipstore.Store
	messages *messagestore.Store
	audits   *audit.Store
	timeline *timeline.Writer
	fanout   Dispatcher
	limiter  Limiter
	audit    *auditlog.Logger
	log      *zap.Logger
}

func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tl := d.Timeline
	if tl == nil {
		tl = timeline.New(nil, d.DB, nil, logger)
	}
	var fanout Dispatcher = nopDispatcher{}
	if d.Fanout != nil {
		fanout = d.Fanout
	}
	return &Service{
		groups:   groupstore.New(d.DB),
		members:  membershipstore.New(d.DB),
		messages: messagestore.New(d.DB),
		audits:   audit.New(d.DB),
		timeline: tl,
		fanout:   fanout,
		limiter:  d.Limiter,
		audit:    d.Audit,
		log:      logger.With(zap.String("component", "chatsvc")),
	}
}

// classify maps store sentinels onto apperr kinds. Unknown errors pass
// through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, groupstore.ErrNotFound), errors.Is(err, membershipstore.ErrGroupNotFound):
		return apperr.Wrap(apperr.KindNotFound, "group not found", err)
	case errors.Is(err, membershipstore.ErrMemberNotFound):
		return apperr.Wrap(apperr.KindNotFound, "member not found", err)
	case errors.Is(err, membershipstore.ErrDuplicateMember):
		return apperr.Wrap(apperr.KindConflict, "member already exists in group", err)
	case errors.Is(err, membershipstore.ErrGroupFull):
		return apperr.Wrap(apperr.KindCapacity, "group has reached maximum members", err)
	case errors.Is(err, membershipstore.ErrLastOwner):
		return apperr.Wrap(apperr.KindLastOwner, "cannot remove the last owner", err)
	case errors.Is(err, messagestore.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "message not found", err)
	case errors.Is(err, paging.ErrBadCursor):
		return apperr.Wrap(apperr.KindInvalidArgument, "invalid cursor", err)
	}
	return err
}

// groupFor loads an active group the caller belongs to. Missing groups and
// non-members are both NotFound.
func (s *Service) groupFor(ctx context.Context, groupID, callerID string) (models.ChatGroup, error) {
	g, err := s.groups.GetForMember(ctx, groupID, callerID)
	if err != nil {
		return models.ChatGroup{}, classify(err)
	}
	return g, nil
}

// memberOf is groupFor for message operations, where a non-member is told
// they are not allowed rather than that the group does not exist.
func (s *Service) memberOf(ctx context.Context, groupID, callerID string) (models.ChatGroup, models.Member, error) {
	g, err := s.groups.GetForMember(ctx, groupID, callerID)
	if errors.Is(err, groupstore.ErrNotFound) {
		return models.ChatGroup{}, models.Member{}, apperr.Forbidden("you are not a member of this group")
	}
	if err != nil {
		return models.ChatGroup{}, models.Member{}, err
	}
	m, _ := g.FindMember(callerID)
	return g, m, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > paging.MaxPageSize {
		return paging.MaxPageSize
	}
	return limit
}
