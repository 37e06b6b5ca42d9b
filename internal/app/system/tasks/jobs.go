// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"errors"
	"time"

	groupstore "github.com/dalemusser/groupchat/internal/app/store/groups"
	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/botfanout"
	"github.com/dalemusser/groupchat/internal/app/system/auditlog"
	"github.com/dalemusser/groupchat/internal/app/timeline"
	"go.uber.org/zap"
)

// Job is a named unit of periodic background work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// StuckGenerationError is recorded on placeholders the sweeper gives up on.
const StuckGenerationError = "generation timed out"

// stuckBatch caps how many placeholders one sweep settles.
const stuckBatch = 100

// MessageRetentionJob soft-deletes messages older than each group's
// retention window. Groups with a zero window are left alone.
func MessageRetentionJob(groups *groupstore.Store, messages *messagestore.Store, audit *auditlog.Logger, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "message-retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			list, err := groups.ListWithRetention(ctx)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			var total int64
			for _, g := range list {
				cutoff := now.AddDate(0, 0, -g.Settings.MessageRetentionDays)
				n, err := messages.SoftDeleteOlderThan(ctx, g.GroupID, cutoff)
				if err != nil {
					logger.Error("retention sweep failed",
						zap.String("group_id", g.GroupID),
						zap.Error(err))
					continue
				}
				if n > 0 {
					audit.MessagesExpired(ctx, g.GroupID, n, cutoff)
					total += n
				}
			}
			if total > 0 {
				logger.Info("expired messages", zap.Int64("count", total), zap.Int("groups", len(list)))
			}
			return nil
		},
	}
}

// StuckGenerationJob fails bot placeholders that have been generating for
// longer than stuckAfter, e.g. because the process died mid-completion.
func StuckGenerationJob(messages *messagestore.Store, tl *timeline.Writer, logger *zap.Logger, interval, stuckAfter time.Duration) Job {
	return Job{
		Name:     "stuck-generation-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			stuck, err := messages.ListStuckGenerating(ctx, time.Now().UTC().Add(-stuckAfter), stuckBatch)
			if err != nil {
				return err
			}
			settled := 0
			for _, m := range stuck {
				_, err := tl.Finish(ctx, m.MessageID, messagestore.GenerationResult{
					Text:         botfanout.ApologyText,
					Failed:       true,
					ErrorMessage: StuckGenerationError,
				})
				if errors.Is(err, messagestore.ErrNotFound) {
					continue // finished while we looked
				}
				if err != nil {
					logger.Error("failed to settle stuck placeholder",
						zap.String("message_id", m.MessageID),
						zap.Error(err))
					continue
				}
				settled++
			}
			if settled > 0 {
				logger.Warn("settled stuck bot placeholders",
					zap.Int("count", settled),
					zap.Duration("stuck_after", stuckAfter))
			}
			return nil
		},
	}
}
