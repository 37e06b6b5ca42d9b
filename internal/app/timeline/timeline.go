// Package timeline appends and updates group messages. Every write keeps the
// group's last-message preview and counter in step and announces the change
// on the event publisher.
package timeline

import (
	"context"
	"errors"

	groupstore "github.com/dalemusser/groupchat/internal/app/store/groups"
	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/events"
	"github.com/dalemusser/groupchat/internal/app/system/txn"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Writer is safe for concurrent use.
type Writer struct {
	client   *mongo.Client
	groups   *groupstore.Store
	messages *messagestore.Store
	pub      events.Publisher
	log      *zap.Logger
}

// New returns a Writer. client may be nil, in which case the message insert
// and the group update run without a transaction.
func New(client *mongo.Client, db *mongo.Database, pub events.Publisher, logger *zap.Logger) *Writer {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		client:   client,
		groups:   groupstore.New(db),
		messages: messagestore.New(db),
		pub:      pub,
		log:      logger,
	}
}

// Preview builds the group's last-message snapshot for m.
func Preview(m models.GroupMessage) models.LastMessage {
	return models.LastMessage{
		MessageID:  m.MessageID,
		Text:       Truncate(m.Text, models.LastMessagePreviewLen),
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		CreatedAt:  m.CreatedAt,
	}
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Append inserts m and records it on its group as one logical write. A
// retried attempt that finds the message already stored continues with the
// group update, which ignores a message id it has already counted.
func (w *Writer) Append(ctx context.Context, m models.GroupMessage) (models.GroupMessage, error) {
	if m.MessageID == "" {
		m.MessageID = messagestore.NewMessageID()
	}

	var saved models.GroupMessage
	err := txn.Run(ctx, w.client, w.log, func(ctx context.Context) error {
		var err error
		saved, err = w.messages.Insert(ctx, m)
		if errors.Is(err, messagestore.ErrDuplicateMessage) {
			saved, err = w.messages.GetByID(ctx, m.MessageID)
		}
		if err != nil {
			return err
		}
		return w.groups.RecordMessage(ctx, saved.GroupID, Preview(saved))
	})
	if err != nil {
		return models.GroupMessage{}, err
	}

	w.publish(ctx, events.MessageCreated, saved)
	return saved, nil
}

// Finish moves a bot placeholder to its terminal state.
func (w *Writer) Finish(ctx context.Context, messageID string, r messagestore.GenerationResult) (models.GroupMessage, error) {
	m, err := w.messages.FinishGeneration(ctx, messageID, r)
	if err != nil {
		return models.GroupMessage{}, err
	}
	w.publish(ctx, events.MessageUpdated, m)
	return m, nil
}

// Updated announces an in-place change to m.
func (w *Writer) Updated(ctx context.Context, m models.GroupMessage) {
	w.publish(ctx, events.MessageUpdated, m)
}

// Deleted announces a soft delete.
func (w *Writer) Deleted(ctx context.Context, m models.GroupMessage) {
	w.publish(ctx, events.MessageDeleted, m)
}

func (w *Writer) publish(ctx context.Context, typ string, m models.GroupMessage) {
	err := w.pub.Publish(ctx, events.MessageEvent{Type: typ, GroupID: m.GroupID, Message: m})
	if err != nil {
		w.log.Warn("publish message event failed",
			zap.String("type", typ),
			zap.String("group_id", m.GroupID),
			zap.String("message_id", m.MessageID),
			zap.Error(err))
	}
}
