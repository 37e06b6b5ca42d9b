package timeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	groupstore "github.com/dalemusser/groupchat/internal/app/store/groups"
	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/events"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"github.com/dalemusser/groupchat/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []events.MessageEvent
}

func (r *recorder) Publish(_ context.Context, ev events.MessageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 3); got != "hél" {
		t.Errorf("Truncate = %q, want %q", got, "hél")
	}
	if got := Truncate("hi", 10); got != "hi" {
		t.Errorf("Truncate = %q, want %q", got, "hi")
	}
}

func TestAppend_RecordsOnGroupOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	g := fx.CreateGroup(ctx, "Team", "alice")
	rec := &recorder{}
	w := New(nil, db, rec, nil)

	msg := models.GroupMessage{
		MessageID:  messagestore.NewMessageID(),
		GroupID:    g.GroupID,
		SenderID:   "alice",
		SenderType: models.SenderTypeUser,
		SenderName: "Alice",
		Text:       strings.Repeat("x", 150),
	}
	saved, err := w.Append(ctx, msg)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Retrying the same message must not count it twice.
	if _, err := w.Append(ctx, msg); err != nil {
		t.Fatalf("Append retry: %v", err)
	}

	got, err := groupstore.New(db).GetActive(ctx, g.GroupID)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if got.MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", got.MessageCount)
	}
	if got.LastMessage == nil || got.LastMessage.MessageID != saved.MessageID {
		t.Fatalf("LastMessage = %+v, want message %s", got.LastMessage, saved.MessageID)
	}
	if n := len([]rune(got.LastMessage.Text)); n != models.LastMessagePreviewLen {
		t.Errorf("preview length = %d, want %d", n, models.LastMessagePreviewLen)
	}
	if types := rec.types(); len(types) == 0 || types[0] != events.MessageCreated {
		t.Errorf("events = %v, want message.created first", types)
	}
}

func TestFinish_PublishesUpdate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	bot := testutil.BotMember("helper", "openai", "")
	g := fx.CreateGroup(ctx, "Team", "alice", bot)
	rec := &recorder{}
	w := New(nil, db, rec, nil)

	ph, err := w.Append(ctx, models.GroupMessage{
		GroupID:      g.GroupID,
		SenderID:     bot.MemberID,
		SenderType:   models.SenderTypeBot,
		SenderName:   bot.DisplayName,
		MessageType:  models.MessageTypeBotResponse,
		Text:         "...",
		IsGenerating: true,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	done, err := w.Finish(ctx, ph.MessageID, messagestore.GenerationResult{Text: "answer", GenerationTime: 1500 * time.Millisecond})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if done.IsGenerating || done.Text != "answer" {
		t.Errorf("finished message = %+v", done)
	}

	types := rec.types()
	if len(types) != 2 || types[1] != events.MessageUpdated {
		t.Errorf("events = %v, want [created updated]", types)
	}

	if _, err := w.Finish(ctx, ph.MessageID, messagestore.GenerationResult{Text: "late"}); err != messagestore.ErrNotFound {
		t.Errorf("second Finish err = %v, want ErrNotFound", err)
	}
}
