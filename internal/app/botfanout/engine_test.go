package botfanout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/llm"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeTimeline keeps messages in memory and mirrors the store's
// first-terminal-update-wins rule.
type fakeTimeline struct {
	mu   sync.Mutex
	seq  int
	msgs map[string]models.GroupMessage
}

func newFakeTimeline() *fakeTimeline {
	return &fakeTimeline{msgs: map[string]models.GroupMessage{}}
}

func (f *fakeTimeline) Append(_ context.Context, m models.GroupMessage) (models.GroupMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m.MessageID = fmt.Sprintf("ph-%d", f.seq)
	m.CreatedAt = time.Now().UTC()
	f.msgs[m.MessageID] = m
	return m, nil
}

func (f *fakeTimeline) Finish(_ context.Context, id string, r messagestore.GenerationResult) (models.GroupMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[id]
	if !ok || !m.IsGenerating {
		return models.GroupMessage{}, messagestore.ErrNotFound
	}
	m.Text = r.Text
	m.IsGenerating = false
	m.Error = r.Failed
	if r.Failed {
		m.ErrorMessage = r.ErrorMessage
		m.BotMeta.Error = r.ErrorMessage
	} else {
		m.BotMeta.GenerationTime = r.GenerationTime.Milliseconds()
		m.BotMeta.TokenCount = r.TokenCount
		m.BotMeta.FinishReason = r.FinishReason
	}
	f.msgs[id] = m
	return m, nil
}

func (f *fakeTimeline) get(id string) models.GroupMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[id]
}

func (f *fakeTimeline) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeHistory struct {
	msgs []models.GroupMessage
}

func (f fakeHistory) Recent(_ context.Context, _ string, upTo time.Time, n int) ([]models.GroupMessage, error) {
	var out []models.GroupMessage
	for _, m := range f.msgs {
		if !m.CreatedAt.After(upTo) {
			out = append(out, m)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

type staticCompleter struct {
	text string
}

func (s staticCompleter) Complete(context.Context, llm.Request) (llm.Result, error) {
	return llm.Result{Text: s.text, TokenCount: 5, FinishReason: "stop"}, nil
}

type hangingCompleter struct{}

func (hangingCompleter) Complete(ctx context.Context, _ llm.Request) (llm.Result, error) {
	<-ctx.Done()
	return llm.Result{}, ctx.Err()
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.Request) (llm.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(llm.Result), args.Error(1)
}

func bot(id, endpoint string) models.Member {
	return models.Member{
		MemberID:    "bot_" + id + "_0000abcd",
		MemberType:  models.MemberTypeBot,
		Role:        models.RoleMember,
		BotID:       id,
		BotEndpoint: endpoint,
		DisplayName: id,
	}
}

func testGroup(members ...models.Member) models.ChatGroup {
	alice := models.Member{MemberID: "alice", MemberType: models.MemberTypeUser, Role: models.RoleOwner, DisplayName: "Alice"}
	return models.ChatGroup{
		GroupID:  "grp_1",
		Members:  append([]models.Member{alice}, members...),
		Settings: models.DefaultGroupSettings(),
		IsActive: true,
	}
}

func mentionOf(m models.Member) models.Mention {
	return models.Mention{MemberID: m.MemberID, MemberType: models.MemberTypeBot, DisplayName: m.DisplayName}
}

func trigger(mentions ...models.Mention) models.GroupMessage {
	return models.GroupMessage{
		MessageID:   "trigger",
		GroupID:     "grp_1",
		SenderID:    "alice",
		SenderType:  models.SenderTypeUser,
		SenderName:  "Alice",
		MessageType: models.MessageTypeText,
		Text:        "hey bots, thoughts?",
		Mentions:    mentions,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestProcess_IsolatesFailingBot(t *testing.T) {
	botA := bot("a", "anthropic")
	botB := bot("b", "openai")
	g := testGroup(botA, botB)
	trig := trigger(mentionOf(botA), mentionOf(botB))

	reg := llm.NewRegistry()
	// No API key: every call fails with ErrNotConfigured.
	reg.Register(llm.FamilyAnthropic, llm.NewAnthropicClient(llm.AnthropicConfig{}, nil, nil))
	reg.Register(llm.FamilyOpenAI, staticCompleter{text: "B says hi"})

	tl := newFakeTimeline()
	e := New(tl, fakeHistory{msgs: []models.GroupMessage{trig}}, reg, Config{}, nil)

	outcomes := e.Process(context.Background(), g, trig)
	require.Len(t, outcomes, 2)

	byBot := map[string]Outcome{}
	for _, o := range outcomes {
		byBot[o.BotMemberID] = o
	}

	a := tl.get(byBot[botA.MemberID].MessageID)
	assert.ErrorIs(t, byBot[botA.MemberID].Err, llm.ErrNotConfigured)
	assert.True(t, a.Error)
	assert.False(t, a.IsGenerating)
	assert.Equal(t, ApologyText, a.Text)
	assert.NotEmpty(t, a.BotMeta.Error)

	b := tl.get(byBot[botB.MemberID].MessageID)
	assert.True(t, byBot[botB.MemberID].OK())
	assert.False(t, b.Error)
	assert.False(t, b.IsGenerating)
	assert.Equal(t, "B says hi", b.Text)
	assert.Equal(t, "stop", b.BotMeta.FinishReason)
}

func TestProcess_PlaceholderShape(t *testing.T) {
	helper := bot("helper", "openai")
	helper.BotModel = "gpt-4o"
	g := testGroup(helper)
	trig := trigger(mentionOf(helper))

	reg := llm.NewRegistry()
	reg.Register(llm.FamilyOpenAI, staticCompleter{text: "done"})
	tl := newFakeTimeline()
	e := New(tl, fakeHistory{}, reg, Config{}, nil)

	outcomes := e.Process(context.Background(), g, trig)
	require.Len(t, outcomes, 1)

	m := tl.get(outcomes[0].MessageID)
	assert.Equal(t, helper.MemberID, m.SenderID)
	assert.Equal(t, models.SenderTypeBot, m.SenderType)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "trigger", m.ReplyTo.MessageID)
	assert.Equal(t, "hey bots, thoughts?", m.ReplyTo.PreviewText)
	require.NotNil(t, m.BotMeta)
	assert.Equal(t, "helper", m.BotMeta.BotID)
	assert.Equal(t, "gpt-4o", m.BotMeta.Model)
	assert.Equal(t, "trigger", m.BotMeta.ReplyToMessageID)
}

func TestProcess_SkipsMissingAndDuplicateMentions(t *testing.T) {
	helper := bot("helper", "openai")
	gone := bot("gone", "openai")
	g := testGroup(helper)
	trig := trigger(mentionOf(helper), mentionOf(gone), mentionOf(helper))

	reg := llm.NewRegistry()
	reg.Register(llm.FamilyOpenAI, staticCompleter{text: "once"})
	tl := newFakeTimeline()
	e := New(tl, fakeHistory{}, reg, Config{}, nil)

	outcomes := e.Process(context.Background(), g, trig)
	require.Len(t, outcomes, 1)
	assert.Equal(t, helper.MemberID, outcomes[0].BotMemberID)
	assert.Equal(t, 1, tl.count())
}

func TestProcess_NotTriggered(t *testing.T) {
	helper := bot("helper", "openai")
	g := testGroup(helper)
	g.Settings.BotRespondOnMention = false

	tl := newFakeTimeline()
	e := New(tl, fakeHistory{}, llm.NewRegistry(), Config{}, nil)

	assert.Nil(t, e.Process(context.Background(), g, trigger(mentionOf(helper))))
	assert.Equal(t, 0, tl.count())

	g.Settings.BotRespondOnMention = true
	noBots := trigger(models.Mention{MemberID: "alice", MemberType: models.MemberTypeUser})
	assert.Nil(t, e.Process(context.Background(), g, noBots))
}

func TestProcess_TimeoutFailsPlaceholder(t *testing.T) {
	slow := bot("slow", "openai")
	g := testGroup(slow)

	reg := llm.NewRegistry()
	reg.Register(llm.FamilyOpenAI, hangingCompleter{})
	tl := newFakeTimeline()
	e := New(tl, fakeHistory{}, reg, Config{Timeout: 50 * time.Millisecond}, nil)

	outcomes := e.Process(context.Background(), g, trigger(mentionOf(slow)))
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.DeadlineExceeded)
	assert.Contains(t, outcomes[0].Err.Error(), "timed out")

	m := tl.get(outcomes[0].MessageID)
	assert.True(t, m.Error)
	assert.False(t, m.IsGenerating)
}

func TestProcess_UnsupportedEndpointFails(t *testing.T) {
	gem := bot("gem", "google")
	g := testGroup(gem)

	reg := llm.NewRegistry()
	reg.SetFallback(staticCompleter{text: "should not be used"})
	tl := newFakeTimeline()
	e := New(tl, fakeHistory{}, reg, Config{}, nil)

	outcomes := e.Process(context.Background(), g, trigger(mentionOf(gem)))
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, llm.ErrUnsupportedEndpoint)
	assert.Equal(t, ApologyText, tl.get(outcomes[0].MessageID).Text)
}

func TestProcess_BuildsRequest(t *testing.T) {
	helper := bot("helper", "")
	g := testGroup(helper)
	trig := trigger(mentionOf(helper))

	earlier := models.GroupMessage{
		MessageID:   "m0",
		SenderID:    helper.MemberID,
		SenderType:  models.SenderTypeBot,
		SenderName:  "helper",
		MessageType: models.MessageTypeText,
		Text:        "earlier answer",
		CreatedAt:   trig.CreatedAt.Add(-time.Minute),
	}
	joined := models.GroupMessage{
		MessageID:   "sys",
		SenderID:    models.SystemSenderID,
		SenderType:  models.SenderTypeSystem,
		MessageType: models.MessageTypeSystem,
		Text:        "helper joined the group",
		CreatedAt:   trig.CreatedAt.Add(-2 * time.Minute),
	}

	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Model == DefaultModel &&
			req.MaxTokens == DefaultMaxTokens &&
			req.Temperature == DefaultTemperature &&
			len(req.Messages) == 3 &&
			req.Messages[0].Role == llm.RoleSystem &&
			req.Messages[1] == llm.Message{Role: llm.RoleAssistant, Content: "earlier answer"} &&
			req.Messages[2] == llm.Message{Role: llm.RoleUser, Content: "[Alice]: hey bots, thoughts?"}
	})).Return(llm.Result{Text: "reply"}, nil).Once()

	reg := llm.NewRegistry()
	reg.Register(llm.FamilyOpenAI, mc)
	tl := newFakeTimeline()
	e := New(tl, fakeHistory{msgs: []models.GroupMessage{joined, earlier, trig}}, reg, Config{}, nil)

	outcomes := e.Process(context.Background(), g, trig)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	mc.AssertExpectations(t)
}

func TestProcess_ZeroTemperatureIsKept(t *testing.T) {
	helper := bot("helper", "")
	g := testGroup(helper)
	trig := trigger(mentionOf(helper))

	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Temperature == 0
	})).Return(llm.Result{Text: "deterministic"}, nil).Once()

	reg := llm.NewRegistry()
	reg.Register(llm.FamilyOpenAI, mc)
	zero := 0.0
	e := New(newFakeTimeline(), fakeHistory{msgs: []models.GroupMessage{trig}}, reg, Config{Temperature: &zero}, nil)

	outcomes := e.Process(context.Background(), g, trig)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	mc.AssertExpectations(t)
}

func TestProcess_AnthropicKeepsProviderDefaultModel(t *testing.T) {
	claude := bot("claude", "anthropic")
	g := testGroup(claude)

	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Model == ""
	})).Return(llm.Result{Text: "hi"}, nil).Once()

	reg := llm.NewRegistry()
	reg.Register(llm.FamilyAnthropic, mc)
	e := New(newFakeTimeline(), fakeHistory{}, reg, Config{}, nil)

	outcomes := e.Process(context.Background(), g, trigger(mentionOf(claude)))
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	mc.AssertExpectations(t)
}

func TestDispatch_OutlivesRequestContext(t *testing.T) {
	helper := bot("helper", "openai")
	g := testGroup(helper)

	reg := llm.NewRegistry()
	reg.Register(llm.FamilyOpenAI, staticCompleter{text: "late but here"})
	tl := newFakeTimeline()
	e := New(tl, fakeHistory{}, reg, Config{}, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	e.Dispatch(reqCtx, g, trigger(mentionOf(helper)))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, e.Wait(waitCtx))

	m := tl.get("ph-1")
	assert.Equal(t, "late but here", m.Text)
	assert.False(t, m.IsGenerating)
}

func TestTargets(t *testing.T) {
	a := bot("a", "openai")
	g := testGroup(a)
	user := models.Mention{MemberID: "alice", MemberType: models.MemberTypeUser}
	spoofed := models.Mention{MemberID: "alice", MemberType: models.MemberTypeBot}

	bots, missing := Targets(g, trigger(mentionOf(a), user, spoofed))
	require.Len(t, bots, 1)
	assert.Equal(t, a.MemberID, bots[0].MemberID)
	assert.Equal(t, []string{"alice"}, missing)
}
