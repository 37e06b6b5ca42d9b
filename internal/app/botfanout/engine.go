// Package botfanout answers bot mentions. For each bot mentioned in a new
// message it posts a "typing" placeholder, builds the bot's view of recent
// history, asks the bot's completion provider for a reply and settles the
// placeholder with the reply or an apology.
//
// Bots are handled independently: one bot failing or hanging never affects
// another, and nothing here is reported back to the sender's request.
package botfanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/chathistory"
	"github.com/dalemusser/groupchat/internal/app/llm"
	"github.com/dalemusser/groupchat/internal/domain/models"
	"go.uber.org/zap"
)

const (
	// PlaceholderText is shown while a bot is generating.
	PlaceholderText = "..."
	// ApologyText replaces the placeholder when generation fails.
	ApologyText = "Sorry, I encountered an error while generating a response."
)

// Defaults applied by New for zero Config fields.
const (
	DefaultModel          = llm.DefaultOpenAIModel
	DefaultMaxTokens      = 1024
	DefaultTemperature    = 0.7
	DefaultTimeout        = 60 * time.Second
	DefaultMaxConcurrency = 8
	finishTimeout         = 10 * time.Second
)

// Timeline persists bot messages.
type Timeline interface {
	Append(ctx context.Context, m models.GroupMessage) (models.GroupMessage, error)
	Finish(ctx context.Context, messageID string, r messagestore.GenerationResult) (models.GroupMessage, error)
}

// History reads recent messages for context.
type History interface {
	Recent(ctx context.Context, groupID string, upTo time.Time, n int) ([]models.GroupMessage, error)
}

// Completers resolves a bot endpoint to a provider.
type Completers interface {
	Lookup(endpoint string) (llm.Completer, llm.Family, error)
}

// Config tunes completions. Zero fields take the package defaults, except
// Temperature where only nil does: 0 is a valid sampling temperature.
type Config struct {
	DefaultModel   string
	MaxTokens      int
	Temperature    *float64
	Timeout        time.Duration
	MaxConcurrency int
	SystemPrompt   string
}

// Outcome is the settled result for one mentioned bot.
type Outcome struct {
	BotMemberID string
	MessageID   string // placeholder id, empty if none was created
	Message     models.GroupMessage
	Err         error
}

// OK reports whether the bot replied successfully.
func (o Outcome) OK() bool { return o.Err == nil }

// Engine runs mention fan-outs. It is safe for concurrent use.
type Engine struct {
	timeline   Timeline
	history    History
	completers Completers
	cfg        Config
	log        *zap.Logger

	sem     chan struct{}
	pending sync.WaitGroup
}

// New returns an Engine.
func New(tl Timeline, hist History, completers Completers, cfg Config, logger *zap.Logger) *Engine {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == nil {
		t := DefaultTemperature
		cfg.Temperature = &t
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = chathistory.DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		timeline:   tl,
		history:    hist,
		completers: completers,
		cfg:        cfg,
		log:        logger.With(zap.String("component", "botfanout")),
		sem:        make(chan struct{}, cfg.MaxConcurrency),
	}
}

// Triggered reports whether trigger should start a fan-out in g.
func Triggered(g models.ChatGroup, trigger models.GroupMessage) bool {
	if !g.Settings.BotRespondOnMention {
		return false
	}
	if trigger.SenderType != models.SenderTypeUser {
		return false
	}
	return trigger.HasBotMention()
}

// Targets resolves the bot mentions of trigger against g's current members.
// A bot mentioned more than once is answered once. Mentions of bots that are
// no longer members are returned in missing.
func Targets(g models.ChatGroup, trigger models.GroupMessage) (bots []models.Member, missing []string) {
	seen := map[string]bool{}
	for _, mn := range trigger.Mentions {
		if mn.MemberType != models.MemberTypeBot || seen[mn.MemberID] {
			continue
		}
		seen[mn.MemberID] = true
		m, ok := g.FindMember(mn.MemberID)
		if !ok || !m.IsBot() {
			missing = append(missing, mn.MemberID)
			continue
		}
		bots = append(bots, m)
	}
	return bots, missing
}

// Dispatch starts a fan-out in the background and returns immediately. The
// work is detached from ctx's cancellation so it outlives the request that
// triggered it.
func (e *Engine) Dispatch(ctx context.Context, g models.ChatGroup, trigger models.GroupMessage) {
	if !Triggered(g, trigger) {
		return
	}
	detached := context.WithoutCancel(ctx)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("bot fan-out panicked",
					zap.String("group_id", g.GroupID),
					zap.String("message_id", trigger.MessageID),
					zap.Any("panic", r))
			}
		}()
		e.Process(detached, g, trigger)
	}()
}

// Wait blocks until every dispatched fan-out has finished or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs the fan-out synchronously and returns one Outcome per
// resolved bot. Individual failures are recorded in the outcomes and on the
// bot's placeholder; Process itself never fails.
func (e *Engine) Process(ctx context.Context, g models.ChatGroup, trigger models.GroupMessage) []Outcome {
	if !Triggered(g, trigger) {
		return nil
	}

	bots, missing := Targets(g, trigger)
	for _, id := range missing {
		e.log.Warn("mentioned bot not found in group",
			zap.String("group_id", g.GroupID),
			zap.String("bot_member_id", id))
	}
	if len(bots) == 0 {
		return nil
	}

	e.log.Debug("processing bot mentions",
		zap.String("group_id", g.GroupID),
		zap.String("message_id", trigger.MessageID),
		zap.Int("bots", len(bots)))

	outcomes := make([]Outcome, len(bots))
	var wg sync.WaitGroup
	for i, bot := range bots {
		wg.Add(1)
		go func(i int, bot models.Member) {
			defer wg.Done()
			outcomes[i] = e.respond(ctx, g, bot, trigger)
		}(i, bot)
	}
	wg.Wait()

	ok := 0
	for _, o := range outcomes {
		if o.OK() {
			ok++
		}
	}
	e.log.Info("bot mentions processed",
		zap.String("group_id", g.GroupID),
		zap.String("message_id", trigger.MessageID),
		zap.Int("total", len(outcomes)),
		zap.Int("successful", ok))
	return outcomes
}

func (e *Engine) respond(ctx context.Context, g models.ChatGroup, bot models.Member, trigger models.GroupMessage) Outcome {
	out := Outcome{BotMemberID: bot.MemberID}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		out.Err = ctx.Err()
		return out
	}

	start := time.Now()
	placeholder, err := e.timeline.Append(ctx, placeholderFor(g, bot, trigger))
	if err != nil {
		out.Err = fmt.Errorf("create placeholder: %w", err)
		e.log.Error("bot placeholder failed",
			zap.String("group_id", g.GroupID),
			zap.String("bot_member_id", bot.MemberID),
			zap.Error(err))
		return out
	}
	out.MessageID = placeholder.MessageID

	res, err := e.generate(ctx, g, bot, trigger)
	if err != nil {
		out.Err = err
		out.Message = e.settle(ctx, placeholder, messagestore.GenerationResult{
			Text:         ApologyText,
			Failed:       true,
			ErrorMessage: err.Error(),
		})
		e.log.Error("bot response failed",
			zap.String("group_id", g.GroupID),
			zap.String("bot_member_id", bot.MemberID),
			zap.String("message_id", placeholder.MessageID),
			zap.Error(err))
		return out
	}

	out.Message = e.settle(ctx, placeholder, messagestore.GenerationResult{
		Text:           res.Text,
		GenerationTime: time.Since(start),
		TokenCount:     res.TokenCount,
		FinishReason:   res.FinishReason,
	})
	e.log.Debug("bot response generated",
		zap.String("bot_member_id", bot.MemberID),
		zap.String("message_id", placeholder.MessageID),
		zap.Duration("generation_time", time.Since(start)))
	return out
}

// generate builds the context window and calls the bot's provider.
func (e *Engine) generate(ctx context.Context, g models.ChatGroup, bot models.Member, trigger models.GroupMessage) (llm.Result, error) {
	recent, err := e.history.Recent(ctx, g.GroupID, trigger.CreatedAt, chathistory.FetchLimit)
	if err != nil {
		return llm.Result{}, fmt.Errorf("load history: %w", err)
	}
	turns := chathistory.Build(recent, bot.MemberID, chathistory.WindowSize)

	completer, family, err := e.completers.Lookup(bot.BotEndpoint)
	if err != nil {
		return llm.Result{}, err
	}

	model := bot.BotModel
	if model == "" && usesDefaultModel(family) {
		model = e.cfg.DefaultModel
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	res, err := completer.Complete(callCtx, llm.Request{
		Model:       model,
		Messages:    chathistory.WithSystem(e.cfg.SystemPrompt, turns),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: *e.cfg.Temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return llm.Result{}, fmt.Errorf("completion timed out after %s: %w", e.cfg.Timeout, err)
		}
		return llm.Result{}, err
	}
	return res, nil
}

// settle writes the placeholder's terminal state. The write gets its own
// deadline so a cancelled fan-out still leaves no placeholder generating.
func (e *Engine) settle(ctx context.Context, placeholder models.GroupMessage, r messagestore.GenerationResult) models.GroupMessage {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	m, err := e.timeline.Finish(wctx, placeholder.MessageID, r)
	if err != nil {
		e.log.Error("settle bot placeholder failed",
			zap.String("message_id", placeholder.MessageID),
			zap.Bool("failed", r.Failed),
			zap.Error(err))
		return placeholder
	}
	return m
}

// usesDefaultModel reports whether the configured default model applies to
// the family. Other providers pick their own default.
func usesDefaultModel(f llm.Family) bool {
	switch f {
	case llm.FamilyAnthropic, llm.FamilyGoogle, llm.FamilyBedrock:
		return false
	}
	return true
}

func placeholderFor(g models.ChatGroup, bot models.Member, trigger models.GroupMessage) models.GroupMessage {
	name := bot.DisplayName
	if name == "" {
		name = "Bot"
	}
	return models.GroupMessage{
		GroupID:      g.GroupID,
		SenderID:     bot.MemberID,
		SenderType:   models.SenderTypeBot,
		SenderName:   name,
		SenderAvatar: bot.Avatar,
		MessageType:  models.MessageTypeText,
		Text:         PlaceholderText,
		IsGenerating: true,
		BotMeta: &models.BotMeta{
			BotID:            bot.BotID,
			Endpoint:         bot.BotEndpoint,
			Model:            bot.BotModel,
			ReplyToMessageID: trigger.MessageID,
		},
		ReplyTo: &models.ReplyTo{
			MessageID:   trigger.MessageID,
			SenderID:    trigger.SenderID,
			SenderName:  trigger.SenderName,
			PreviewText: preview(trigger.Text),
		},
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= models.ReplyPreviewLen {
		return s
	}
	return string(r[:models.ReplyPreviewLen])
}
