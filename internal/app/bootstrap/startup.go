// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	groupstore "github.com/dalemusser/groupchat/internal/app/store/groups"
	messagestore "github.com/dalemusser/groupchat/internal/app/store/messages"

	"github.com/dalemusser/groupchat/internal/app/botfanout"
	"github.com/dalemusser/groupchat/internal/app/chatsvc"
	"github.com/dalemusser/groupchat/internal/app/events"
	"github.com/dalemusser/groupchat/internal/app/llm"
	"github.com/dalemusser/groupchat/internal/app/store/audit"
	"github.com/dalemusser/groupchat/internal/app/system/auditlog"
	"github.com/dalemusser/groupchat/internal/app/system/auth"
	"github.com/dalemusser/groupchat/internal/app/system/ratelimit"
	"github.com/dalemusser/groupchat/internal/app/system/tasks"
	"github.com/dalemusser/groupchat/internal/app/system/timeouts"
	"github.com/dalemusser/groupchat/internal/app/system/workers"
	"github.com/dalemusser/groupchat/internal/app/timeline"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// limiterIdleTTL is how long an idle rate-limit bucket is kept.
const limiterIdleTTL = 10 * time.Minute

// Runtime holds the long-lived components shared by the handler and the
// background jobs.
type Runtime struct {
	Verifier    *auth.Verifier
	Service     *chatsvc.Service
	Engine      *botfanout.Engine
	Jobs        *workers.Runner
	SendLimiter *ratelimit.Limiter
	APILimiter  *ratelimit.Limiter // nil when api_rate_per_minute is 0
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the chat service and bot engine and starts the background jobs.
//
// Hooks receive DBDeps by value, so the components are written through the
// Runtime pointer that ConnectDB allocated.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv("GROUPCHAT"); n > 0 {
		logger.Info("timeouts configured from environment", zap.Int("overrides", n))
	}
	if deps.Runtime == nil {
		return errors.New("startup: runtime not allocated")
	}

	rt, err := buildRuntime(appCfg, deps, logger)
	if err != nil {
		return err
	}
	rt.Jobs.Start()
	*deps.Runtime = *rt
	return nil
}

func buildRuntime(appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*Runtime, error) {
	verifier, err := auth.NewVerifier(appCfg.JWTSecret, logger)
	if err != nil {
		logger.Error("token verifier init failed", zap.Error(err))
		return nil, err
	}

	var pub events.Publisher = events.Nop{}
	if deps.Redis != nil {
		pub = events.NewRedisPublisher(deps.Redis, logger)
	}

	db := deps.MongoDatabase
	tl := timeline.New(deps.MongoClient, db, pub, logger)
	messages := messagestore.New(db)

	temperature := appCfg.BotTemperature
	engine := botfanout.New(tl, messages, buildCompleters(appCfg, logger), botfanout.Config{
		DefaultModel:   appCfg.BotDefaultModel,
		MaxTokens:      appCfg.BotMaxTokens,
		Temperature:    &temperature,
		Timeout:        appCfg.BotCompletionTimeout,
		MaxConcurrency: appCfg.BotMaxConcurrency,
	}, logger)

	auditLogger := auditlog.New(audit.New(db), logger, auditlog.Config{
		Group:      appCfg.AuditLogGroup,
		Membership: appCfg.AuditLogMembership,
		Moderation: appCfg.AuditLogModeration,
	})

	sendLimiter := ratelimit.New(float64(appCfg.SendRatePerMinute), appCfg.SendBurst, limiterIdleTTL)
	var apiLimiter *ratelimit.Limiter
	if appCfg.APIRatePerMinute > 0 {
		apiLimiter = ratelimit.New(float64(appCfg.APIRatePerMinute), appCfg.APIRatePerMinute/10+1, limiterIdleTTL)
	}

	svc := chatsvc.New(chatsvc.Deps{
		DB:       db,
		Timeline: tl,
		Fanout:   engine,
		Limiter:  sendLimiter,
		Audit:    auditLogger,
		Logger:   logger,
	})

	jobs := workers.NewRunner(logger,
		tasks.MessageRetentionJob(groupstore.New(db), messages, auditLogger, logger, appCfg.RetentionInterval),
		tasks.StuckGenerationJob(messages, tl, logger, appCfg.BotSweepInterval, appCfg.BotStuckAfter),
	)

	return &Runtime{
		Verifier:    verifier,
		Service:     svc,
		Engine:      engine,
		Jobs:        jobs,
		SendLimiter: sendLimiter,
		APILimiter:  apiLimiter,
	}, nil
}

// buildCompleters registers a provider per configured family. The OpenAI
// client doubles as the fallback for endpoints that name no known family.
func buildCompleters(appCfg AppConfig, logger *zap.Logger) *llm.Registry {
	// Per-call deadlines come from the engine's context; this bounds a
	// connection that never answers at all.
	httpClient := &http.Client{Timeout: appCfg.BotCompletionTimeout + 5*time.Second}

	reg := llm.NewRegistry()
	openai := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  appCfg.OpenAIAPIKey,
		BaseURL: appCfg.OpenAIBaseURL,
	}, httpClient, logger)
	reg.Register(llm.FamilyOpenAI, openai)
	reg.SetFallback(openai)

	if appCfg.AzureOpenAIAPIKey != "" {
		reg.Register(llm.FamilyAzureOpenAI, llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:     appCfg.AzureOpenAIAPIKey,
			BaseURL:    appCfg.AzureOpenAIBaseURL,
			Azure:      true,
			APIVersion: appCfg.AzureAPIVersion,
		}, httpClient, logger))
	}

	reg.Register(llm.FamilyAnthropic, llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:  appCfg.AnthropicAPIKey,
		BaseURL: appCfg.AnthropicBaseURL,
	}, httpClient, logger))

	if appCfg.OpenAIAPIKey == "" {
		logger.Warn("openai_api_key not set; OpenAI-family bots will reply with an apology")
	}
	return reg
}
