// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/groupchat/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for the group chat service.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: GROUPCHAT_MONGO_URI, GROUPCHAT_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "groupchat", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "redis_url", Default: "", Desc: "Redis URL for message events (blank disables publishing)"},
	{Name: "jwt_secret", Default: "", Desc: "HS256 secret used to verify bearer tokens"},

	// Completion providers
	{Name: "openai_api_key", Default: "", Desc: "OpenAI API key (also used for unknown endpoints)"},
	{Name: "openai_base_url", Default: "", Desc: "OpenAI-compatible base URL (blank uses api.openai.com)"},
	{Name: "azure_openai_api_key", Default: "", Desc: "Azure OpenAI API key"},
	{Name: "azure_openai_base_url", Default: "", Desc: "Azure OpenAI resource URL"},
	{Name: "azure_openai_api_version", Default: "", Desc: "Azure OpenAI API version"},
	{Name: "anthropic_api_key", Default: "", Desc: "Anthropic API key"},
	{Name: "anthropic_base_url", Default: "", Desc: "Anthropic base URL (blank uses api.anthropic.com)"},

	// Bot fan-out
	{Name: "bot_default_model", Default: "gpt-4o-mini", Desc: "Model for OpenAI-family bots without one"},
	{Name: "bot_max_tokens", Default: 1024, Desc: "Max tokens per bot reply"},
	{Name: "bot_temperature", Default: "0.7", Desc: "Sampling temperature for bot replies"},
	{Name: "bot_completion_timeout", Default: "60s", Desc: "Deadline for one bot completion"},
	{Name: "bot_max_concurrency", Default: 8, Desc: "Max bot completions in flight"},
	{Name: "bot_stuck_after", Default: "10m", Desc: "Age after which a generating placeholder is failed"},
	{Name: "bot_sweep_interval", Default: "1m", Desc: "How often stuck placeholders are swept (0 disables)"},

	{Name: "retention_interval", Default: "1h", Desc: "How often message retention runs (0 disables)"},

	// Rate limits
	{Name: "send_rate_per_minute", Default: 30, Desc: "Messages a user may send per minute"},
	{Name: "send_burst", Default: 10, Desc: "Message burst allowance"},
	{Name: "api_rate_per_minute", Default: 600, Desc: "API requests per client IP per minute (0 disables)"},

	// Audit logging settings
	{Name: "audit_log_group", Default: "all", Desc: "Group lifecycle events: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_membership", Default: "all", Desc: "Membership events: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_moderation", Default: "all", Desc: "Moderator deletions and retention: 'all', 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, GROUPCHAT_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "GROUPCHAT", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	temp, err := parseTemperature(appValues.String("bot_temperature"))
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		RedisURL:  appValues.String("redis_url"),
		JWTSecret: appValues.String("jwt_secret"),

		// Providers
		OpenAIAPIKey:       appValues.String("openai_api_key"),
		OpenAIBaseURL:      appValues.String("openai_base_url"),
		AzureOpenAIAPIKey:  appValues.String("azure_openai_api_key"),
		AzureOpenAIBaseURL: appValues.String("azure_openai_base_url"),
		AzureAPIVersion:    appValues.String("azure_openai_api_version"),
		AnthropicAPIKey:    appValues.String("anthropic_api_key"),
		AnthropicBaseURL:   appValues.String("anthropic_base_url"),

		// Bots
		BotDefaultModel:      appValues.String("bot_default_model"),
		BotMaxTokens:         appValues.Int("bot_max_tokens"),
		BotTemperature:       temp,
		BotCompletionTimeout: appValues.Duration("bot_completion_timeout", 60*time.Second),
		BotMaxConcurrency:    appValues.Int("bot_max_concurrency"),
		BotStuckAfter:        appValues.Duration("bot_stuck_after", 10*time.Minute),
		BotSweepInterval:     appValues.Duration("bot_sweep_interval", time.Minute),

		RetentionInterval: appValues.Duration("retention_interval", time.Hour),

		// Rate limits
		SendRatePerMinute: appValues.Int("send_rate_per_minute"),
		SendBurst:         appValues.Int("send_burst"),
		APIRatePerMinute:  appValues.Int("api_rate_per_minute"),

		// Audit logging
		AuditLogGroup:      appValues.String("audit_log_group"),
		AuditLogMembership: appValues.String("audit_log_membership"),
		AuditLogModeration: appValues.String("audit_log_moderation"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(appCfg)
}

func validateApp(appCfg AppConfig) error {
	var errs []error
	if appCfg.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if appCfg.BotMaxTokens <= 0 {
		errs = append(errs, errors.New("bot_max_tokens must be positive"))
	}
	if appCfg.BotMaxConcurrency <= 0 {
		errs = append(errs, errors.New("bot_max_concurrency must be positive"))
	}
	if appCfg.BotTemperature < 0 || appCfg.BotTemperature > 2 {
		errs = append(errs, errors.New("bot_temperature must be between 0 and 2"))
	}
	if appCfg.BotCompletionTimeout <= 0 {
		errs = append(errs, errors.New("bot_completion_timeout must be positive"))
	}
	if appCfg.BotStuckAfter <= appCfg.BotCompletionTimeout {
		errs = append(errs, errors.New("bot_stuck_after must exceed bot_completion_timeout"))
	}
	if appCfg.SendRatePerMinute <= 0 || appCfg.SendBurst <= 0 {
		errs = append(errs, errors.New("send_rate_per_minute and send_burst must be positive"))
	}
	if appCfg.APIRatePerMinute < 0 {
		errs = append(errs, errors.New("api_rate_per_minute cannot be negative"))
	}
	if appCfg.AzureOpenAIAPIKey != "" && appCfg.AzureOpenAIBaseURL == "" {
		errs = append(errs, errors.New("azure_openai_base_url is required with azure_openai_api_key"))
	}
	for name, mode := range map[string]string{
		"audit_log_group":      appCfg.AuditLogGroup,
		"audit_log_membership": appCfg.AuditLogMembership,
		"audit_log_moderation": appCfg.AuditLogModeration,
	} {
		if mode != "" && !auditlog.ValidMode(mode) {
			errs = append(errs, fmt.Errorf("%s must be one of all, db, log, off (got %q)", name, mode))
		}
	}
	return errors.Join(errs...)
}

// parseTemperature reads bot_temperature; WAFFLE app keys carry no float type.
func parseTemperature(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0.7, nil
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("bot_temperature: %w", err)
	}
	return t, nil
}
