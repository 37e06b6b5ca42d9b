// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Redis for message events (blank disables publishing)
	RedisURL string

	// Bearer token verification (HS256 shared secret from the auth layer)
	JWTSecret string

	// Completion providers
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	AzureOpenAIAPIKey  string
	AzureOpenAIBaseURL string
	AzureAPIVersion    string
	AnthropicAPIKey    string
	AnthropicBaseURL   string

	// Bot fan-out tuning
	BotDefaultModel      string
	BotMaxTokens         int
	BotTemperature       float64
	BotCompletionTimeout time.Duration
	BotMaxConcurrency    int
	BotStuckAfter        time.Duration
	BotSweepInterval     time.Duration

	// Background jobs
	RetentionInterval time.Duration

	// Rate limits
	SendRatePerMinute int // messages per user per minute
	SendBurst         int
	APIRatePerMinute  int // requests per client IP per minute, 0 disables

	// Audit logging destinations: all, db, log or off
	AuditLogGroup      string
	AuditLogMembership string
	AuditLogModeration string
}
