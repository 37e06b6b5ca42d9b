package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/groupchat/internal/app/llm"
	"github.com/dalemusser/groupchat/internal/app/system/auth"
	"github.com/dalemusser/groupchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoDatabase:        "groupchat_test",
		JWTSecret:            "0123456789abcdef0123456789abcdef",
		BotMaxTokens:         1024,
		BotTemperature:       0.7,
		BotCompletionTimeout: time.Minute,
		BotMaxConcurrency:    4,
		BotStuckAfter:        10 * time.Minute,
		BotSweepInterval:     time.Minute,
		RetentionInterval:    time.Hour,
		SendRatePerMinute:    30,
		SendBurst:            10,
		APIRatePerMinute:     600,
		AuditLogGroup:        "all",
	}
}

func TestValidateApp(t *testing.T) {
	require.NoError(t, validateApp(validConfig()))

	tests := map[string]func(*AppConfig){
		"no secret":          func(c *AppConfig) { c.JWTSecret = "" },
		"zero tokens":        func(c *AppConfig) { c.BotMaxTokens = 0 },
		"zero concurrency":   func(c *AppConfig) { c.BotMaxConcurrency = 0 },
		"hot temperature":    func(c *AppConfig) { c.BotTemperature = 3 },
		"stuck too short":    func(c *AppConfig) { c.BotStuckAfter = 30 * time.Second },
		"no send rate":       func(c *AppConfig) { c.SendRatePerMinute = 0 },
		"negative api rate":  func(c *AppConfig) { c.APIRatePerMinute = -1 },
		"azure without url":  func(c *AppConfig) { c.AzureOpenAIAPIKey = "k" },
		"unknown audit mode": func(c *AppConfig) { c.AuditLogModeration = "sometimes" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, validateApp(cfg))
		})
	}
}

func TestParseTemperature(t *testing.T) {
	v, err := parseTemperature("")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, v, 1e-9)

	v, err = parseTemperature(" 0.2 ")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, v, 1e-9)

	_, err = parseTemperature("warm")
	assert.Error(t, err)
}

func TestBuildCompleters(t *testing.T) {
	reg := buildCompleters(validConfig(), testLogger())

	_, fam, err := reg.Lookup("anthropic")
	require.NoError(t, err)
	assert.Equal(t, llm.FamilyAnthropic, fam)

	// Azure without a key rides on the OpenAI client.
	c, _, err := reg.Lookup("azure-openai")
	require.NoError(t, err)
	openai, _, _ := reg.Lookup("openai")
	assert.Same(t, openai, c)

	_, _, err = reg.Lookup("bedrock")
	assert.ErrorIs(t, err, llm.ErrUnsupportedEndpoint)
}

func TestBuildCompleters_Azure(t *testing.T) {
	cfg := validConfig()
	cfg.AzureOpenAIAPIKey = "az"
	cfg.AzureOpenAIBaseURL = "https://example.openai.azure.com"
	reg := buildCompleters(cfg, testLogger())

	azure, _, err := reg.Lookup("azure-openai")
	require.NoError(t, err)
	openai, _, _ := reg.Lookup("openai")
	assert.NotSame(t, openai, azure)
}

func TestRouter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}

	rt, err := buildRuntime(validConfig(), deps, testLogger())
	require.NoError(t, err)
	defer rt.SendLimiter.Stop()
	defer rt.APILimiter.Stop()
	router := newRouter(deps, rt, testLogger())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/chat-groups/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := rt.Verifier.Issue(auth.User{ID: "alice", Name: "Alice"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/chat-groups/", strings.NewReader(`{"name":"Team"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestBuildHandler_RequiresStartup(t *testing.T) {
	_, err := BuildHandler(nil, validConfig(), DBDeps{Runtime: &Runtime{}}, testLogger())
	assert.Error(t, err)
}

func TestRouter_UserInfo(t *testing.T) {
	db := testutil.SetupTestDB(t)
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	rt, err := buildRuntime(validConfig(), deps, testLogger())
	require.NoError(t, err)
	defer rt.SendLimiter.Stop()
	defer rt.APILimiter.Stop()
	router := newRouter(deps, rt, testLogger())

	tok, err := rt.Verifier.Issue(auth.User{ID: "alice", Name: "Alice"}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/api/user", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"alice"`)
}
