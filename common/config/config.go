package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/one-chat/one-chat/common/env"
)

var (
	// SessionSecretEnvValue keeps the raw SESSION_SECRET input so other packages can warn about placeholder values.
	SessionSecretEnvValue = strings.TrimSpace(env.String("SESSION_SECRET", ""))
	// SessionSecret stores the effective session secret. Absent or odd-length secrets are replaced or hashed in init().
	SessionSecret = SessionSecretEnvValue
	// CookieMaxAgeHours controls how long the identity cookie stays valid.
	CookieMaxAgeHours = env.Int("COOKIE_MAXAGE_HOURS", 24*30)
	// EnableCookieSecure forces the browser to send session cookies only over HTTPS when set to true.
	EnableCookieSecure = env.Bool("ENABLE_COOKIE_SECURE", false)

	// ServerPort overrides the --port flag when running inside container or PaaS environments.
	ServerPort = strings.TrimSpace(env.String("PORT", ""))
	// GinMode allows forcing Gin into release mode (or other modes) without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))
	// ShutdownTimeout bounds how long shutdown waits for in-flight streams and persistence tasks.
	ShutdownTimeout = env.Duration("SHUTDOWN_TIMEOUT", 30*time.Second)

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)
	// DebugSQLEnabled toggles per-query SQL logging when DEBUG_SQL=true.
	DebugSQLEnabled = env.Bool("DEBUG_SQL", false)
	// OnlyOneLogFile writes every day into the same one-chat.log instead of a dated file.
	OnlyOneLogFile = env.Bool("ONLY_ONE_LOG_FILE", false)
)

// Upstream relay settings.
var (
	// APIBaseURL is the OpenAI-compatible endpoint root, e.g. https://api.example.com/v1.
	APIBaseURL = strings.TrimRight(strings.TrimSpace(env.String("API_BASE_URL", "https://api.openai.com/v1")), "/")
	// APIKey is sent as a bearer token on every upstream call.
	APIKey = strings.TrimSpace(env.String("API_KEY", ""))
	// RelayProxy routes upstream traffic through an HTTP proxy when set.
	RelayProxy = strings.TrimSpace(env.String("RELAY_PROXY", ""))
	// RelayTextTimeout bounds text-only upstream requests.
	RelayTextTimeout = env.Duration("RELAY_TEXT_TIMEOUT", 120*time.Second)
	// RelayImageTimeout bounds requests that carry an image and image generation calls.
	RelayImageTimeout = env.Duration("RELAY_IMAGE_TIMEOUT", 300*time.Second)
	// MaxTokens is the completion budget sent upstream.
	MaxTokens = env.Int("MAX_TOKENS", 10000)
	// Temperature is the sampling temperature sent upstream.
	Temperature = env.Float64("TEMPERATURE", 0.7)
	// WebSearchEnabled asks the upstream to ground answers with web search when the request allows it.
	WebSearchEnabled = env.Bool("WEB_SEARCH_ENABLED", true)
	// SystemPrompt is attached to every chat payload.
	SystemPrompt = env.String("SYSTEM_PROMPT", DefaultSystemPrompt)
)

// DefaultSystemPrompt keeps responses renderable by the markdown front-end.
const DefaultSystemPrompt = "You are a helpful AI assistant. Use proper markdown formatting in your responses " +
	"including headers (##, ###), bold (**text**), italic (*text*), code blocks (```), inline code (`code`), " +
	"lists (- or 1.), and tables when appropriate. You can think through problems step by step and provide " +
	"detailed, accurate responses. You can also analyze images and answer questions about them."

// Model catalog.
var (
	// DefaultPremiumModel is the chat model assigned to premium users without a stored preference.
	DefaultPremiumModel = env.String("DEFAULT_PREMIUM_MODEL", "claude-sonnet-4-20250514-thinking")
	// DefaultFreeModel is the chat model assigned to free users without a stored preference.
	DefaultFreeModel = env.String("DEFAULT_FREE_MODEL", "gpt-4o-mini-search-preview-2025-03-11")
	// FreeModels are the chat models available to every user.
	FreeModels = env.List("FREE_MODELS", []string{
		"gpt-4o-mini-search-preview-2025-03-11",
		"gpt-5-nano:free",
		"deepseek-v3.1:free",
		"gpt-oss-120b:free",
		"deepseek-r1-0528:free",
		"qwen3-coder-480b-a35b-instruct:free",
		"kimi-k2-instruct-0905:free",
	})
	// PremiumModels are the chat models unlocked by a premium code, listed before the free ones.
	PremiumModels = env.List("PREMIUM_MODELS", []string{
		"claude-sonnet-4-20250514-thinking",
		"claude-opus-4-20250514-thinking",
		"gpt-5",
		"gemini-2.5-pro",
	})
	// ImageModels are the image generation models; all of them require premium access.
	ImageModels = env.List("IMAGE_MODELS", []string{
		"imagen-4.0-ultra-generate-exp-05-20",
		"flux-1-kontext-max",
		"gpt-image-1",
	})
	// DefaultImageModel is used by /generate_image when the user has no preference.
	DefaultImageModel = env.String("DEFAULT_IMAGE_MODEL", "imagen-4.0-ultra-generate-exp-05-20")
	// DefaultImageEditModel is used by /edit_image.
	DefaultImageEditModel = env.String("DEFAULT_IMAGE_EDIT_MODEL", "flux-1-kontext-max")
)

// Context window budgets.
var (
	// ContextBudgetPremium is the history token budget for premium users.
	ContextBudgetPremium = env.Int("CONTEXT_BUDGET_PREMIUM", 100000)
	// ContextBudgetFree is the history token budget when a free model is selected.
	ContextBudgetFree = env.Int("CONTEXT_BUDGET_FREE", 30000)
	// ContextReservedTokens is kept out of every budget for the response.
	ContextReservedTokens = env.Int("CONTEXT_RESERVED_TOKENS", 2000)
	// TokenEstimator selects "tiktoken" or "heuristic".
	TokenEstimator = strings.ToLower(env.String("TOKEN_ESTIMATOR", "tiktoken"))
	// TiktokenCacheDir lets offline deployments ship BPE files next to the binary.
	TiktokenCacheDir = env.String("TIKTOKEN_CACHE_DIR", "")
)

// Conversations, uploads and admission.
var (
	// FreeTierMaxConversations caps stored conversations for free users.
	FreeTierMaxConversations = env.Int("FREE_TIER_MAX_CONVERSATIONS", 2)
	// PremiumTierMaxConversations caps stored conversations for premium users.
	PremiumTierMaxConversations = env.Int("PREMIUM_TIER_MAX_CONVERSATIONS", 10)
	// ConversationCacheTTL controls how long conversation summaries stay in the in-process cache.
	ConversationCacheTTL = env.Duration("CONVERSATION_CACHE_TTL", 5*time.Minute)
	// MaxMessageLength caps sanitized user input (characters).
	MaxMessageLength = env.Int("MAX_MESSAGE_LENGTH", 50000)
	// MaxUploadSizeMB caps image and document uploads.
	MaxUploadSizeMB = env.Int("MAX_UPLOAD_SIZE_MB", 10)
	// MaxDocumentChars caps extracted document text.
	MaxDocumentChars = env.Int("MAX_DOCUMENT_CHARS", 50000)
	// MaxPDFPages caps how many PDF pages are extracted.
	MaxPDFPages = env.Int("MAX_PDF_PAGES", 50)
	// MaxImageDimension is the longest side of normalized uploaded images.
	MaxImageDimension = env.Int("MAX_IMAGE_DIMENSION", 1024)
	// ImageJPEGQuality is the quality used when re-encoding uploaded images.
	ImageJPEGQuality = env.Int("IMAGE_JPEG_QUALITY", 85)

	// RateLimitRequests is the number of admitted requests per user key within RateLimitWindow.
	RateLimitRequests = env.Int("RATE_LIMIT_REQUESTS", 30)
	// RateLimitWindow is the sliding window used by the admission ledger.
	RateLimitWindow = env.Duration("RATE_LIMIT_WINDOW", 60*time.Second)
	// RateLimitKeyPrefix namespaces admission keys in Redis.
	RateLimitKeyPrefix = env.String("RATE_LIMIT_KEY_PREFIX", "onechat:ratelimit:")

	// CodesFile holds one premium access code per line.
	CodesFile = env.String("CODES_FILE", "codes.txt")
)

// Storage, web and metrics.
var (
	// SQLDSN provides the primary database DSN; empty indicates that SQLite should be used.
	SQLDSN = strings.TrimSpace(env.String("SQL_DSN", ""))
	// SQLitePath specifies the SQLite database file path when SQL_DSN is absent.
	SQLitePath = env.String("SQLITE_PATH", "one-chat.db")
	// SQLiteBusyTimeout configures SQLite busy timeout in milliseconds to mitigate locking errors.
	SQLiteBusyTimeout = env.Int("SQLITE_BUSY_TIMEOUT", 3000)
	// SQLMaxIdleConns controls the database pool's idle connection count.
	SQLMaxIdleConns = env.Int("SQL_MAX_IDLE_CONNS", 20)
	// SQLMaxOpenConns controls the database pool's maximum open connections.
	SQLMaxOpenConns = env.Int("SQL_MAX_OPEN_CONNS", 200)
	// SQLMaxLifetimeSeconds sets how long database connections live before being recycled (seconds).
	SQLMaxLifetimeSeconds = env.Int("SQL_MAX_LIFETIME", 300)

	// RedisConnString defines the Redis connection string; leaving it empty keeps the rate limit ledger in memory.
	RedisConnString = strings.TrimSpace(env.String("REDIS_CONN_STRING", ""))
	// RedisMasterName enables sentinel/cluster mode when set.
	RedisMasterName = strings.TrimSpace(env.String("REDIS_MASTER_NAME", ""))
	// RedisPassword authenticates cluster connections.
	RedisPassword = env.String("REDIS_PASSWORD", "")

	// EnablePrometheusMetrics exposes /metrics and records relay collectors.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)
	// CORSAllowedOrigins lists origins allowed to call the API from a browser; empty allows all.
	CORSAllowedOrigins = env.List("CORS_ALLOWED_ORIGINS", nil)
	// StaticDir serves a prebuilt chat front-end when set.
	StaticDir = strings.TrimSpace(env.String("STATIC_DIR", ""))
)

func init() {
	if SessionSecretEnvValue == "" {
		fmt.Println("SESSION_SECRET not set, using random secret")
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("failed to generate random secret: %v", err))
		}

		SessionSecret = base64.StdEncoding.EncodeToString(key)
	} else if !slices.Contains([]int{16, 24, 32}, len(SessionSecretEnvValue)) {
		hashed := sha256.Sum256([]byte(SessionSecretEnvValue))
		SessionSecret = base64.StdEncoding.EncodeToString(hashed[:32])
	}

	if MaxUploadSizeMB <= 0 {
		panic("MAX_UPLOAD_SIZE_MB must be positive")
	}
	if ContextReservedTokens < 0 {
		panic("CONTEXT_RESERVED_TOKENS must not be negative")
	}
}

// MaxUploadBytes returns MaxUploadSizeMB in bytes.
func MaxUploadBytes() int64 {
	return int64(MaxUploadSizeMB) * 1024 * 1024
}
