// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.movebot/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: model and embedder selection, agent call timeout
//   - Storage: PostgreSQL connection for the vector index, local data directory
//   - Ingestion: source repositories, chunking parameters, fetch mode
//   - Chat: context expiry, history bounds, Telegram credentials
//   - Social: posting interval, search query, Twitter credentials
//
// Security: tokens and passwords are masked in MarshalJSON and never logged.
// Validation: range checks with sentinel errors, fail-fast at Load time.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidChunking indicates chunk size/overlap are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidHistory indicates chat history bounds are out of range.
	ErrInvalidHistory = errors.New("invalid chat history configuration")

	// ErrInvalidRepoURL indicates a source repository URL is not a github.com URL.
	ErrInvalidRepoURL = errors.New("invalid source repository URL")

	// ErrInvalidPostgres indicates the PostgreSQL connection settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidInterval indicates a loop interval is non-positive.
	ErrInvalidInterval = errors.New("invalid interval")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// Output is truncated to 768 dimensions to match the pgvector schema;
	// see knowledge.VectorDimension.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultChunkSize is the default chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the default overlap between consecutive chunks.
	DefaultChunkOverlap = 100

	// DefaultMaxChatHistory is the maximum retained turns per user.
	DefaultMaxChatHistory = 10

	// DefaultImmediateContext is the number of recent turns handed to the agent.
	DefaultImmediateContext = 5

	// DefaultContextExpiry is how long an idle chat context is kept.
	DefaultContextExpiry = 24 * time.Hour

	// DefaultAgentTimeout bounds a single agent invocation.
	DefaultAgentTimeout = 5 * time.Minute

	// DefaultPostInterval is the cadence of the autonomous posting loop.
	DefaultPostInterval = 24 * time.Hour

	// MaxReplyLength is the chat platform's message length limit.
	MaxReplyLength = 4096
)

// Fetch mode identifiers used in Config.FetchMode.
const (
	FetchModeAPI   = "api"
	FetchModeClone = "clone"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (tokens, passwords), update MarshalJSON.
type Config struct {
	// AI configuration
	ModelName     string        `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string        `mapstructure:"embedder_model" json:"embedder_model"`
	AgentTimeout  time.Duration `mapstructure:"agent_timeout" json:"agent_timeout"`

	// Ingestion configuration
	SourceRepos  []string `mapstructure:"source_repos" json:"source_repos"`
	FetchMode    string   `mapstructure:"fetch_mode" json:"fetch_mode"` // "api" (default) or "clone"
	ChunkSize    int      `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	GitHubToken  string   `mapstructure:"github_token" json:"github_token"` // SENSITIVE: masked in MarshalJSON

	// Chat configuration
	TelegramToken    string        `mapstructure:"telegram_token" json:"telegram_token"` // SENSITIVE: masked in MarshalJSON
	TelegramGroupID  string        `mapstructure:"telegram_group_id" json:"telegram_group_id"`
	MaxChatHistory   int           `mapstructure:"max_chat_history" json:"max_chat_history"`
	ImmediateContext int           `mapstructure:"immediate_context" json:"immediate_context"`
	ContextExpiry    time.Duration `mapstructure:"context_expiry" json:"context_expiry"`

	// Social configuration
	TwitterBearerToken string        `mapstructure:"twitter_bearer_token" json:"twitter_bearer_token"` // SENSITIVE: masked in MarshalJSON
	TwitterUserID      string        `mapstructure:"twitter_user_id" json:"twitter_user_id"`
	TrendQuery         string        `mapstructure:"trend_query" json:"trend_query"`
	PostInterval       time.Duration `mapstructure:"post_interval" json:"post_interval"`
	InteractionPoll    time.Duration `mapstructure:"interaction_poll" json:"interaction_poll"`

	// Storage configuration
	DataDir          string `mapstructure:"data_dir" json:"data_dir"`
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Retrieval configuration
	MaxDocsPerQuery int `mapstructure:"max_docs_per_query" json:"max_docs_per_query"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".movebot")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v, filepath.Join(home, ".movebot", "data"))
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("agent_timeout", DefaultAgentTimeout)

	v.SetDefault("source_repos", []string{
		"https://github.com/movementlabsxyz/movement",
		"https://github.com/movementlabsxyz/movement-docs",
	})
	v.SetDefault("fetch_mode", FetchModeAPI)
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)

	v.SetDefault("max_chat_history", DefaultMaxChatHistory)
	v.SetDefault("immediate_context", DefaultImmediateContext)
	v.SetDefault("context_expiry", DefaultContextExpiry)

	v.SetDefault("trend_query", "MovementLabs OR MoveLang")
	v.SetDefault("post_interval", DefaultPostInterval)
	v.SetDefault("interaction_poll", time.Hour)

	v.SetDefault("data_dir", dataDir)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "movebot")
	v.SetDefault("postgres_password", "movebot_dev_password")
	v.SetDefault("postgres_db_name", "movebot")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("max_docs_per_query", 3)
}

// bindEnvVariables binds secrets to explicit environment variables.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence is
// the provider's concern, not ours.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("telegram_token", "TELEGRAM_BOT_TOKEN")
	mustBind("telegram_group_id", "TELEGRAM_GROUP_ID")
	mustBind("twitter_bearer_token", "TWITTER_BEARER_TOKEN")
	mustBind("twitter_user_id", "TWITTER_USER_ID")
	mustBind("github_token", "GITHUB_TOKEN")
	mustBind("postgres_password", "MOVEBOT_POSTGRES_PASSWORD")
	mustBind("model_name", "MOVEBOT_MODEL_NAME")
}

// Validate checks configuration invariants. Called by Load; exported for tests
// and for callers constructing Config directly.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_size=%d chunk_overlap=%d (need 0 <= overlap < size)",
			ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}

	if c.MaxChatHistory <= 0 || c.ImmediateContext <= 0 || c.ImmediateContext > c.MaxChatHistory {
		return fmt.Errorf("%w: max_chat_history=%d immediate_context=%d",
			ErrInvalidHistory, c.MaxChatHistory, c.ImmediateContext)
	}
	if c.ContextExpiry <= 0 {
		return fmt.Errorf("%w: context_expiry=%s", ErrInvalidHistory, c.ContextExpiry)
	}

	if c.FetchMode != FetchModeAPI && c.FetchMode != FetchModeClone {
		return fmt.Errorf("invalid fetch_mode: %q (expected %q or %q)",
			c.FetchMode, FetchModeAPI, FetchModeClone)
	}

	for _, repo := range c.SourceRepos {
		u, err := url.Parse(repo)
		if err != nil || u.Host != "github.com" || strings.Count(strings.Trim(u.Path, "/"), "/") != 1 {
			return fmt.Errorf("%w: %q", ErrInvalidRepoURL, repo)
		}
	}

	if c.PostgresHost == "" || c.PostgresPort <= 0 || c.PostgresPort > 65535 || c.PostgresDBName == "" {
		return fmt.Errorf("%w: host=%q port=%d db=%q",
			ErrInvalidPostgres, c.PostgresHost, c.PostgresPort, c.PostgresDBName)
	}

	if c.PostInterval <= 0 || c.InteractionPoll <= 0 || c.AgentTimeout <= 0 {
		return fmt.Errorf("%w: post=%s poll=%s agent=%s",
			ErrInvalidInterval, c.PostInterval, c.InteractionPoll, c.AgentTimeout)
	}

	return nil
}

// PostgresURL returns the connection string in URL form (postgres://...).
// Used by migrations and pgxpool alike.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost, c.PostgresPort, c.PostgresDBName, c.PostgresSSLMode)
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Short secrets are fully masked to prevent substring matching; longer ones
// keep the first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.TelegramToken = maskSecret(a.TelegramToken)
	a.TwitterBearerToken = maskSecret(a.TwitterBearerToken)
	a.GitHubToken = maskSecret(a.GitHubToken)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
