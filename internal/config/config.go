package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	QA        QAConfig        `yaml:"qa" mapstructure:"qa"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SourceConfig locates the institution spreadsheet.
type SourceConfig struct {
	SheetID     string `yaml:"sheet_id" mapstructure:"sheet_id"`
	GID         string `yaml:"gid" mapstructure:"gid"`
	URL         string `yaml:"url" mapstructure:"url"`
	Path        string `yaml:"path" mapstructure:"path"`
	SheetName   string `yaml:"sheet_name" mapstructure:"sheet_name"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// IndexConfig locates the document embedding index used by Q&A.
type IndexConfig struct {
	URL  string `yaml:"url" mapstructure:"url"`
	Path string `yaml:"path" mapstructure:"path"`
}

// ScoringConfig configures the scorer.
type ScoringConfig struct {
	Weights   map[string]float64 `yaml:"weights" mapstructure:"weights"`
	RulesFile string             `yaml:"rules_file" mapstructure:"rules_file"`
	Workers   int                `yaml:"workers" mapstructure:"workers"`
}

// AuthConfig holds the dashboard allow-list and session settings.
type AuthConfig struct {
	Users         []UserConfig `yaml:"users" mapstructure:"users"`
	PasswordHash  string       `yaml:"password_hash" mapstructure:"password_hash"`
	JWTSecret     string       `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLHours int          `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
}

// UserConfig is one allow-listed dashboard user.
type UserConfig struct {
	Email string `yaml:"email" mapstructure:"email"`
	Name  string `yaml:"name" mapstructure:"name"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina embeddings settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// QAConfig configures document retrieval.
type QAConfig struct {
	TopK         int `yaml:"top_k" mapstructure:"top_k"`
	ExcerptChars int `yaml:"excerpt_chars" mapstructure:"excerpt_chars"`
	// BreakerFailures consecutive provider failures open the circuit for
	// BreakerResetSecs.
	BreakerFailures  int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HOMOLOGATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.sheet_id", "")
	v.SetDefault("source.gid", "0")
	v.SetDefault("source.url", "")
	v.SetDefault("source.path", "")
	v.SetDefault("source.sheet_name", "")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 2)
	v.SetDefault("index.url", "")
	v.SetDefault("index.path", "rag_index.json")
	v.SetDefault("scoring.rules_file", "")
	v.SetDefault("scoring.workers", 4)
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 12)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://api.jina.ai/v1")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("qa.top_k", 5)
	v.SetDefault("qa.excerpt_chars", 800)
	v.SetDefault("qa.breaker_failures", 5)
	v.SetDefault("qa.breaker_reset_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "homologation.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by a command are set. Modes:
// "score", "serve", "ask", "report", "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	requireSource := func() {
		if c.Source.URL == "" && c.Source.SheetID == "" && c.Source.Path == "" {
			errs = append(errs, "one of source.url, source.sheet_id or source.path is required")
		}
		if c.Source.TimeoutSecs <= 0 {
			errs = append(errs, "source.timeout_secs must be > 0")
		}
		if c.Source.MaxRetries < 0 {
			errs = append(errs, "source.max_retries must be >= 0")
		}
	}
	requireScoring := func() {
		if c.Scoring.Workers < 1 || c.Scoring.Workers > 64 {
			errs = append(errs, "scoring.workers must be between 1 and 64")
		}
		for k, w := range c.Scoring.Weights {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("scoring.weights.%s must be >= 0", k))
			}
		}
	}
	requireLLM := func() {
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.MaxTokens <= 0 {
			errs = append(errs, "anthropic.max_tokens must be > 0")
		}
	}
	requireQA := func() {
		requireLLM()
		if c.Jina.Key == "" {
			errs = append(errs, "jina.key is required")
		}
		if c.Index.URL == "" && c.Index.Path == "" {
			errs = append(errs, "one of index.url or index.path is required")
		}
		if c.QA.TopK <= 0 {
			errs = append(errs, "qa.top_k must be > 0")
		}
	}
	requireStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "none":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite, postgres or none", c.Store.Driver))
		}
	}

	switch mode {
	case "score":
		requireSource()
		requireScoring()
		requireStore()
	case "serve":
		requireSource()
		requireScoring()
		requireStore()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
		if c.Auth.PasswordHash == "" {
			errs = append(errs, "auth.password_hash is required")
		}
		if len(c.Auth.Users) == 0 {
			errs = append(errs, "auth.users must not be empty")
		}
		if c.Auth.TokenTTLHours <= 0 {
			errs = append(errs, "auth.token_ttl_hours must be > 0")
		}
	case "ask":
		requireQA()
	case "report":
		requireSource()
		requireScoring()
		requireLLM()
	case "runs":
		requireStore()
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver none has no runs")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
