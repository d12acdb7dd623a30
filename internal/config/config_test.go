package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "homologation.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "0", cfg.Source.GID)
	assert.Equal(t, 30, cfg.Source.TimeoutSecs)
	assert.Equal(t, 2, cfg.Source.MaxRetries)
	assert.Equal(t, 4, cfg.Scoring.Workers)
	assert.Empty(t, cfg.Scoring.Weights)
	assert.Equal(t, 12, cfg.Auth.TokenTTLHours)
	assert.Equal(t, 2048, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://api.jina.ai/v1", cfg.Jina.BaseURL)
	assert.Equal(t, "jina-embeddings-v3", cfg.Jina.Model)
	assert.Equal(t, 5, cfg.QA.TopK)
	assert.Equal(t, 800, cfg.QA.ExcerptChars)
	assert.Equal(t, 5, cfg.QA.BreakerFailures)
	assert.Equal(t, 30, cfg.QA.BreakerResetSecs)
	assert.Equal(t, "rag_index.json", cfg.Index.Path)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
source:
  sheet_id: abc123
  gid: "42"
scoring:
  workers: 8
  weights:
    resultats_aux_examens: 0.5
    climat_inclusion: 0.5
auth:
  users:
    - email: direction@lycee.fr
      name: Direction
    - email: m.dupont@mlfmonde.org
      name: M. Dupont
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "abc123", cfg.Source.SheetID)
	assert.Equal(t, "42", cfg.Source.GID)
	assert.Equal(t, 8, cfg.Scoring.Workers)
	assert.InDelta(t, 0.5, cfg.Scoring.Weights["resultats_aux_examens"], 0.001)
	assert.InDelta(t, 0.5, cfg.Scoring.Weights["climat_inclusion"], 0.001)
	require.Len(t, cfg.Auth.Users, 2)
	assert.Equal(t, "m.dupont@mlfmonde.org", cfg.Auth.Users[1].Email)
	assert.Equal(t, "M. Dupont", cfg.Auth.Users[1].Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Source.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("HOMOLOGATION_STORE_DRIVER", "postgres")
	t.Setenv("HOMOLOGATION_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("HOMOLOGATION_SERVER_PORT", "3000")
	t.Setenv("HOMOLOGATION_SOURCE_SHEET_ID", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Source.SheetID)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Source.SheetID = "sheet"
	cfg.Source.GID = "0"
	cfg.Source.TimeoutSecs = 30
	cfg.Source.MaxRetries = 2
	cfg.Scoring.Workers = 4
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "homologation.db"
	cfg.Server.Port = 8080
	cfg.Auth.TokenTTLHours = 12
	cfg.Anthropic.MaxTokens = 2048
	cfg.QA.TopK = 5
	cfg.Index.Path = "rag_index.json"
	return cfg
}

func TestValidateScore(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("score"))

	cfg.Source.SheetID = ""
	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one of source.url, source.sheet_id or source.path is required")

	cfg.Source.Path = "etablissements.xlsx"
	assert.NoError(t, cfg.Validate("score"))
}

func TestValidateScoringBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Scoring.Workers = 0
	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.workers must be between 1 and 64")

	cfg.Scoring.Workers = 65
	assert.Error(t, cfg.Validate("score"))

	cfg.Scoring.Workers = 64
	assert.NoError(t, cfg.Validate("score"))

	cfg.Scoring.Weights = map[string]float64{"climat_inclusion": -1}
	err = cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.weights.climat_inclusion must be >= 0")
}

func TestValidateServe_MissingAuth(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
	assert.Contains(t, err.Error(), "auth.password_hash is required")
	assert.Contains(t, err.Error(), "auth.users must not be empty")

	cfg.Auth.JWTSecret = "secret"
	cfg.Auth.PasswordHash = "$2a$10$hash"
	cfg.Auth.Users = []UserConfig{{Email: "a@b.fr", Name: "A"}}
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Auth.JWTSecret = "secret"
	cfg.Auth.PasswordHash = "$2a$10$hash"
	cfg.Auth.Users = []UserConfig{{Email: "a@b.fr", Name: "A"}}
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateAsk(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "jina.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Jina.Key = "jina-key"
	assert.NoError(t, cfg.Validate("ask"))

	cfg.Index.Path = ""
	err = cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.url or index.path")
}

func TestValidateReport(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.NotContains(t, err.Error(), "jina.key")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("report"))
}

func TestValidateRuns(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("runs"))

	cfg.Store.Driver = "none"
	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver none has no runs")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" must be sqlite, postgres or none`)

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err = cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
