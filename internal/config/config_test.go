package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml or .env is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 300, cfg.Batch.Size)
	assert.Equal(t, "email", cfg.Batch.Variant)
	assert.Equal(t, 1, cfg.Batch.MinAgeMonths)
	assert.Equal(t, 2, cfg.Batch.MaxCandidates)
	assert.True(t, cfg.Batch.Atomic)
	assert.Equal(t, 30*time.Minute, cfg.Batch.LeaseTTL)
	assert.Equal(t, 5, cfg.Resolver.SearchMaxResults)
	assert.Equal(t, 10*time.Second, cfg.Resolver.SearchInterval)
	assert.Equal(t, 5*time.Second, cfg.Resolver.SearchBackoff)
	assert.Contains(t, cfg.Resolver.FreemailDomains, "gmail.com")
	assert.Contains(t, cfg.Resolver.DirectorySites, "yelp")
	assert.Equal(t, "tblfirms_firm", cfg.Tables.Firm)
	assert.Equal(t, "tblfirms_firm_companyname", cfg.Tables.FirmName)
	assert.Equal(t, "google", cfg.Search.Provider)
	assert.Equal(t, "https://r.jina.ai", cfg.Extract.JinaReadURL)
	assert.Equal(t, int64(512*1024), cfg.Extract.MaxBodyBytes)
	assert.InDelta(t, 1.0, cfg.Persist.Confidence, 0.001)
	assert.False(t, cfg.Extract.LLM.Enabled)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Extract.LLM.Model)
	assert.Equal(t, int64(512), cfg.Extract.LLM.MaxTokens)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
	assert.Equal(t, 6*time.Hour, cfg.Monitoring.StaleAfter)
	assert.InDelta(t, 5.0, cfg.Pricing.Google.PerThousand, 0.001)
	assert.Equal(t, 100, cfg.Pricing.Google.FreeDaily)
	require.Contains(t, cfg.Pricing.Anthropic, "claude-haiku-4-5-20251001")
	assert.InDelta(t, 4.0, cfg.Pricing.Anthropic["claude-haiku-4-5-20251001"].Output, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: enrich.db
log:
  level: debug
  format: console
batch:
  size: 50
  variant: phone
resolver:
  search_interval: 2s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "enrich.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, "phone", cfg.Batch.Variant)
	assert.Equal(t, 2*time.Second, cfg.Resolver.SearchInterval)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Batch.MaxCandidates)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ENRICH_STORE_DRIVER", "postgres")
	t.Setenv("ENRICH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ENRICH_BATCH_SIZE", "25")
	t.Setenv("ENRICH_SEARCH_GOOGLE_KEY", "key-123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Batch.Size)
	assert.Equal(t, "key-123", cfg.Search.GoogleKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("ENRICH_STORE_DATABASE_URL=postgres://localhost/registry\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("ENRICH_STORE_DATABASE_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/registry", cfg.Store.DatabaseURL)
}

func TestLoadBlacklistFile(t *testing.T) {
	dir := chdirTemp(t)

	list := `
freemail:
  - example-mail.com
directories:
  - superpages
`
	path := filepath.Join(dir, "blacklist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(list), 0644))
	t.Setenv("ENRICH_RESOLVER_BLACKLIST_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.Resolver.FreemailDomains, "example-mail.com")
	assert.Contains(t, cfg.Resolver.FreemailDomains, "gmail.com")
	assert.Contains(t, cfg.Resolver.DirectorySites, "superpages")
}

func TestLoadBlacklistFileMissing(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENRICH_RESOLVER_BLACKLIST_FILE", "/nonexistent/blacklist.yaml")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blacklist file")
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

// loadedDefaults returns a Config populated from defaults only.
func loadedDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateEnrich_AllPresent(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Search.GoogleKey = "key"
	cfg.Search.GoogleCX = "cx"

	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateEnrich_MissingFields(t *testing.T) {
	cfg := loadedDefaults(t)

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "search.google_key is required")
	assert.Contains(t, err.Error(), "search.google_cx is required")
}

func TestValidateEnrich_JinaProvider(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Search.Provider = "jina"

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.jina_key is required")

	cfg.Search.JinaKey = "jina"
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateEnrich_LLMNeedsKey(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Search.Provider = "none"
	cfg.Extract.LLM.Enabled = true

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.llm.key is required")

	cfg.Extract.LLM.Key = "sk-ant-test"
	assert.NoError(t, cfg.Validate("enrich"))
	cfg.Extract.LLM.Key = ""
	assert.NoError(t, cfg.Validate("migrate"), "only enrich uses the model")
}

func TestValidateMigrate_SQLiteNeedsNoURL(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Store.Driver = "sqlite"

	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateResolve_NoDB(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Search.Provider = "none"

	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := loadedDefaults(t)
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateStructBounds(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Search.Provider = "none"

	cfg.Batch.Size = 0
	assert.Error(t, cfg.Validate("enrich"))

	cfg.Batch.Size = 300
	cfg.Batch.Variant = "fax"
	assert.Error(t, cfg.Validate("enrich"))

	cfg.Batch.Variant = "url"
	cfg.Store.Driver = "mysql"
	assert.Error(t, cfg.Validate("enrich"))

	cfg.Store.Driver = "postgres"
	assert.NoError(t, cfg.Validate("enrich"))
}
