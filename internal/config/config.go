package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Tables     TablesConfig     `yaml:"tables" mapstructure:"tables"`
	Script     ScriptConfig     `yaml:"script" mapstructure:"script"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Persist    PersistConfig    `yaml:"persist" mapstructure:"persist"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// TablesConfig names the registry tables (owned elsewhere) and the
// bookkeeping tables this tool writes. Names may be schema-qualified.
type TablesConfig struct {
	Firm             string `yaml:"firm" mapstructure:"firm" validate:"required"`
	FirmAddress      string `yaml:"firm_address" mapstructure:"firm_address" validate:"required"`
	AddressColumn    string `yaml:"address_column" mapstructure:"address_column" validate:"required"`
	FirmName         string `yaml:"firm_name" mapstructure:"firm_name" validate:"required"`
	FirmEmail        string `yaml:"firm_email" mapstructure:"firm_email" validate:"required"`
	FirmPhone        string `yaml:"firm_phone" mapstructure:"firm_phone" validate:"required"`
	FirmURL          string `yaml:"firm_url" mapstructure:"firm_url" validate:"required"`
	Script           string `yaml:"script" mapstructure:"script" validate:"required"`
	ScriptActivity   string `yaml:"script_activity" mapstructure:"script_activity" validate:"required"`
	Processed        string `yaml:"processed" mapstructure:"processed" validate:"required"`
	Lease            string `yaml:"lease" mapstructure:"lease" validate:"required"`
	GeneratedEmail   string `yaml:"generated_email" mapstructure:"generated_email" validate:"required"`
	GeneratedPhone   string `yaml:"generated_phone" mapstructure:"generated_phone" validate:"required"`
	GeneratedURL     string `yaml:"generated_url" mapstructure:"generated_url" validate:"required"`
	GeneratedAddress string `yaml:"generated_address" mapstructure:"generated_address" validate:"required"`
}

// ScriptConfig identifies the run recorded in the script registry.
type ScriptConfig struct {
	Name        string `yaml:"name" mapstructure:"name" validate:"required"`
	Version     string `yaml:"version" mapstructure:"version" validate:"required"`
	Description string `yaml:"description" mapstructure:"description"`
}

// BatchConfig configures batch selection and persistence.
type BatchConfig struct {
	Size          int           `yaml:"size" mapstructure:"size" validate:"min=1,max=10000"`
	Variant       string        `yaml:"variant" mapstructure:"variant" validate:"oneof=url email phone address"`
	MinAgeMonths  int           `yaml:"min_age_months" mapstructure:"min_age_months" validate:"gte=0"`
	MaxBatches    int           `yaml:"max_batches" mapstructure:"max_batches" validate:"gte=0"`
	LeaseTTL      time.Duration `yaml:"lease_ttl" mapstructure:"lease_ttl" validate:"gte=0"`
	MaxCandidates int           `yaml:"max_candidates" mapstructure:"max_candidates" validate:"min=1"`
	Atomic        bool          `yaml:"atomic" mapstructure:"atomic"`
}

// ResolverConfig configures website resolution for firms without a URL.
// The domain lists are deployment data; blacklist_file adds more from YAML.
type ResolverConfig struct {
	FreemailDomains  []string      `yaml:"freemail_domains" mapstructure:"freemail_domains"`
	DirectorySites   []string      `yaml:"directory_sites" mapstructure:"directory_sites"`
	BlacklistFile    string        `yaml:"blacklist_file" mapstructure:"blacklist_file"`
	SearchMaxResults int           `yaml:"search_max_results" mapstructure:"search_max_results" validate:"min=1,max=10"`
	SearchInterval   time.Duration `yaml:"search_interval" mapstructure:"search_interval" validate:"gte=0"`
	SearchBackoff    time.Duration `yaml:"search_backoff" mapstructure:"search_backoff" validate:"gte=0"`
	ValidateTimeout  time.Duration `yaml:"validate_timeout" mapstructure:"validate_timeout" validate:"gt=0"`
	QuotaCooldown    time.Duration `yaml:"quota_cooldown" mapstructure:"quota_cooldown" validate:"gte=0"`
}

// SearchConfig selects and configures the web search provider.
type SearchConfig struct {
	Provider      string        `yaml:"provider" mapstructure:"provider" validate:"oneof=google jina none"`
	GoogleKey     string        `yaml:"google_key" mapstructure:"google_key"`
	GoogleCX      string        `yaml:"google_cx" mapstructure:"google_cx"`
	GoogleBaseURL string        `yaml:"google_base_url" mapstructure:"google_base_url"`
	JinaKey       string        `yaml:"jina_key" mapstructure:"jina_key"`
	JinaSearchURL string        `yaml:"jina_search_url" mapstructure:"jina_search_url"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	Retries       int           `yaml:"retries" mapstructure:"retries" validate:"gte=0"`
}

// ExtractConfig configures page fetching for contact extraction.
type ExtractConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	JinaFallback bool          `yaml:"jina_fallback" mapstructure:"jina_fallback"`
	JinaReadURL  string        `yaml:"jina_read_url" mapstructure:"jina_read_url"`
	LLM          LLMConfig     `yaml:"llm" mapstructure:"llm"`
}

// LLMConfig configures the model fallback for pages whose markup yields
// no values.
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
	MaxChars  int    `yaml:"max_chars" mapstructure:"max_chars" validate:"gte=0"`
	Retries   int    `yaml:"retries" mapstructure:"retries" validate:"gte=0"`
}

// PersistConfig holds the constant columns written with generated values.
type PersistConfig struct {
	Note       string  `yaml:"note" mapstructure:"note"`
	Confidence float64 `yaml:"confidence" mapstructure:"confidence" validate:"gte=0,lte=1"`
	TypeID     int     `yaml:"type_id" mapstructure:"type_id"`
}

// MonitoringConfig configures run health checks and alert delivery.
type MonitoringConfig struct {
	WebhookURL           string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	LookbackHours        int           `yaml:"lookback_hours" mapstructure:"lookback_hours" validate:"gte=0"`
	StaleAfter           time.Duration `yaml:"stale_after" mapstructure:"stale_after" validate:"gte=0"`
}

// PricingConfig holds per-provider pricing rates used for run cost estimates.
type PricingConfig struct {
	Google    GooglePricing           `yaml:"google" mapstructure:"google"`
	Jina      JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// GooglePricing holds Custom Search JSON API pricing.
type GooglePricing struct {
	PerThousand float64 `yaml:"per_thousand" mapstructure:"per_thousand" validate:"gte=0"`
	FreeDaily   int     `yaml:"free_daily" mapstructure:"free_daily" validate:"gte=0"`
}

// JinaPricing holds Jina pricing. SearchTokens is the flat token charge
// assumed per search request.
type JinaPricing struct {
	PerMTok      float64 `yaml:"per_mtok" mapstructure:"per_mtok" validate:"gte=0"`
	SearchTokens int     `yaml:"search_tokens" mapstructure:"search_tokens" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Resolver.BlacklistFile != "" {
		if err := cfg.Resolver.mergeBlacklistFile(cfg.Resolver.BlacklistFile); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys without a default are invisible to Unmarshal under AutomaticEnv.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)

	v.SetDefault("tables.firm", "tblfirms_firm")
	v.SetDefault("tables.firm_address", "tblfirms_firm_address")
	v.SetDefault("tables.address_column", "address")
	v.SetDefault("tables.firm_name", "tblfirms_firm_companyname")
	v.SetDefault("tables.firm_email", "tblfirms_firm_email")
	v.SetDefault("tables.firm_phone", "tblfirms_firm_phone")
	v.SetDefault("tables.firm_url", "tblfirms_firm_url")
	v.SetDefault("tables.script", "enrich_script")
	v.SetDefault("tables.script_activity", "enrich_script_activity")
	v.SetDefault("tables.processed", "enrich_firm_processed")
	v.SetDefault("tables.lease", "enrich_firm_lease")
	v.SetDefault("tables.generated_email", "enrich_generated_firm_email")
	v.SetDefault("tables.generated_phone", "enrich_generated_firm_phone")
	v.SetDefault("tables.generated_url", "enrich_generated_firm_url")
	v.SetDefault("tables.generated_address", "enrich_generated_firm_address")

	v.SetDefault("script.name", "contact_enricher")
	v.SetDefault("script.version", "1.0.0")
	v.SetDefault("script.description", "")

	v.SetDefault("batch.size", 300)
	v.SetDefault("batch.variant", "email")
	v.SetDefault("batch.min_age_months", 1)
	v.SetDefault("batch.max_batches", 0)
	v.SetDefault("batch.lease_ttl", 30*time.Minute)
	v.SetDefault("batch.max_candidates", 2)
	v.SetDefault("batch.atomic", true)

	v.SetDefault("resolver.freemail_domains", []string{
		"gmail.com", "yahoo.com", "hotmail.com", "icloud.com", "comcast.net",
		"outlook.com", "msn.com", "aol.com", "charter.net", "arvig.net",
		"frontier.net", "frontiernet.net", "results.net", "live.com", "me.com",
	})
	v.SetDefault("resolver.directory_sites", []string{
		"mapquest", "yelp", "bbb", "podium", "porch", "chamberofcommerce", "angi",
		"yellowpages", "localsolution", "allbiz", "pitchbook", "411", "dnd",
		"thebluebook", "opencorporates", "menupix", "buildzoom", "buzzfile",
		"manta", "dandb", "bloomberg", "nextdoor", "dnb", "homeadvisor",
		"facebook", "linkedin",
	})
	v.SetDefault("resolver.blacklist_file", "")
	v.SetDefault("resolver.search_max_results", 5)
	v.SetDefault("resolver.search_interval", 10*time.Second)
	v.SetDefault("resolver.search_backoff", 5*time.Second)
	v.SetDefault("resolver.validate_timeout", 10*time.Second)
	v.SetDefault("resolver.quota_cooldown", 15*time.Minute)

	v.SetDefault("search.provider", "google")
	v.SetDefault("search.google_key", "")
	v.SetDefault("search.google_cx", "")
	v.SetDefault("search.jina_key", "")
	v.SetDefault("search.google_base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.jina_search_url", "https://s.jina.ai")
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.retries", 2)

	v.SetDefault("extract.timeout", 15*time.Second)
	v.SetDefault("extract.max_body_bytes", 512*1024)
	v.SetDefault("extract.user_agent", "Mozilla/5.0 (compatible; ContactEnricher/1.0)")
	v.SetDefault("extract.jina_fallback", false)
	v.SetDefault("extract.jina_read_url", "https://r.jina.ai")
	v.SetDefault("extract.llm.enabled", false)
	v.SetDefault("extract.llm.key", "")
	v.SetDefault("extract.llm.base_url", "")
	v.SetDefault("extract.llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("extract.llm.max_tokens", 512)
	v.SetDefault("extract.llm.max_chars", 12000)
	v.SetDefault("extract.llm.retries", 2)

	v.SetDefault("persist.note", "generated by contact-enricher")
	v.SetDefault("persist.confidence", 1.0)
	v.SetDefault("persist.type_id", 1)

	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.stale_after", 6*time.Hour)

	v.SetDefault("pricing.google.per_thousand", 5.00)
	v.SetDefault("pricing.google.free_daily", 100)
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.jina.search_tokens", 10000)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 0.80, "output": 4.00},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.00, "output": 15.00},
	})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// blacklistFile is the layout of resolver.blacklist_file.
type blacklistFile struct {
	Freemail    []string `yaml:"freemail"`
	Directories []string `yaml:"directories"`
}

func (r *ResolverConfig) mergeBlacklistFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read blacklist file %s", path)
	}
	var bf blacklistFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return eris.Wrapf(err, "config: parse blacklist file %s", path)
	}
	r.FreemailDomains = append(r.FreemailDomains, bf.Freemail...)
	r.DirectorySites = append(r.DirectorySites, bf.Directories...)
	return nil
}

// Validate checks struct constraints and the settings the given command
// mode needs. Modes: enrich, migrate, runs, resolve.
func (c *Config) Validate(mode string) error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validation failed")
	}

	var errs []string
	needDB, needSearch := false, false
	switch mode {
	case "enrich":
		needDB, needSearch = true, true
	case "migrate", "runs":
		needDB = true
	case "resolve":
		needSearch = true
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needDB && c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required (ENRICH_STORE_DATABASE_URL)")
	}
	if mode == "enrich" && c.Extract.LLM.Enabled && c.Extract.LLM.Key == "" {
		errs = append(errs, "extract.llm.key is required when extract.llm.enabled (ENRICH_EXTRACT_LLM_KEY)")
	}
	if needSearch {
		switch c.Search.Provider {
		case "google":
			if c.Search.GoogleKey == "" {
				errs = append(errs, "search.google_key is required (ENRICH_SEARCH_GOOGLE_KEY)")
			}
			if c.Search.GoogleCX == "" {
				errs = append(errs, "search.google_cx is required (ENRICH_SEARCH_GOOGLE_CX)")
			}
		case "jina":
			if c.Search.JinaKey == "" {
				errs = append(errs, "search.jina_key is required (ENRICH_SEARCH_JINA_KEY)")
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
