package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Asia/Tokyo"
	configPathEnv   = "RESALE_SCANNER_CONFIG"
	deployEnvEnv    = "DEPLOY_ENV"
	tableNameEnv    = "TABLE_NAME"
	storeDriverEnv  = "STORE_DRIVER"
	databaseDSNEnv  = "DATABASE_DSN"
	awsRegionEnv    = "AWS_REGION"
	awsEndpointEnv  = "AWS_ENDPOINT_URL"
	logLevelEnv     = "LOG_LEVEL"
	logFormatEnv    = "LOG_FORMAT"
	metricsAddrEnv  = "METRICS_ADDR"
	lockPathEnv     = "LOCK_PATH"

	// Store drivers.
	DriverDynamo   = "dynamodb"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds high-level settings required across the application.
type Config struct {
	DeployEnv string          `yaml:"deployEnv"`
	Functions FunctionsConfig `yaml:"functions"`
	Store     StoreConfig     `yaml:"store"`
	AWS       AWSConfig       `yaml:"aws"`
	Keyspace  KeyspaceConfig  `yaml:"keyspace"`
	Listing   ListingConfig   `yaml:"listing"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Lock      LockConfig      `yaml:"lock"`
}

// FunctionsConfig names one remote function per pipeline step.
type FunctionsConfig struct {
	Planner          string `yaml:"planner"`
	Search           string `yaml:"search"`
	Detail           string `yaml:"detail"`
	Eligibility      string `yaml:"eligibility"`
	Images           string `yaml:"images"`
	ModerationLegacy string `yaml:"moderationLegacy"`
	Moderation       string `yaml:"moderation"`
	Content          string `yaml:"content"`
	ContentFallback  string `yaml:"contentFallback"`
	ShortenTitle     string `yaml:"shortenTitle"`
	ChooseStore      string `yaml:"chooseStore"`
	Offer            string `yaml:"offer"`
	Publish          string `yaml:"publish"`
}

// FunctionEntry is one row of the function table.
type FunctionEntry struct {
	Name string
	Env  string
	Ref  string
}

// Entries lists the function references with their environment variable names.
// The legacy moderation reference is optional and not listed.
func (f FunctionsConfig) Entries() []FunctionEntry {
	return []FunctionEntry{
		{Name: "planner", Env: "LAMBDA_GET_SEARCH", Ref: f.Planner},
		{Name: "search", Env: "LAMBDA_MERC_SEARCH", Ref: f.Search},
		{Name: "detail", Env: "LAMBDA_MERC_ITEM", Ref: f.Detail},
		{Name: "eligibility", Env: "LAMBDA_IS_ELIGIBLE_FOR_LISTING", Ref: f.Eligibility},
		{Name: "images", Env: "LAMBDA_IMAGE_PROCESSOR", Ref: f.Images},
		{Name: "moderation", Env: "LAMBDA_AI_CHECK_GPT", Ref: f.ModerationRef()},
		{Name: "content", Env: "LAMBDA_AI_CREATE", Ref: f.Content},
		{Name: "content_fallback", Env: "LAMBDA_AI_CREATE_GPT", Ref: f.ContentFallback},
		{Name: "shorten_title", Env: "LAMBDA_SHORTEN_TITLE", Ref: f.ShortenTitle},
		{Name: "choose_store", Env: "LAMBDA_AI_CHOOSE_STORE", Ref: f.ChooseStore},
		{Name: "offer", Env: "LAMBDA_OFFER_PART", Ref: f.Offer},
		{Name: "publish", Env: "LAMBDA_EBAY_LIST", Ref: f.Publish},
	}
}

// ModerationRef prefers the current moderation function over the legacy one.
func (f FunctionsConfig) ModerationRef() string {
	if f.Moderation != "" {
		return f.Moderation
	}
	return f.ModerationLegacy
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Table  string `yaml:"table"`
	DSN    string `yaml:"dsn"`
}

// AWSConfig overrides SDK defaults; both fields are optional.
type AWSConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// KeyspaceConfig shapes record keys.
type KeyspaceConfig struct {
	Namespace    string `yaml:"namespace"`
	Operator     string `yaml:"operator"`
	OriginPrefix string `yaml:"originPrefix"`
}

// ListingConfig holds the static values stamped on every listing.
type ListingConfig struct {
	Platform         string `yaml:"platform"`
	OriginURLPrefix  string `yaml:"originUrlPrefix"`
	Category         string `yaml:"category"`
	StoreCategory    string `yaml:"storeCategory"`
	Condition        string `yaml:"condition"`
	MarketplaceID    string `yaml:"marketplaceId"`
	Format           string `yaml:"format"`
	MerchantLocation string `yaml:"merchantLocation"`
}

// ThrottleConfig sets the spacing floors of the two rate-limited dependencies.
type ThrottleConfig struct {
	SourceSpacing  time.Duration `yaml:"sourceSpacing"`
	SourceJitter   time.Duration `yaml:"sourceJitter"`
	PublishSpacing time.Duration `yaml:"publishSpacing"`
}

// ScannerConfig tunes the search loop.
type ScannerConfig struct {
	ItemType  string         `yaml:"itemType"`
	MinAge    time.Duration  `yaml:"minAge"`
	MaxListed int            `yaml:"maxListed"`
	Cooldown  time.Duration  `yaml:"cooldown"`
	Timezone  string         `yaml:"timezone"`
	location  *time.Location `yaml:"-"`
}

// Location resolves the record timestamp timezone.
func (s ScannerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LockConfig guards against two scanners sharing the same rate limits.
type LockConfig struct {
	Path string `yaml:"path"`
}

// Load reads .env, then the YAML file at path (or $RESALE_SCANNER_CONFIG), then
// applies environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{deployEnvEnv, &c.DeployEnv},
		{tableNameEnv, &c.Store.Table},
		{storeDriverEnv, &c.Store.Driver},
		{databaseDSNEnv, &c.Store.DSN},
		{awsRegionEnv, &c.AWS.Region},
		{awsEndpointEnv, &c.AWS.Endpoint},
		{logLevelEnv, &c.Logging.Level},
		{logFormatEnv, &c.Logging.Format},
		{metricsAddrEnv, &c.Metrics.Addr},
		{lockPathEnv, &c.Lock.Path},
		{"LAMBDA_GET_SEARCH", &c.Functions.Planner},
		{"LAMBDA_MERC_SEARCH", &c.Functions.Search},
		{"LAMBDA_MERC_ITEM", &c.Functions.Detail},
		{"LAMBDA_IS_ELIGIBLE_FOR_LISTING", &c.Functions.Eligibility},
		{"LAMBDA_IMAGE_PROCESSOR", &c.Functions.Images},
		{"LAMBDA_AI_CHECK", &c.Functions.ModerationLegacy},
		{"LAMBDA_AI_CHECK_GPT", &c.Functions.Moderation},
		{"LAMBDA_AI_CREATE", &c.Functions.Content},
		{"LAMBDA_AI_CREATE_GPT", &c.Functions.ContentFallback},
		{"LAMBDA_SHORTEN_TITLE", &c.Functions.ShortenTitle},
		{"LAMBDA_AI_CHOOSE_STORE", &c.Functions.ChooseStore},
		{"LAMBDA_OFFER_PART", &c.Functions.Offer},
		{"LAMBDA_EBAY_LIST", &c.Functions.Publish},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scanner.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		tz = defaultTimezone
		if loc, err = time.LoadLocation(defaultTimezone); err != nil {
			loc = time.FixedZone("JST", 9*60*60)
		}
	}
	c.Scanner.Timezone = tz
	c.Scanner.location = loc
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	for _, fn := range c.Functions.Entries() {
		if fn.Ref == "" {
			errs = append(errs, fmt.Errorf("function %s is not configured (set %s)", fn.Name, fn.Env))
		}
	}

	switch c.Store.Driver {
	case DriverDynamo:
		if c.Store.Table == "" {
			errs = append(errs, fmt.Errorf("store table is not configured (set %s)", tableNameEnv))
		}
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store dsn is not configured (set %s)", databaseDSNEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	if c.Keyspace.Namespace == "" || c.Keyspace.Operator == "" || c.Keyspace.OriginPrefix == "" {
		errs = append(errs, errors.New("keyspace namespace, operator and originPrefix are required"))
	}
	if c.Throttle.SourceSpacing < 0 || c.Throttle.SourceJitter < 0 || c.Throttle.PublishSpacing < 0 {
		errs = append(errs, errors.New("throttle spacings must not be negative"))
	}
	if c.Scanner.MaxListed <= 0 {
		errs = append(errs, errors.New("scanner maxListed must be positive"))
	}

	return errors.Join(errs...)
}

func defaultConfig() Config {
	return Config{
		DeployEnv: "prod",
		Store:     StoreConfig{Driver: DriverDynamo},
		Keyspace:  KeyspaceConfig{Namespace: "ITEM", Operator: "naoto", OriginPrefix: "merc"},
		Listing: ListingConfig{
			Platform:         "merc",
			OriginURLPrefix:  "https://jp.mercari.com/item/",
			Category:         "69528",
			StoreCategory:    "/Anime Merchandise",
			Condition:        "USED_EXCELLENT",
			MarketplaceID:    "EBAY_US",
			Format:           "FIXED_PRICE",
			MerchantLocation: "main-warehouse",
		},
		Throttle: ThrottleConfig{
			SourceSpacing:  9 * time.Second,
			SourceJitter:   2 * time.Second,
			PublishSpacing: 15 * time.Second,
		},
		Scanner: ScannerConfig{
			ItemType:  "ITEM_TYPE_MERCARI",
			MinAge:    24 * time.Hour,
			MaxListed: 10,
			Cooldown:  10 * time.Second,
			Timezone:  defaultTimezone,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
