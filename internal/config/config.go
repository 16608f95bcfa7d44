package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/review-scraper/internal/logger"
)

// EnvPrefix is prepended to every environment variable, e.g.
// RS_GERRIT_URL or RS_STORAGE_DATABASE_PASSWORD.
const EnvPrefix = "RS"

// DefaultQuery matches every change, whatever its state.
const DefaultQuery = "status:open OR status:merged OR status:abandoned"

// DefaultOptions are the query options needed to classify changes and fetch
// their diffs.
var DefaultOptions = []string{
	"ALL_FILES",
	"ALL_REVISIONS",
	"LABELS",
	"DETAILED_LABELS",
	"DETAILED_ACCOUNTS",
	"MESSAGES",
}

// Config holds the application's configuration values.
type Config struct {
	Gerrit        GerritConfig  `mapstructure:"gerrit"`
	Scrape        ScrapeConfig  `mapstructure:"scrape"`
	Retry         RetryConfig   `mapstructure:"retry"`
	Storage       StorageConfig `mapstructure:"storage"`
	Logging       logger.Config `mapstructure:"logging"`
	InstancesFile string        `mapstructure:"instances_file"`
}

type GerritConfig struct {
	// Instance names an entry of the instance catalog. It is used when URL
	// is empty.
	Instance string        `mapstructure:"instance"`
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ScrapeConfig struct {
	Query    string   `mapstructure:"query"`
	Options  []string `mapstructure:"options"`
	PageSize int      `mapstructure:"page_size"`
	// Pages limits how many pages are fetched. 0 means all of them.
	Pages        int           `mapstructure:"pages"`
	AllRevisions bool          `mapstructure:"all_revisions"`
	StoreAll     bool          `mapstructure:"store_all"`
	Workers      int           `mapstructure:"workers"`
	PageDelay    time.Duration `mapstructure:"page_delay"`
}

// RetryConfig controls retries of failed page fetches. A zero BaseDelay
// uses the page delay, a zero MaxAttempts retries forever.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Growth      float64       `mapstructure:"growth"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type StorageConfig struct {
	JSON     JSONConfig `mapstructure:"json"`
	Database DBConfig   `mapstructure:"database"`
	// DryRun replaces every sink with an in-memory collection.
	DryRun bool `mapstructure:"dry_run"`
}

type JSONConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DBConfig holds the PostgreSQL connection and the collection sink settings.
type DBConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ClearBefore     bool          `mapstructure:"clear_before"`
	SkipExisting    bool          `mapstructure:"skip_existing"`
	KeyReplace      string        `mapstructure:"key_replace"`
	KeyReplacement  string        `mapstructure:"key_replacement"`
}

// ConnString returns DSN when it is set and builds a libpq key/value
// connection string otherwise.
func (c DBConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// SetDefaults registers every configuration key with its default value.
// Keys must be registered for environment variables to be picked up.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("instances_file", "")

	v.SetDefault("gerrit.instance", "")
	v.SetDefault("gerrit.url", "")
	v.SetDefault("gerrit.username", "")
	v.SetDefault("gerrit.password", "")
	v.SetDefault("gerrit.token", "")
	v.SetDefault("gerrit.timeout", 60*time.Second)

	v.SetDefault("scrape.query", DefaultQuery)
	v.SetDefault("scrape.options", DefaultOptions)
	v.SetDefault("scrape.page_size", 0)
	v.SetDefault("scrape.pages", 0)
	v.SetDefault("scrape.all_revisions", false)
	v.SetDefault("scrape.store_all", false)
	v.SetDefault("scrape.workers", 5)
	v.SetDefault("scrape.page_delay", time.Second)

	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.base_delay", time.Duration(0))
	v.SetDefault("retry.growth", 1.0)
	v.SetDefault("retry.max_delay", time.Duration(0))

	v.SetDefault("storage.dry_run", false)
	v.SetDefault("storage.json.enabled", true)
	v.SetDefault("storage.json.path", "changes.json")

	v.SetDefault("storage.database.enabled", false)
	v.SetDefault("storage.database.dsn", "")
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.username", "postgres")
	v.SetDefault("storage.database.password", "")
	v.SetDefault("storage.database.database", "gerrit")
	v.SetDefault("storage.database.sslmode", "disable")
	v.SetDefault("storage.database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("storage.database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("storage.database.clear_before", true)
	v.SetDefault("storage.database.skip_existing", false)
	v.SetDefault("storage.database.key_replace", ".")
	v.SetDefault("storage.database.key_replacement", "__dot__")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.file", "review-scraper.log")
}

// LoadConfig reads the configuration through the global viper instance.
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper(), "")
}

// Load reads configuration from defaults, an optional config file and
// RS_-prefixed environment variables, in increasing order of precedence.
// Values bound to command line flags win over all of them. When configFile
// is empty, config.yaml is looked up in the working directory and in
// $HOME/.review-scraper.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.review-scraper")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		slog.Debug("using config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// ResolveInstance fills Gerrit.URL from the instance catalog when only an
// instance name is configured. An instance query replaces the default query
// but not one set explicitly.
func (c *Config) ResolveInstance(catalog *Catalog) error {
	if c.Gerrit.URL != "" || c.Gerrit.Instance == "" {
		return nil
	}
	inst, err := catalog.Lookup(c.Gerrit.Instance)
	if err != nil {
		return err
	}
	c.Gerrit.URL = inst.URL
	if inst.Query != "" && c.Scrape.Query == DefaultQuery {
		c.Scrape.Query = inst.Query
	}
	return nil
}

// Validate checks the configuration for a scrape run.
func (c *Config) Validate() error {
	var errs []error

	if c.Gerrit.URL == "" {
		errs = append(errs, errors.New("gerrit.url or gerrit.instance must be set"))
	} else if !strings.HasPrefix(c.Gerrit.URL, "http://") && !strings.HasPrefix(c.Gerrit.URL, "https://") {
		errs = append(errs, fmt.Errorf("gerrit.url must be an http(s) URL, got %q", c.Gerrit.URL))
	}
	if c.Gerrit.Password != "" && c.Gerrit.Username == "" {
		errs = append(errs, errors.New("gerrit.password requires gerrit.username"))
	}
	if c.Gerrit.Timeout < 0 {
		errs = append(errs, errors.New("gerrit.timeout must not be negative"))
	}

	if strings.TrimSpace(c.Scrape.Query) == "" {
		errs = append(errs, errors.New("scrape.query must not be empty"))
	}
	if c.Scrape.PageSize < 0 {
		errs = append(errs, errors.New("scrape.page_size must not be negative"))
	}
	if c.Scrape.Pages < 0 {
		errs = append(errs, errors.New("scrape.pages must not be negative"))
	}
	if c.Scrape.Workers < 1 || c.Scrape.Workers > 100 {
		errs = append(errs, fmt.Errorf("scrape.workers must be between 1 and 100, got %d", c.Scrape.Workers))
	}
	if c.Scrape.PageDelay < 0 {
		errs = append(errs, errors.New("scrape.page_delay must not be negative"))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry.max_attempts must not be negative"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if c.Retry.Growth < 0 {
		errs = append(errs, errors.New("retry.growth must not be negative"))
	}

	if !c.Storage.DryRun && !c.Storage.JSON.Enabled && !c.Storage.Database.Enabled {
		errs = append(errs, errors.New("at least one of storage.json and storage.database must be enabled"))
	}
	if c.Storage.JSON.Enabled && c.Storage.JSON.Path == "" {
		errs = append(errs, errors.New("storage.json.path must be set"))
	}
	if db := c.Storage.Database; db.Enabled {
		if db.DSN == "" && (db.Host == "" || db.Database == "") {
			errs = append(errs, errors.New("storage.database needs a dsn or a host and database name"))
		}
		if db.KeyReplace == "" || db.KeyReplacement == "" {
			errs = append(errs, errors.New("storage.database key_replace and key_replacement must be set"))
		} else if strings.Contains(db.KeyReplacement, db.KeyReplace) {
			errs = append(errs, fmt.Errorf("storage.database.key_replacement %q must not contain %q", db.KeyReplacement, db.KeyReplace))
		}
	}

	return errors.Join(errs...)
}
