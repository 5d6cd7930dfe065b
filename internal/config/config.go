// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/extract"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/publisher/discord"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/gcs"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/local"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/mongo"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/postgres"
)

// Provider names accepted by the store, archive and notify sections.
const (
	ProviderCSV      = "csv"
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderMongo    = "mongo"
	ProviderNone     = "none"
	ProviderGCS      = "gcs"
	ProviderLocal    = "local"
	ProviderLog      = "log"
	ProviderPubSub   = "pubsub"
	ProviderDiscord  = "discord"
)

// Taxonomy sources.
const (
	TaxonomyStatic = "static"
	TaxonomyMenu   = "menu"
	TaxonomyTable  = "table"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Taxonomy  TaxonomyConfig  `mapstructure:"taxonomy"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Run       RunConfig       `mapstructure:"run"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Postgres  postgres.Config `mapstructure:"postgres"`
	Links     LinksConfig     `mapstructure:"links"`
	Products  ProductsConfig  `mapstructure:"products"`
	Runs      RunsConfig      `mapstructure:"runs"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the HTTP surface started by the watch command.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	APIKey  string `mapstructure:"api_key"`
}

// BrowserConfig lists the remote browser endpoints and session limits.
type BrowserConfig struct {
	Endpoints                []catalog.Endpoint `mapstructure:"endpoints"`
	UserAgent                string             `mapstructure:"user_agent"`
	NavigationTimeoutSeconds int                `mapstructure:"navigation_timeout_seconds"`
	ConnectTimeoutSeconds    int                `mapstructure:"connect_timeout_seconds"`
	MaxQPS                   float64            `mapstructure:"max_qps"`
}

// TaxonomyConfig selects where category roots come from.
type TaxonomyConfig struct {
	Source    string     `mapstructure:"source"`
	BaseURL   string     `mapstructure:"base_url"`
	Paths     []string   `mapstructure:"paths"`
	Menu      MenuConfig `mapstructure:"menu"`
	TablePath string     `mapstructure:"table_path"`
}

// MenuConfig drives navigation-menu category discovery.
type MenuConfig struct {
	PageURL        string `mapstructure:"page_url"`
	LinkSelector   string `mapstructure:"link_selector"`
	PathPrefix     string `mapstructure:"path_prefix"`
	CategorySuffix string `mapstructure:"category_suffix"`
}

// CrawlerConfig governs the discovery phase.
type CrawlerConfig struct {
	Workers            int    `mapstructure:"workers"`
	PaginationSelector string `mapstructure:"pagination_selector"`
	ProductSelector    string `mapstructure:"product_selector"`
	PageParam          string `mapstructure:"page_param"`
	WaitTimeoutSeconds int    `mapstructure:"wait_timeout_seconds"`
	MinDelayMs         int    `mapstructure:"min_delay_ms"`
	MaxDelayMs         int    `mapstructure:"max_delay_ms"`
}

// ExtractorConfig governs the extraction phase.
type ExtractorConfig struct {
	Workers            int               `mapstructure:"workers"`
	WaitTimeoutSeconds int               `mapstructure:"wait_timeout_seconds"`
	Selectors          extract.Selectors `mapstructure:"selectors"`
}

// RunConfig shapes a full run.
type RunConfig struct {
	PhaseGapSeconds int    `mapstructure:"phase_gap_seconds"`
	ArchivePrefix   string `mapstructure:"archive_prefix"`
}

// ScheduleConfig locates the HH:MM trigger file.
type ScheduleConfig struct {
	File           string `mapstructure:"file"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
}

// LinksConfig selects the link store backend.
type LinksConfig struct {
	Provider      string                `mapstructure:"provider"`
	CSV           local.LinkStoreConfig `mapstructure:"csv"`
	PostgresTable string                `mapstructure:"postgres_table"`
}

// ProductsConfig selects the product sink backend.
type ProductsConfig struct {
	Provider      string                   `mapstructure:"provider"`
	CSV           local.ProductStoreConfig `mapstructure:"csv"`
	PostgresTable string                   `mapstructure:"postgres_table"`
	Mongo         mongo.Config             `mapstructure:"mongo"`
}

// RunsConfig selects where run summaries are kept.
type RunsConfig struct {
	Provider      string `mapstructure:"provider"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// ArchiveConfig selects where table snapshots are copied after a run.
type ArchiveConfig struct {
	Provider string       `mapstructure:"provider"`
	GCS      gcs.Config   `mapstructure:"gcs"`
	Local    local.Config `mapstructure:"local"`
}

// NotifyConfig selects where run summaries are announced.
type NotifyConfig struct {
	Provider  string         `mapstructure:"provider"`
	Topic     string         `mapstructure:"topic"`
	ProjectID string         `mapstructure:"project_id"`
	Discord   discord.Config `mapstructure:"discord"`
}

// Load builds a Config from an optional .env file, disk and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("browser.endpoints", []map[string]string{{"address": "ws://127.0.0.1:9222", "family": catalog.FamilyChromium}})
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("browser.navigation_timeout_seconds", 45)
	v.SetDefault("browser.connect_timeout_seconds", 15)
	v.SetDefault("browser.max_qps", 0)
	v.SetDefault("taxonomy.source", TaxonomyStatic)
	v.SetDefault("taxonomy.base_url", "https://www.tesco.com/groceries/en-GB/shop")
	v.SetDefault("taxonomy.menu.link_selector", "nav a[href]")
	v.SetDefault("taxonomy.menu.path_prefix", "/groceries/en-GB/shop/")
	v.SetDefault("taxonomy.menu.category_suffix", "/all")
	v.SetDefault("crawler.workers", 6)
	v.SetDefault("crawler.wait_timeout_seconds", 10)
	v.SetDefault("crawler.min_delay_ms", 1000)
	v.SetDefault("crawler.max_delay_ms", 3000)
	v.SetDefault("extractor.workers", 6)
	v.SetDefault("extractor.wait_timeout_seconds", 10)
	v.SetDefault("run.phase_gap_seconds", 10)
	v.SetDefault("run.archive_prefix", "runs")
	v.SetDefault("schedule.file", "watcher.txt")
	v.SetDefault("schedule.poll_interval_ms", 100)
	v.SetDefault("links.provider", ProviderCSV)
	v.SetDefault("links.csv.path", "product_links.csv")
	v.SetDefault("links.csv.filter_size", 4096)
	v.SetDefault("links.postgres_table", "product_links")
	v.SetDefault("products.provider", ProviderCSV)
	v.SetDefault("products.csv.path", "products.csv")
	v.SetDefault("products.postgres_table", "products")
	v.SetDefault("products.mongo.database", "harvester")
	v.SetDefault("products.mongo.collection", "products")
	v.SetDefault("runs.provider", ProviderMemory)
	v.SetDefault("runs.postgres_table", "harvest_runs")
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.local.base_dir", "archive")
	v.SetDefault("notify.provider", ProviderNone)
	v.SetDefault("notify.topic", "harvest-runs")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Browser.Endpoints) == 0 {
		return fmt.Errorf("browser.endpoints must list at least one endpoint")
	}
	for i, ep := range c.Browser.Endpoints {
		family := strings.ToLower(strings.TrimSpace(ep.Family))
		switch family {
		case "", catalog.FamilyChromium, "chrome", catalog.FamilyDirect:
		default:
			return fmt.Errorf("browser.endpoints[%d].family %q is not supported", i, ep.Family)
		}
		// A direct endpoint without an address fetches without a proxy.
		if family != catalog.FamilyDirect && strings.TrimSpace(ep.Address) == "" {
			return fmt.Errorf("browser.endpoints[%d].address is required", i)
		}
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Extractor.Workers <= 0 {
		return fmt.Errorf("extractor.workers must be > 0")
	}
	if c.Crawler.MinDelayMs < 0 || c.Crawler.MaxDelayMs < c.Crawler.MinDelayMs {
		return fmt.Errorf("crawler delays must satisfy 0 <= min_delay_ms <= max_delay_ms")
	}
	if c.Run.PhaseGapSeconds < 0 {
		return fmt.Errorf("run.phase_gap_seconds must be >= 0")
	}

	switch c.Taxonomy.Source {
	case TaxonomyStatic:
		if c.Taxonomy.BaseURL == "" {
			return fmt.Errorf("taxonomy.base_url is required for the static source")
		}
	case TaxonomyMenu:
		if c.Taxonomy.Menu.PageURL == "" {
			return fmt.Errorf("taxonomy.menu.page_url is required for the menu source")
		}
	case TaxonomyTable:
		if c.Taxonomy.TablePath == "" {
			return fmt.Errorf("taxonomy.table_path is required for the table source")
		}
		if c.Links.Provider == ProviderCSV && samePath(c.Taxonomy.TablePath, c.Links.CSV.Path) {
			return fmt.Errorf("taxonomy.table_path must differ from links.csv.path: discovery resets the link table")
		}
		if c.Products.Provider == ProviderCSV && samePath(c.Taxonomy.TablePath, c.Products.CSV.Path) {
			return fmt.Errorf("taxonomy.table_path must differ from products.csv.path: extraction resets the product table")
		}
	default:
		return fmt.Errorf("unknown taxonomy source: %s", c.Taxonomy.Source)
	}

	if err := oneOf("links.provider", c.Links.Provider, ProviderCSV, ProviderPostgres, ProviderMemory); err != nil {
		return err
	}
	if err := oneOf("products.provider", c.Products.Provider, ProviderCSV, ProviderPostgres, ProviderMongo, ProviderMemory); err != nil {
		return err
	}
	if err := oneOf("runs.provider", c.Runs.Provider, ProviderMemory, ProviderPostgres); err != nil {
		return err
	}
	if c.usesPostgres() && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when a postgres provider is selected")
	}
	if c.Products.Provider == ProviderMongo && c.Products.Mongo.URI == "" {
		return fmt.Errorf("products.mongo.uri is required for the mongo provider")
	}

	if err := oneOf("archive.provider", c.Archive.Provider, ProviderNone, ProviderGCS, ProviderLocal); err != nil {
		return err
	}
	if c.Archive.Provider == ProviderGCS && c.Archive.GCS.Bucket == "" {
		return fmt.Errorf("archive.gcs.bucket is required for the gcs provider")
	}

	if err := oneOf("notify.provider", c.Notify.Provider, ProviderNone, ProviderLog, ProviderPubSub, ProviderDiscord); err != nil {
		return err
	}
	if c.Notify.Provider == ProviderPubSub && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub provider")
	}
	if c.Notify.Provider == ProviderDiscord && (c.Notify.Discord.Token == "" || c.Notify.Discord.ChannelID == "") {
		return fmt.Errorf("notify.discord.token and notify.discord.channel_id are required for the discord provider")
	}
	return nil
}

func (c Config) usesPostgres() bool {
	return c.Links.Provider == ProviderPostgres ||
		c.Products.Provider == ProviderPostgres ||
		c.Runs.Provider == ProviderPostgres
}

// samePath reports whether two file paths name the same file after cleaning.
func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("unknown %s: %q (want one of %s)", key, value, strings.Join(allowed, ", "))
}

// NavigationTimeout bounds one page load in a browser session.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutSeconds) * time.Second
}

// ConnectTimeout bounds opening one browser session.
func (c BrowserConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// WaitTimeout bounds the wait for a listing selector.
func (c CrawlerConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// Delays returns the bounds of the pause between listing pages.
func (c CrawlerConfig) Delays() (minDelay, maxDelay time.Duration) {
	return time.Duration(c.MinDelayMs) * time.Millisecond, time.Duration(c.MaxDelayMs) * time.Millisecond
}

// WaitTimeout bounds the wait for a product page's title.
func (c ExtractorConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// PhaseGap is the pause between discovery and extraction.
func (c RunConfig) PhaseGap() time.Duration {
	return time.Duration(c.PhaseGapSeconds) * time.Second
}

// PollInterval is how often the schedule file is read.
func (c ScheduleConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
