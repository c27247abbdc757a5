package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Connection types understood by the connector registry
const (
	ConnectorDashdoc = "dashdoc"
	ConnectorOdoo    = "odoo"
)

// SyncConfig holds data lake synchronization configuration
type SyncConfig struct {
	// ============ TIERS ============
	IncrementalInterval time.Duration `yaml:"incremental_interval"`
	PeriodicInterval    time.Duration `yaml:"periodic_interval"`
	FullInterval        time.Duration `yaml:"full_interval"`
	FullSchedule        string        `yaml:"full_schedule"` // cron format, overrides FullInterval
	EnableIncremental   bool          `yaml:"enable_incremental"`
	EntityDelay         time.Duration `yaml:"entity_delay"`

	// ============ STARTUP ============
	FreshnessThreshold     time.Duration `yaml:"freshness_threshold"`
	SkipInitialSyncIfFresh bool          `yaml:"skip_initial_sync_if_fresh"`

	// ============ PAGINATION ============
	TransportPageSize int `yaml:"transport_page_size"`
	CompanyPageSize   int `yaml:"company_page_size"`
	DefaultPageSize   int `yaml:"default_page_size"`
	MaxPages          int `yaml:"max_pages"`
	BatchSize         int `yaml:"batch_size"`

	// ============ UPSTREAM ============
	RequestInterval time.Duration `yaml:"request_interval"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`

	// ============ READERS ============
	LiveFreshness      time.Duration `yaml:"live_freshness"`      // transports, counters
	ReferenceFreshness time.Duration `yaml:"reference_freshness"` // everything else
	MaxErrors          int           `yaml:"max_errors"`

	// ============ CONNECTIONS ============
	Connections []ConnectionConfig `yaml:"connections"`
}

// ConnectionConfig identifies one upstream TMS account mirrored into the lake
type ConnectionConfig struct {
	OrganizationID string `yaml:"organization_id"`
	ConnectionID   string `yaml:"connection_id"`
	Type           string `yaml:"type"`
	Disabled       bool   `yaml:"disabled"`

	// dashdoc
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`

	// odoo
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadSyncConfig builds the sync configuration from defaults, environment and
// the optional connections file named by SYNC_CONFIG_PATH.
func LoadSyncConfig() (*SyncConfig, error) {
	cfg := getDefaultSyncConfig()

	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if err := loadSyncConfigFromFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.Connections) == 0 {
		if conn, ok := connectionFromEnv(); ok {
			cfg.Connections = append(cfg.Connections, conn)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSyncConfigFromFile overlays a YAML file on top of cfg
func loadSyncConfigFromFile(path string, cfg *SyncConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sync config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse sync config %s: %w", path, err)
	}
	return nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		IncrementalInterval: getDurationEnv("SYNC_INCREMENTAL_INTERVAL", 25*time.Second),
		PeriodicInterval:    getDurationEnv("SYNC_PERIODIC_INTERVAL", 30*time.Minute),
		FullInterval:        getDurationEnv("SYNC_FULL_INTERVAL", time.Hour),
		FullSchedule:        os.Getenv("SYNC_FULL_SCHEDULE"),
		EnableIncremental:   getBoolEnv("SYNC_ENABLE_INCREMENTAL", true),
		EntityDelay:         getDurationEnv("SYNC_ENTITY_DELAY", 3*time.Second),

		FreshnessThreshold:     getDurationEnv("SYNC_FRESHNESS_THRESHOLD", time.Hour),
		SkipInitialSyncIfFresh: getBoolEnv("SYNC_SKIP_INITIAL_IF_FRESH", true),

		TransportPageSize: getIntEnv("SYNC_TRANSPORT_PAGE_SIZE", 100),
		CompanyPageSize:   getIntEnv("SYNC_COMPANY_PAGE_SIZE", 500),
		DefaultPageSize:   getIntEnv("SYNC_DEFAULT_PAGE_SIZE", 1000),
		MaxPages:          getIntEnv("SYNC_MAX_PAGES", 50),
		BatchSize:         getIntEnv("SYNC_BATCH_SIZE", 500),

		RequestInterval: getDurationEnv("SYNC_REQUEST_INTERVAL", 500*time.Millisecond),
		RequestTimeout:  getDurationEnv("SYNC_REQUEST_TIMEOUT", 30*time.Second),
		MaxRetries:      getIntEnv("SYNC_MAX_RETRIES", 3),
		RetryDelay:      getDurationEnv("SYNC_RETRY_DELAY", 2*time.Second),

		LiveFreshness:      getDurationEnv("READER_LIVE_FRESHNESS", time.Minute),
		ReferenceFreshness: getDurationEnv("READER_REFERENCE_FRESHNESS", 5*time.Minute),
		MaxErrors:          getIntEnv("SYNC_MAX_ERRORS", 50),
	}
}

// connectionFromEnv builds a single connection when no file is configured.
// Dashdoc wins when both token and Odoo URL are present.
func connectionFromEnv() (ConnectionConfig, bool) {
	conn := ConnectionConfig{
		OrganizationID: getEnv("DATALAKE_ORGANIZATION_ID", "default"),
		ConnectionID:   os.Getenv("DATALAKE_CONNECTION_ID"),
	}

	switch {
	case os.Getenv("DASHDOC_API_TOKEN") != "":
		conn.Type = ConnectorDashdoc
		conn.APIToken = os.Getenv("DASHDOC_API_TOKEN")
		conn.BaseURL = getEnv("DASHDOC_BASE_URL", "https://www.dashdoc.eu/api/v4")
	case os.Getenv("ODOO_URL") != "":
		conn.Type = ConnectorOdoo
		conn.BaseURL = os.Getenv("ODOO_URL")
		conn.Database = os.Getenv("ODOO_DB")
		conn.Username = os.Getenv("ODOO_USER")
		conn.Password = os.Getenv("ODOO_PASSWORD")
	default:
		return ConnectionConfig{}, false
	}

	if conn.ConnectionID == "" {
		conn.ConnectionID = conn.Type
	}
	return conn, true
}

// Validate checks tier settings and connection identities
func (c *SyncConfig) Validate() error {
	var result *multierror.Error

	if c.IncrementalInterval <= 0 || c.PeriodicInterval <= 0 || c.FullInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("tier intervals must be positive"))
	}
	if c.EntityDelay < 0 {
		result = multierror.Append(result, fmt.Errorf("entity_delay must not be negative"))
	}
	if c.MaxPages <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_pages must be positive"))
	}
	if c.BatchSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch_size must be positive"))
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 50
	}

	seen := make(map[string]bool)
	for i, conn := range c.Connections {
		if conn.OrganizationID == "" || conn.ConnectionID == "" {
			result = multierror.Append(result, fmt.Errorf("connection #%d: organization_id and connection_id are required", i))
			continue
		}
		if seen[conn.ConnectionID] {
			result = multierror.Append(result, fmt.Errorf("connection %s: duplicate connection_id", conn.ConnectionID))
		}
		seen[conn.ConnectionID] = true

		switch conn.Type {
		case ConnectorDashdoc:
			if conn.APIToken == "" {
				result = multierror.Append(result, fmt.Errorf("connection %s: api_token is required", conn.ConnectionID))
			}
		case ConnectorOdoo:
			if conn.BaseURL == "" || conn.Database == "" {
				result = multierror.Append(result, fmt.Errorf("connection %s: base_url and database are required", conn.ConnectionID))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("connection %s: unknown type %q", conn.ConnectionID, conn.Type))
		}
	}

	return result.ErrorOrNil()
}

// PageSizeFor returns the page size used when walking an entity collection
func (c *SyncConfig) PageSizeFor(entity string) int {
	switch entity {
	case "transports":
		return c.TransportPageSize
	case "companies":
		return c.CompanyPageSize
	default:
		return c.DefaultPageSize
	}
}

// FreshnessFor returns the reader freshness threshold of an entity collection
func (c *SyncConfig) FreshnessFor(entity string) time.Duration {
	switch entity {
	case "transports", "counters":
		return c.LiveFreshness
	default:
		return c.ReferenceFreshness
	}
}

// Active returns the connections that are not disabled
func (c *SyncConfig) Active() []ConnectionConfig {
	out := make([]ConnectionConfig, 0, len(c.Connections))
	for _, conn := range c.Connections {
		if !conn.Disabled {
			out = append(out, conn)
		}
	}
	return out
}
