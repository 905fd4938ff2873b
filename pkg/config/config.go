package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Index backends.
const (
	BackendSQLite     = "sqlite"
	BackendOpenSearch = "opensearch"
)

type Config struct {
	Listen        string           `toml:"listen"`
	Debug         bool             `toml:"debug"`
	DebugServices []string         `toml:"debug_services,omitempty"`
	Index         IndexConfig      `toml:"index"`
	OpenSearch    OpenSearchConfig `toml:"opensearch"`
	Search        SearchConfig     `toml:"search"`
}

type IndexConfig struct {
	// Backend is "sqlite" (embedded index) or "opensearch".
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

type OpenSearchConfig struct {
	Addresses          []string `toml:"addresses"`
	Username           string   `toml:"username,omitempty"`
	Password           string   `toml:"password,omitempty"`
	InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
	// Indices maps collections (service_logs, audit_logs) to index names.
	Indices   map[string]string `toml:"indices,omitempty"`
	FacetSize int               `toml:"facet_size,omitempty"`
}

type SearchConfig struct {
	DefaultRows      int      `toml:"default_rows"`
	MaxTailRows      int      `toml:"max_tail_rows"`
	TieGroupLimit    int      `toml:"tie_group_limit"`
	FollowInterval   Duration `toml:"follow_interval"`
	OptimizeInterval Duration `toml:"optimize_interval"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func GetDefaultConfig() (*Config, error) {
	dbPath, err := GetDefaultDBPath()
	if err != nil {
		return nil, fmt.Errorf("getting default index path: %w", err)
	}
	c := &Config{Index: IndexConfig{Path: dbPath}}
	c.applyDefaults()
	return c, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.Index.Path == "" && config.Index.Backend != BackendOpenSearch {
		dbPath, err := GetDefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("getting default index path: %w", err)
		}
		config.Index.Path = dbPath
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "localhost:8080"
	}
	if c.Index.Backend == "" {
		c.Index.Backend = BackendSQLite
	}
	if c.Search.DefaultRows <= 0 {
		c.Search.DefaultRows = 10
	}
	if c.Search.MaxTailRows <= 0 {
		c.Search.MaxTailRows = 100
	}
	if c.Search.TieGroupLimit <= 0 {
		c.Search.TieGroupLimit = 1000
	}
	if c.Search.FollowInterval.Duration == 0 {
		c.Search.FollowInterval = Duration{2 * time.Second}
	}
	if c.Search.OptimizeInterval.Duration == 0 {
		c.Search.OptimizeInterval = Duration{time.Hour}
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendSQLite:
	case BackendOpenSearch:
		if len(c.OpenSearch.Addresses) == 0 {
			return fmt.Errorf("index backend %q requires opensearch.addresses", BackendOpenSearch)
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	return nil
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0644)
}

func (c *Config) generateConfigTemplate() (string, error) {
	dbPath := c.Index.Path
	if dbPath == "" {
		var err error
		dbPath, err = GetDefaultDBPath()
		if err != nil {
			return "", fmt.Errorf("getting default index path: %w", err)
		}
	}

	// Replace the placeholder path with the actual one
	template := strings.Replace(configTemplate, "/home/user/.local/share/logsearch/index.db", dbPath, 1)
	return template, nil
}

// GetDefaultStorageDir returns the default storage directory for the index
func GetDefaultStorageDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	storageDir := filepath.Join(dataDir, "logsearch")

	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", storageDir, err)
	}

	return storageDir, nil
}

// GetDefaultDBPath returns the default index path in the user's data directory
func GetDefaultDBPath() (string, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(storageDir, "index.db"), nil
}

// GetConfigDir returns the configuration directory for logsearch
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "logsearch")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
