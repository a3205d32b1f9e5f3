package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration. Game rules live in tuning.yaml; this
// only covers where things are and what the process exposes.
type Config struct {
	Server  ServerConfig
	Market  MarketConfig
	Storage StorageConfig
}

type ServerConfig struct {
	Addr            string        `envconfig:"BF_ADDR" default:":8080"`
	EnableAdminHTTP bool          `envconfig:"BF_ENABLE_ADMIN_HTTP" default:"true"`
	AdminToken      string        `envconfig:"BF_ADMIN_TOKEN" default:""`
	ShutdownTimeout time.Duration `envconfig:"BF_SHUTDOWN_TIMEOUT" default:"5s"`
}

type MarketConfig struct {
	ID         string `envconfig:"BF_MARKET_ID" default:"market_1"`
	ConfigDir  string `envconfig:"BF_CONFIG_DIR" default:"./configs"`
	TuningPath string `envconfig:"BF_TUNING" default:""`
	LoadLatest bool   `envconfig:"BF_LOAD_LATEST_SNAPSHOT" default:"true"`
}

type StorageConfig struct {
	DataDir string `envconfig:"BF_DATA_DIR" default:"./data"`
	// PagesDB is the sqlite file holding workbook pages. Relative paths are
	// resolved under DataDir.
	PagesDB string `envconfig:"BF_PAGES_DB" default:"pages.sqlite"`
}

// Tuning is the tuning.yaml path, defaulting into ConfigDir.
func (m MarketConfig) Tuning() string {
	if p := strings.TrimSpace(m.TuningPath); p != "" {
		return p
	}
	return filepath.Join(m.ConfigDir, "tuning.yaml")
}

func (s StorageConfig) MarketDir(marketID string) string {
	return filepath.Join(s.DataDir, "markets", marketID)
}

func (s StorageConfig) PagesPath(marketID string) string {
	if s.PagesDB == ":memory:" || filepath.IsAbs(s.PagesDB) {
		return s.PagesDB
	}
	return filepath.Join(s.MarketDir(marketID), s.PagesDB)
}

// Load reads .env files (when present) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if strings.TrimSpace(cfg.Market.ID) == "" {
		return nil, fmt.Errorf("BF_MARKET_ID is empty")
	}
	return &cfg, nil
}
