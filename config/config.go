package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultFilePrefix   = "TopChanges_Nordea_Invest_DAG_"
	DefaultDBName       = "topchanges.db"
	DefaultRecentDBName = "topchanges_recent_60d.db"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	CatalogDir  string
	FilePrefix  string
	FilePattern string
	DateStart   time.Time
	DateEnd     time.Time

	LocalWorkdir        string
	DBName              string
	RecentDBName        string
	RemoteDBFull        string
	RemoteDBRecent      string
	AllowRemoteSnapshot bool

	RecentDays    int
	BatchSize     int
	ParseWorkers  int
	BusyTimeoutMS int
	LedgerHash    bool

	AliasesFile string
	ListDir     string

	Port     string
	PGURL    string
	LogLevel string
}

// DBPath is the local canonical store.
func (c *Config) DBPath() string {
	return filepath.Join(c.LocalWorkdir, c.DBName)
}

// RecentDBPath is the local bounded snapshot store.
func (c *Config) RecentDBPath() string {
	return filepath.Join(c.LocalWorkdir, c.RecentDBName)
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first; variables already
// set in the shell take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CatalogDir:     os.Getenv("CATALOG_DIR"),
		FilePrefix:     getString("FILE_PREFIX", DefaultFilePrefix),
		LocalWorkdir:   getString("LOCAL_WORKDIR", filepath.Join(os.TempDir(), "topchanges_sqlite_work")),
		DBName:         getString("DB_NAME", DefaultDBName),
		RecentDBName:   getString("RECENT_DB_NAME", DefaultRecentDBName),
		RemoteDBFull:   os.Getenv("REMOTE_DB_FULL"),
		RemoteDBRecent: os.Getenv("REMOTE_DB_RECENT"),
		AliasesFile:    os.Getenv("ALIASES_FILE"),
		ListDir:        os.Getenv("LIST_DIR"),
		Port:           getString("PORT", "8080"),
		PGURL:          os.Getenv("PG_URL"),
		LogLevel:       getString("LOG_LEVEL", "info"),
	}
	cfg.FilePattern = getString("FILE_PATTERN", cfg.FilePrefix+"*")

	var err error
	if cfg.DateStart, err = getDate("DATE_START", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		return nil, err
	}
	if cfg.DateEnd, err = getDate("DATE_END", time.Date(2035, 12, 31, 0, 0, 0, 0, time.UTC)); err != nil {
		return nil, err
	}
	if cfg.DateEnd.Before(cfg.DateStart) {
		return nil, fmt.Errorf("DATE_END %s is before DATE_START %s",
			cfg.DateEnd.Format("2006-01-02"), cfg.DateStart.Format("2006-01-02"))
	}

	if cfg.AllowRemoteSnapshot, err = getBool("ALLOW_REMOTE_SNAPSHOT", true); err != nil {
		return nil, err
	}
	if cfg.LedgerHash, err = getBool("LEDGER_HASH", false); err != nil {
		return nil, err
	}
	if cfg.RecentDays, err = getPositiveInt("RECENT_DAYS", 60); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getPositiveInt("BATCH_SIZE", 25); err != nil {
		return nil, err
	}
	if cfg.ParseWorkers, err = getPositiveInt("PARSE_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.BusyTimeoutMS, err = getPositiveInt("BUSY_TIMEOUT_MS", 60000); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireCatalog reports an error when no extract catalog is configured.
// Only the ingest command needs it.
func (c *Config) RequireCatalog() error {
	if c.CatalogDir == "" {
		return fmt.Errorf("CATALOG_DIR environment variable is required")
	}
	return nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func getPositiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getDate(key string, def time.Time) (time.Time, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be in YYYY-MM-DD format, got %q", key, v)
	}
	return t, nil
}
