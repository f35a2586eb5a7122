package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	// env overrides, applied after the file is read
	envDatabaseURL = "LEASETH_DATABASE_URL"
	envRedisAddr   = "LEASETH_REDIS_ADDR"
)

// Config is the on-disk application configuration. Every tunable the
// scoring engine exposes lives here so deployments never patch code to
// adjust policy.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Models   Models   `yaml:"models"`
	Scoring  Scoring  `yaml:"scoring"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Database holds the store DSN. A postgres:// or postgresql:// URL selects
// the postgres driver, anything else is treated as a sqlite file path.
// Empty means the default sqlite file under the app home dir.
type Database struct {
	DSN string `yaml:"dsn"`
}

type Cache struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	DB         int    `yaml:"db"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// Models points at the two artifact bundles the registry loads at startup.
// Relative paths resolve against Dir.
type Models struct {
	Dir           string   `yaml:"dir"`
	EvictionAware ModelRef `yaml:"eviction_aware"`
	FinancialOnly ModelRef `yaml:"financial_only"`
}

type ModelRef struct {
	Artifact string `yaml:"artifact"`
	Features string `yaml:"features"`
}

type Scoring struct {
	Thresholds Thresholds `yaml:"thresholds"`
	Policy     Policy     `yaml:"policy"`

	// Per-field overrides for the feature-engineering defaults. Absent keys
	// fall back to the engine's shipped values.
	Defaults            map[string]float64 `yaml:"defaults,omitempty"`
	CategoricalDefaults map[string]string  `yaml:"categorical_defaults,omitempty"`
}

type Thresholds struct {
	Approve float64 `yaml:"approve"`
	Manual  float64 `yaml:"manual"`
	Reject  float64 `yaml:"reject"`
}

type Policy struct {
	PoorCreditCutoff         float64 `yaml:"poor_credit_cutoff"`
	SubprimeCreditCutoff     float64 `yaml:"subprime_credit_cutoff"`
	SecondaryRejectCutoff    float64 `yaml:"secondary_reject_cutoff"`
	ZeroEvictionRejectCutoff float64 `yaml:"zero_eviction_reject_cutoff"`
	IncomeStabilityMultiple  float64 `yaml:"income_stability_multiple"`
	RentBurdenCutoff         float64 `yaml:"rent_burden_cutoff"`
}

// Default returns the shipped configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Port: 8080,
		},
		Cache: Cache{
			Addr:       "localhost:6379",
			TTLMinutes: 60,
		},
		Models: Models{
			Dir: "models",
			EvictionAware: ModelRef{
				Artifact: "model_v1_2025_11.json",
				Features: "features_v1_2025_11.json",
			},
			FinancialOnly: ModelRef{
				Artifact: "model_v3_2025_11.json",
				Features: "features_v3_2025_11.json",
			},
		},
		Scoring: Scoring{
			Thresholds: Thresholds{
				Approve: 0.45,
				Manual:  0.60,
				Reject:  0.75,
			},
			Policy: Policy{
				PoorCreditCutoff:         600,
				SubprimeCreditCutoff:     670,
				SecondaryRejectCutoff:    0.85,
				ZeroEvictionRejectCutoff: 0.90,
				IncomeStabilityMultiple:  3.0,
				RentBurdenCutoff:         0.4,
			},
		},
	}
}

// Path returns the config file path inside dirPath.
func Path(dirPath string) string {
	return filepath.Join(dirPath, configFileName)
}

// ReadOrCreate loads the config from dirPath, writing the defaults first
// when no file exists yet. Environment overrides are applied after the read.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	path := Path(dirPath)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c := Default()
		if err := Save(dirPath, c); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		slog.Debug("created default config", "path", path)
		applyEnv(c)
		return c, nil
	}

	c, err := Read(path)
	if err != nil {
		return nil, err
	}
	applyEnv(c)
	return c, nil
}

// Read loads the config from an explicit file path. Fields missing from the
// file keep their default values.
func Read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, nil
}

// Save writes the config to dirPath, creating the directory when needed.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}

	if err := os.MkdirAll(dirPath, dirMode); err != nil {
		return fmt.Errorf("creating config dir %s: %w", dirPath, err)
	}

	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	path := Path(dirPath)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// GetOrCreateHomeDir returns the app directory under the user home dir,
// creating it on first use. The create flag reports whether it was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("getting user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("creating dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv(envDatabaseURL); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		c.Cache.Addr = v
		c.Cache.Enabled = true
	}
}
