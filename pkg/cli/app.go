package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/leaseth/leaseth/pkg/config"
	"github.com/leaseth/leaseth/pkg/data"
	"github.com/leaseth/leaseth/pkg/engine"
	"github.com/leaseth/leaseth/pkg/logging"
)

const (
	appName      = "leaseth"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat = formatJSON

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	configDirFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Path to the config directory (default: ~/.leaseth)",
	}

	dbFlag = &urfave.StringFlag{
		Name:  "db",
		Usage: "Store DSN: sqlite file path or postgres:// URL",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false)

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// appConfig is the per-invocation state the Before hook assembles for
// commands. The engine is built on first use so commands that never score
// do not pay for model loading.
type appConfig struct {
	Home  string
	Conf  *config.Config
	Store *data.Store
	Debug bool

	eng *engine.Engine
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func (a *appConfig) loadEngine() (*engine.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}

	eng, err := engine.New(engineConfig(a.Conf))
	if err != nil {
		return nil, fmt.Errorf("building scoring engine: %w", err)
	}

	a.eng = eng
	return eng, nil
}

// engineConfig maps the on-disk configuration onto the engine assembly.
func engineConfig(conf *config.Config) engine.Config {
	m := conf.Models
	return engine.Config{
		Registry: engine.RegistryConfig{
			EvictionAware: engine.BundleRef{
				ArtifactPath: modelPath(m.Dir, m.EvictionAware.Artifact),
				FeaturesPath: modelPath(m.Dir, m.EvictionAware.Features),
			},
			FinancialOnly: engine.BundleRef{
				ArtifactPath: modelPath(m.Dir, m.FinancialOnly.Artifact),
				FeaturesPath: modelPath(m.Dir, m.FinancialOnly.Features),
			},
		},
		Engineer: engine.EngineerConfig{
			Defaults:                conf.Scoring.Defaults,
			CategoricalDefaults:     conf.Scoring.CategoricalDefaults,
			IncomeStabilityMultiple: conf.Scoring.Policy.IncomeStabilityMultiple,
			RentBurdenCutoff:        conf.Scoring.Policy.RentBurdenCutoff,
			SubprimeCreditCutoff:    conf.Scoring.Policy.SubprimeCreditCutoff,
		},
		Thresholds: engine.ThresholdSet{
			Approve: conf.Scoring.Thresholds.Approve,
			Manual:  conf.Scoring.Thresholds.Manual,
			Reject:  conf.Scoring.Thresholds.Reject,
		},
		Policy: engine.PolicyConfig{
			PoorCreditCutoff:         conf.Scoring.Policy.PoorCreditCutoff,
			SecondaryRejectCutoff:    conf.Scoring.Policy.SecondaryRejectCutoff,
			ZeroEvictionRejectCutoff: conf.Scoring.Policy.ZeroEvictionRejectCutoff,
		},
	}
}

// modelPath resolves a bundle file against the models dir. Absolute file
// paths are taken as-is; a relative dir resolves against the working
// directory.
func modelPath(dir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Tenant default risk scoring and decisioning",
		Flags: []urfave.Flag{
			debugFlag,
			configDirFlag,
			dbFlag,
			formatFlag,
		},
		Commands: []*urfave.Command{
			scoreCmd,
			importCmd,
			thresholdsCmd,
			queryCmd,
			serveCmd,
			authCmd,
			resetCmd,
		},
		Before: func(c *urfave.Context) error {
			if c.Bool(debugFlag.Name) {
				initLogging(true)
			}

			f := c.String(formatFlag.Name)
			if f == formatYAML || f == "yml" {
				outputFormat = formatYAML
			}

			home := c.String(configDirFlag.Name)
			if home == "" {
				var err error
				home, _, err = config.GetOrCreateHomeDir(appName)
				if err != nil {
					return fmt.Errorf("resolving app home dir: %w", err)
				}
			}

			conf, err := config.ReadOrCreate(home)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			dsn := c.String(dbFlag.Name)
			if dsn == "" {
				dsn = conf.Database.DSN
			}
			if dsn == "" {
				dsn = filepath.Join(home, data.DataFileName)
			}

			store, err := data.Open(dsn)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			if err := store.Init(c.Context); err != nil {
				store.Close()
				return fmt.Errorf("initializing store: %w", err)
			}

			c.App.Metadata[appConfigKey] = &appConfig{
				Home:  home,
				Conf:  conf,
				Store: store,
				Debug: c.Bool(debugFlag.Name),
			}
			return nil
		},
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok && cfg.Store != nil {
				cfg.Store.Close()
			}
			return nil
		},
	}
}

func initLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(logging.NewCLIHandler(os.Stderr, level)))
}

func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(os.Stdout).Encode(v)
	}
	e := json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
