package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/itrack/internal/config"
	"github.com/joescharf/itrack/internal/logging"
	"github.com/joescharf/itrack/internal/output"
	"github.com/joescharf/itrack/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "itrack",
	Short: "Issue tracker backend - REST API, reports and CLI",
	Long: `itrack stores issues in a relational table and serves a small REST API
to list, filter, create, update and delete them, plus grouped counts
for reporting dashboards.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/itrack/config.yaml)")
}

func initConfig() {
	dir, err := configDirFunc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
		os.Exit(1)
	}

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.BindEnv(viper.GetViper())
	config.SetDefaults(viper.GetViper(), dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config and version run without a database.
}

// loadConfig resolves the typed configuration from viper.
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds the process logger and installs it as slog's default.
func newLogger(cfg config.Config) (*slog.Logger, io.Closer, error) {
	logCfg := cfg.Log
	if verbose {
		logCfg.Level = "debug"
	}
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// openStore opens the store selected by cfg.DB and applies the schema.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	var (
		s   *store.SQLStore
		err error
	)
	switch cfg.DB.Driver {
	case "mysql":
		s, err = store.NewMySQLStore(store.MySQLConfig{
			Host:         cfg.DB.MySQL.Host,
			Port:         cfg.DB.MySQL.Port,
			User:         cfg.DB.MySQL.User,
			Password:     cfg.DB.MySQL.Password,
			Database:     cfg.DB.MySQL.Database,
			MaxOpenConns: cfg.DB.MaxOpenConns,
		}, cfg.Location)
	default:
		s, err = store.NewSQLiteStore(cfg.DB.Path, cfg.Location)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s, err := openStore(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	dataStore = s
	return dataStore, nil
}

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = config.DefaultDir

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
