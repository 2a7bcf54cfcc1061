// Package config turns viper settings into the typed configuration that is
// threaded into the store, the API server and the logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Embed the tz database so the default zone resolves on minimal hosts.
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// DefaultTimezone is the civil zone issue timestamps are recorded in.
const DefaultTimezone = "Asia/Kolkata"

// Config is the full service configuration.
type Config struct {
	DB       DBConfig     `mapstructure:"db"`
	Server   ServerConfig `mapstructure:"server"`
	Log      LogConfig    `mapstructure:"log"`
	Timezone string       `mapstructure:"timezone"`

	// Location is resolved from Timezone by Load.
	Location *time.Location `mapstructure:"-"`
}

// DBConfig selects and configures the issue store.
type DBConfig struct {
	Driver       string      `mapstructure:"driver"`
	Path         string      `mapstructure:"path"`
	MaxOpenConns int         `mapstructure:"max_open_conns"`
	MySQL        MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ListenAddr returns host:port for net/http.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Addr, s.Port)
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DefaultDir returns ~/.config/itrack.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "itrack"), nil
}

// SetDefaults registers every key with its default value on v.
func SetDefaults(v *viper.Viper, dir string) {
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", filepath.Join(dir, "itrack.db"))
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.mysql.host", "127.0.0.1")
	v.SetDefault("db.mysql.port", 3306)
	v.SetDefault("db.mysql.user", "root")
	v.SetDefault("db.mysql.password", "")
	v.SetDefault("db.mysql.database", "issue_tracker")
	v.SetDefault("server.addr", "")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// BindEnv makes every key overridable as ITRACK_<KEY> with dots as underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("ITRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	switch cfg.DB.Driver {
	case "sqlite", "sqlite3":
		cfg.DB.Driver = "sqlite"
		if cfg.DB.Path == "" {
			return Config{}, errors.New("db.path is required for the sqlite driver")
		}
	case "mysql":
		if cfg.DB.MySQL.Host == "" || cfg.DB.MySQL.Database == "" {
			return Config{}, errors.New("db.mysql.host and db.mysql.database are required for the mysql driver")
		}
	default:
		return Config{}, fmt.Errorf("unsupported db.driver %q (use: sqlite, mysql)", cfg.DB.Driver)
	}

	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}
