// Package config defines the engine's runtime configuration and loads it
// with viper: tracker backend selection, runner selection, summary sink
// selection, and the status API port, overridable by env var or config
// file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved set of knobs loomctl (internal/cli) reads
// through Load from environment variables (LOOM_ prefix) and an optional
// YAML config file; the config file itself is the only flag (--config).
type Config struct {
	WorkflowDir string `mapstructure:"workflow_dir"`
	DataDir     string `mapstructure:"data_dir"`
	LogLevel    string `mapstructure:"log_level"`

	StatusAPIPort int `mapstructure:"status_api_port"`

	MaxParallelism int `mapstructure:"max_parallelism"`

	Runner     string `mapstructure:"runner"`      // "inline" | "outofprocess"
	WorkerPath string `mapstructure:"worker_path"`  // only used when Runner == "outofprocess"

	Tracker TrackerConfig `mapstructure:"tracker"`
	Summary SummaryConfig `mapstructure:"summary"`
}

// TrackerConfig selects and configures the Tracker(s) a run streams
// snapshots to.
type TrackerConfig struct {
	Backend string `mapstructure:"backend"` // "none" | "redis" | "kafka" | "both"

	RedisAddress  string        `mapstructure:"redis_address"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisTTL      time.Duration `mapstructure:"redis_ttl"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// SummaryConfig selects and configures the SummaryCallback a run reports
// its final Snapshot to.
type SummaryConfig struct {
	Backend string `mapstructure:"backend"` // "none" | "jsonfile" | "postgres" | "mysql"

	JSONDir     string `mapstructure:"json_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	MySQLDSN    string `mapstructure:"mysql_dsn"`
}

// Default returns the configuration used when no flag, env var, or config
// file overrides a field.
func Default() *Config {
	return &Config{
		WorkflowDir:    "./workflows",
		DataDir:        "./data",
		LogLevel:       "info",
		StatusAPIPort:  8000,
		MaxParallelism: 0,
		Runner:         "inline",
		Tracker: TrackerConfig{
			Backend:  "none",
			RedisTTL: time.Hour,
		},
		Summary: SummaryConfig{
			Backend: "none",
			JSONDir: "./data/runs",
		},
	}
}

// Load reads configuration from cfgFile (if non-empty), environment
// variables prefixed LOOM_, and falls back to Default for anything unset.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	cfg := Default()

	v.SetEnvPrefix("loom")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".loom")
		_ = v.ReadInConfig() // absent config file is not an error
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
