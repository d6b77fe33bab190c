package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Eval      EvalConfig      `yaml:"eval" mapstructure:"eval"`
	Agreement AgreementConfig `yaml:"agreement" mapstructure:"agreement"`
	Cost      CostConfig      `yaml:"cost" mapstructure:"cost"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run database backend.
type StoreConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EvalConfig configures scoring behavior.
type EvalConfig struct {
	MathTolerance float64 `yaml:"math_tolerance" mapstructure:"math_tolerance"`
	Workers       int     `yaml:"workers" mapstructure:"workers"`
	SchemaPath    string  `yaml:"schema_path" mapstructure:"schema_path"`
}

// AgreementConfig configures baseline agreement scoring.
type AgreementConfig struct {
	Baseline  string  `yaml:"baseline" mapstructure:"baseline"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// CostConfig points at an optional pricing override file.
type CostConfig struct {
	RatesPath string `yaml:"rates_path" mapstructure:"rates_path"`
}

// ServerConfig configures the evaluation HTTP server.
type ServerConfig struct {
	Port                int `yaml:"port" mapstructure:"port"`
	ShutdownTimeoutSecs int `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECEIPTEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite_path", "receipt-eval.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("eval.math_tolerance", 0.01)
	v.SetDefault("eval.workers", 4)
	v.SetDefault("eval.schema_path", "")
	v.SetDefault("agreement.baseline", "gpt4o_mini")
	v.SetDefault("agreement.threshold", 0.8)
	v.SetDefault("cost.rates_path", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode. Bounds are
// checked everywhere; store settings are only required by modes that touch it.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Backend {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.backend must be sqlite or postgres, got %q", c.Store.Backend))
	}
	if c.Eval.Workers < 1 || c.Eval.Workers > 64 {
		problems = append(problems, "eval.workers must be between 1 and 64")
	}
	if c.Eval.MathTolerance < 0 {
		problems = append(problems, "eval.math_tolerance must be >= 0")
	}
	if c.Agreement.Threshold < 0 || c.Agreement.Threshold > 1 {
		problems = append(problems, "agreement.threshold must be between 0 and 1")
	}

	switch mode {
	case "evaluate", "agreement", "fixtures":
		// Store access is optional in these modes; checked lazily on --save.
	case "runs":
		problems = append(problems, c.storeProblems()...)
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		problems = append(problems, c.storeProblems()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	switch c.Store.Backend {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres backend"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for the sqlite backend"}
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
