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
	Summarize SummarizeConfig `yaml:"summarize" mapstructure:"summarize"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SummarizeConfig holds engine defaults. CLI flags override them per run.
type SummarizeConfig struct {
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	ErrorPolicy   string `yaml:"error_policy" mapstructure:"error_policy"`
	IncludeNoData bool   `yaml:"include_nodata" mapstructure:"include_nodata"`
	AreaMethod    string `yaml:"area_method" mapstructure:"area_method"`
	FillRule      string `yaml:"fill_rule" mapstructure:"fill_rule"`
}

// StoreConfig configures where result tables are persisted.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxBodyMB   int      `yaml:"max_body_mb" mapstructure:"max_body_mb"`
	Raster      string   `yaml:"raster" mapstructure:"raster"`
	Weights     string   `yaml:"weights" mapstructure:"weights"`
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
	v.SetConfigName("zonal")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ZONAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("summarize.workers", 0)
	v.SetDefault("summarize.error_policy", "strict")
	v.SetDefault("summarize.include_nodata", false)
	v.SetDefault("summarize.area_method", "auto")
	v.SetDefault("summarize.fill_rule", "nonzero")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "zonal.db")
	v.SetDefault("store.table", "zonal_results")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_mb", 16)
	v.SetDefault("server.raster", "")
	v.SetDefault("server.weights", "")
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
	cfg.normalize()

	return &cfg, nil
}

// normalize lowercases the enumerated settings.
func (c *Config) normalize() {
	c.Summarize.ErrorPolicy = strings.ToLower(strings.TrimSpace(c.Summarize.ErrorPolicy))
	c.Summarize.AreaMethod = strings.ToLower(strings.TrimSpace(c.Summarize.AreaMethod))
	c.Summarize.FillRule = strings.ToLower(strings.TrimSpace(c.Summarize.FillRule))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
}

// Validate checks the settings a command mode depends on and reports every
// problem at once. Enumerated settings are lowercased first.
func (c *Config) Validate(mode string) error {
	c.normalize()
	var problems []string

	switch c.Summarize.ErrorPolicy {
	case "strict", "lenient":
	default:
		problems = append(problems, fmt.Sprintf("summarize.error_policy must be strict or lenient, got %q", c.Summarize.ErrorPolicy))
	}
	switch c.Summarize.AreaMethod {
	case "auto", "cartesian", "spherical":
	default:
		problems = append(problems, fmt.Sprintf("summarize.area_method must be auto, cartesian or spherical, got %q", c.Summarize.AreaMethod))
	}
	switch c.Summarize.FillRule {
	case "nonzero", "evenodd":
	default:
		problems = append(problems, fmt.Sprintf("summarize.fill_rule must be nonzero or evenodd, got %q", c.Summarize.FillRule))
	}
	if c.Summarize.Workers < 0 || c.Summarize.Workers > 256 {
		problems = append(problems, "summarize.workers must be between 0 and 256")
	}

	switch mode {
	case "summarize":
	case "store":
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Store.Table == "" {
			problems = append(problems, "store.table is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.Raster == "" {
			problems = append(problems, "server.raster is required")
		}
		if c.Server.MaxBodyMB <= 0 {
			problems = append(problems, "server.max_body_mb must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
