package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Match    MatchConfig    `yaml:"match" mapstructure:"match"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Price    PriceConfig    `yaml:"price" mapstructure:"price"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Feed     FeedConfig     `yaml:"feed" mapstructure:"feed"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MatchConfig tunes the matching engine.
type MatchConfig struct {
	PriceToleranceAbs float64 `yaml:"price_tolerance_abs" mapstructure:"price_tolerance_abs"`
	PriceTolerancePct float64 `yaml:"price_tolerance_pct" mapstructure:"price_tolerance_pct"`
	CandidateBandPct  float64 `yaml:"candidate_band_pct" mapstructure:"candidate_band_pct"`
}

// ClassifyConfig tunes classification thresholds.
type ClassifyConfig struct {
	UpperThreshold     float64 `yaml:"upper_threshold" mapstructure:"upper_threshold"`
	LowerThreshold     float64 `yaml:"lower_threshold" mapstructure:"lower_threshold"`
	BootstrapMinSample int     `yaml:"bootstrap_min_samples" mapstructure:"bootstrap_min_samples"`
}

// PriceConfig tunes price change detection.
type PriceConfig struct {
	MinDelta          float64 `yaml:"min_delta" mapstructure:"min_delta"`
	HighPriorityDelta float64 `yaml:"high_priority_delta" mapstructure:"high_priority_delta"`
}

// FetchConfig configures the HTTP catalog fetcher.
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// FeedConfig configures retailer feed ingestion over FTP.
type FeedConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Path     string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CATALOGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("match.price_tolerance_abs", 1.00)
	v.SetDefault("match.price_tolerance_pct", 0.05)
	v.SetDefault("match.candidate_band_pct", 0.50)
	v.SetDefault("classify.upper_threshold", 0.85)
	v.SetDefault("classify.lower_threshold", 0.70)
	v.SetDefault("classify.bootstrap_min_samples", 10)
	v.SetDefault("price.min_delta", 0.01)
	v.SetDefault("price.high_priority_delta", 50.00)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.requests_per_second", 2)
	v.SetDefault("fetch.burst", 4)
	v.SetDefault("fetch.user_agent", "catalogwatch/1.0")
	v.SetDefault("feed.path", "/")
	v.SetDefault("server.port", 8080)
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
