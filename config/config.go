package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Marketsim  MarketsimConfig  `yaml:"marketsim"`
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type MarketsimConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

type SimulationConfig struct {
	DefaultDrift          float64 `yaml:"default_drift"`
	DefaultVolatility     float64 `yaml:"default_volatility"`
	DefaultJumpIntensity  float64 `yaml:"default_jump_intensity"`
	DefaultJumpMean       float64 `yaml:"default_jump_mean"`
	DefaultJumpVolatility float64 `yaml:"default_jump_volatility"`
	SubSteps              int     `yaml:"sub_steps"`
	EMAWindow             int     `yaml:"ema_window"`
	OpenInterestTarget    float64 `yaml:"open_interest_target"`
	SessionStart          string  `yaml:"session_start"`
	MaxAttempts           int     `yaml:"max_attempts"`
}

type StorageConfig struct {
	Backend string        `yaml:"backend"`
	Local   LocalConfig   `yaml:"local"`
	S3      S3Config      `yaml:"s3"`
	Formats FormatsConfig `yaml:"formats"`
}

type LocalConfig struct {
	Path string `yaml:"path"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type FormatsConfig struct {
	CSV     bool          `yaml:"csv"`
	Parquet ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       5,
			RateBurst:       10,
		},
		Simulation: SimulationConfig{
			DefaultDrift:          0.1,
			DefaultJumpIntensity:  1.0,
			DefaultJumpVolatility: 0.2,
			SubSteps:              10,
			EMAWindow:             30,
			MaxAttempts:           3,
		},
		Storage: StorageConfig{
			Backend: "local",
			Formats: FormatsConfig{CSV: true},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("LOCAL_STORAGE_PATH"); v != "" {
		config.Storage.Local.Path = strings.TrimSpace(v)
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Marketsim.Name == "" {
		return fmt.Errorf("marketsim.name is required")
	}

	if cfg.Marketsim.Version == "" {
		return fmt.Errorf("marketsim.version is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}

	if cfg.Simulation.DefaultDrift < 0 {
		return fmt.Errorf("simulation.default_drift must be non-negative")
	}
	if cfg.Simulation.DefaultVolatility <= 0 {
		return fmt.Errorf("simulation.default_volatility must be greater than 0")
	}
	if cfg.Simulation.DefaultJumpIntensity < 0 {
		return fmt.Errorf("simulation.default_jump_intensity must be non-negative")
	}
	if cfg.Simulation.DefaultJumpVolatility <= 0 {
		return fmt.Errorf("simulation.default_jump_volatility must be greater than 0")
	}
	if cfg.Simulation.SubSteps <= 0 {
		return fmt.Errorf("simulation.sub_steps must be greater than 0")
	}
	if cfg.Simulation.EMAWindow <= 0 {
		return fmt.Errorf("simulation.ema_window must be greater than 0")
	}
	if cfg.Simulation.SessionStart != "" {
		if _, err := time.Parse("2006-01-02 15:04", cfg.Simulation.SessionStart); err != nil {
			return fmt.Errorf("simulation.session_start %q is not in 'YYYY-MM-DD HH:MM' form", cfg.Simulation.SessionStart)
		}
	}

	switch cfg.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("storage.backend %q is not supported", cfg.Storage.Backend)
	}

	if cfg.Storage.Backend == "local" && cfg.Storage.Local.Path == "" {
		return fmt.Errorf("storage.local.path is required when the local backend is selected")
	}

	if cfg.Storage.Backend == "s3" && !cfg.Storage.S3.Enabled {
		return fmt.Errorf("storage.s3.enabled must be true when the s3 backend is selected")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if IsProductionLike(AppEnvironment()) {
			if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
				return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
			}
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if !cfg.Storage.Formats.CSV && !cfg.Storage.Formats.Parquet.Enabled {
		return fmt.Errorf("at least one output format must be enabled")
	}

	return nil
}

// SessionStartTime parses the configured session start, or returns the zero
// time when unset.
func (c *SimulationConfig) SessionStartTime() time.Time {
	if c.SessionStart == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02 15:04", c.SessionStart)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
