package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when MATELOCK_CONFIG is not set
const DefaultPath = "config.yaml"

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AWS      AWSConfig      `yaml:"aws"`
	APNs     APNsConfig     `yaml:"apns"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Rules    RulesConfig    `yaml:"rules"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration. URL wins over the discrete fields.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds the change feed connection. Empty URL keeps change
// notifications inside the process.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AWSConfig holds the archive bucket configuration. Empty bucket disables it.
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// APNsConfig holds Apple push credentials. Empty key file disables push.
type APNsConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// RulesConfig holds the timing rules of pauses, enforcement and joining
type RulesConfig struct {
	PauseMinutes           int     `yaml:"pause_minutes"`
	EnforcementTickSeconds int     `yaml:"enforcement_tick_seconds"`
	PausePollSeconds       int     `yaml:"pause_poll_seconds"`
	JoinRatePerMinute      float64 `yaml:"join_rate_per_minute"`
	JoinBurst              int     `yaml:"join_burst"`
}

// PauseDuration is how long an approved break lasts
func (r RulesConfig) PauseDuration() time.Duration {
	return time.Duration(r.PauseMinutes) * time.Minute
}

// EnforcementTick is the periodic re-evaluation interval
func (r RulesConfig) EnforcementTick() time.Duration {
	return time.Duration(r.EnforcementTickSeconds) * time.Second
}

// PausePoll is the pause expiry check interval
func (r RulesConfig) PausePoll() time.Duration {
	return time.Duration(r.PausePollSeconds) * time.Second
}

// Path returns the config file location
func Path() string {
	if p := os.Getenv("MATELOCK_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads configuration from a YAML file, then applies .env and
// MATELOCK_* environment overrides. A missing file leaves the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for unset values
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "matelock",
			SSLMode: "disable",
		},
		AWS: AWSConfig{Region: "us-east-1"},
		Log: LogConfig{Level: "info"},
		Rules: RulesConfig{
			PauseMinutes:           5,
			EnforcementTickSeconds: 60,
			PausePollSeconds:       5,
			JoinRatePerMinute:      10,
			JoinBurst:              5,
		},
	}
}

func (c *Config) applyEnv() error {
	c.Server.Host = getenvDefault("MATELOCK_HOST", c.Server.Host)
	c.Database.URL = getenvDefault("MATELOCK_DATABASE_URL", c.Database.URL)
	c.Database.Password = getenvDefault("MATELOCK_DATABASE_PASSWORD", c.Database.Password)
	c.Redis.URL = getenvDefault("MATELOCK_REDIS_URL", c.Redis.URL)
	c.AWS.S3Bucket = getenvDefault("MATELOCK_S3_BUCKET", c.AWS.S3Bucket)
	c.AWS.AccessKey = getenvDefault("MATELOCK_AWS_ACCESS_KEY", c.AWS.AccessKey)
	c.AWS.SecretKey = getenvDefault("MATELOCK_AWS_SECRET_KEY", c.AWS.SecretKey)
	c.AWS.Endpoint = getenvDefault("MATELOCK_S3_ENDPOINT", c.AWS.Endpoint)
	c.APNs.KeyFile = getenvDefault("MATELOCK_APNS_KEY_FILE", c.APNs.KeyFile)
	c.APNs.Production = getenvBool("MATELOCK_APNS_PRODUCTION", c.APNs.Production)
	c.JWT.Secret = getenvDefault("MATELOCK_JWT_SECRET", c.JWT.Secret)
	c.Log.Level = getenvDefault("MATELOCK_LOG_LEVEL", c.Log.Level)

	port, err := getenvInt("MATELOCK_PORT", c.Server.Port)
	if err != nil {
		return err
	}
	c.Server.Port = port
	return nil
}

// Validate checks the values the server cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Rules.PauseMinutes <= 0 {
		return fmt.Errorf("rules.pause_minutes must be positive")
	}
	if c.Rules.EnforcementTickSeconds <= 0 || c.Rules.PausePollSeconds <= 0 {
		return fmt.Errorf("enforcement intervals must be positive")
	}
	if c.Rules.JoinRatePerMinute <= 0 || c.Rules.JoinBurst <= 0 {
		return fmt.Errorf("join rate limit must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
