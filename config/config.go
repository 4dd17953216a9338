package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingStoreConfig means the store connection settings are absent.
var ErrMissingStoreConfig = errors.New("store not configured: MONGO_URI is required")

type Config struct {
	MongoURI      string
	MongoDatabase string
	NATSUrl       string
	HTTPAddr      string
	LogLevel      string
	Environment   string

	HTTPTimeout time.Duration
	RunTimeout  time.Duration

	SchedulerEnabled    bool
	IncrementalSchedule string
	FullSchedule        string

	SubscriberRole string

	Sources map[string]SourceConfig
}

// SourceConfig tunes planning and politeness for one source. Fields not
// relevant to a source's mode are ignored.
type SourceConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FullPages        int           `yaml:"full_pages"`
	IncrementalPages int           `yaml:"incremental_pages"`
	PagesPerFull     int           `yaml:"pages_per_full"`
	PageCap          int           `yaml:"page_cap"`
	Exhaustive       bool          `yaml:"exhaustive"`
	FullDelay        time.Duration `yaml:"full_delay"`
	IncrementalDelay time.Duration `yaml:"incremental_delay"`
}

// DefaultSources returns the built-in tuning for every known source slug.
func DefaultSources() map[string]SourceConfig {
	return map[string]SourceConfig{
		"allforyoung": {
			Enabled:          true,
			FullPages:        10,
			IncrementalPages: 3,
			FullDelay:        time.Second,
			IncrementalDelay: time.Second,
		},
		"wevity": {
			Enabled:          true,
			IncrementalPages: 3,
			PagesPerFull:     2,
			PageCap:          100,
			FullDelay:        400 * time.Millisecond,
			IncrementalDelay: 1200 * time.Millisecond,
		},
	}
}

// Load reads .env.local / .env (when present), the environment and the
// optional SOURCES_FILE. It does not validate; call Validate for that.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{
		MongoURI:            getEnv("MONGO_URI", ""),
		MongoDatabase:       getEnv("MONGO_DATABASE", "allround"),
		NATSUrl:             getEnv("NATS_URL", ""),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Environment:         getEnv("APP_ENV", "production"),
		HTTPTimeout:         getDurationEnv("HTTP_TIMEOUT", "15s"),
		RunTimeout:          getDurationEnv("RUN_TIMEOUT", "5m"),
		SchedulerEnabled:    getBoolEnv("SCHEDULER_ENABLED", false),
		IncrementalSchedule: getEnv("INCREMENTAL_SCHEDULE", "*/30 * * * *"),
		FullSchedule:        getEnv("FULL_SCHEDULE", "0 */4 * * *"),
		SubscriberRole:      getEnv("SUBSCRIBER_ROLE", "member"),
		Sources:             DefaultSources(),
	}

	if path := os.Getenv("SOURCES_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sources file %s: %w", path, err)
		}
		if err := applySourceOverrides(cfg.Sources, data); err != nil {
			return nil, fmt.Errorf("parse sources file %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate reports configuration that makes crawling impossible.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return ErrMissingStoreConfig
	}
	return nil
}

// applySourceOverrides decodes a YAML mapping of slug -> settings on top of
// the defaults, so a file only needs the keys it changes.
func applySourceOverrides(sources map[string]SourceConfig, data []byte) error {
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return err
	}
	for slug, node := range nodes {
		sc := sources[slug]
		if err := node.Decode(&sc); err != nil {
			return fmt.Errorf("source %s: %w", slug, err)
		}
		sources[slug] = sc
	}
	return nil
}

func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
