package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. KURA_SERVER_PORT.
const EnvPrefix = "KURA_"

// Config holds all kura configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Schedule   ScheduleConfig   `koanf:"schedule"`
	Memory     MemoryConfig     `koanf:"memory"`
}

type ServerConfig struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	Path         string `koanf:"path"` // empty: store.DefaultDBPath()
	MaxOpenConns int    `koanf:"max_open_conns"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

type ClassifierConfig struct {
	DefaultProject string `koanf:"default_project"`
	PatternsFile   string `koanf:"patterns_file"` // empty: built-in table
}

type ScheduleConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Cron          string        `koanf:"cron"`
	Interval      time.Duration `koanf:"interval"`
	MinConfidence float64       `koanf:"min_confidence"`
	BatchLimit    int           `koanf:"batch_limit"`
}

type MemoryConfig struct {
	MediumTTL      time.Duration         `koanf:"medium_ttl"`
	DedupThreshold float64               `koanf:"dedup_threshold"`
	DefaultPlan    string                `koanf:"default_plan"`
	Plans          map[string]PlanLimits `koanf:"plans"`
}

// PlanLimits overrides one plan's per-tier caps. -1 is unlimited. A nil
// field keeps the built-in limit for that tier.
type PlanLimits struct {
	Short  *int `koanf:"short"`
	Medium *int `koanf:"medium"`
	Long   *int `koanf:"long"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path:         "", // resolved at runtime via store.DefaultDBPath()
			MaxOpenConns: 8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Classifier: ClassifierConfig{
			DefaultProject: "Default",
		},
		Schedule: ScheduleConfig{
			Enabled:       true,
			Cron:          "@every 6h",
			Interval:      30 * 24 * time.Hour,
			MinConfidence: 0.3,
			BatchLimit:    100,
		},
		Memory: MemoryConfig{
			MediumTTL:      30 * 24 * time.Hour,
			DedupThreshold: 0.8,
			DefaultPlan:    "free",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultPath returns ~/.kura/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".kura", "config.yaml"), nil
}

// Load layers configuration, highest precedence first:
//
//  1. KURA_* environment variables (KURA_SCHEDULE_MIN_CONFIDENCE -> schedule.min_confidence)
//  2. the YAML file at path (DefaultPath when empty; a missing file is fine)
//  3. Default()
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps KURA_SECTION_FIELD_NAME to section.field_name: the first
// underscore separates the section, the rest stay in the field name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Validate checks ranges that would otherwise surface as odd runtime behavior.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}
	if strings.TrimSpace(c.Classifier.DefaultProject) == "" {
		return fmt.Errorf("classifier.default_project must not be empty")
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if c.Schedule.MinConfidence < 0 || c.Schedule.MinConfidence > 1 {
		return fmt.Errorf("schedule.min_confidence must be within [0,1]")
	}
	if c.Schedule.BatchLimit <= 0 {
		return fmt.Errorf("schedule.batch_limit must be positive")
	}
	if c.Schedule.Enabled && c.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron is required when the schedule is enabled")
	}
	if c.Memory.MediumTTL <= 0 {
		return fmt.Errorf("memory.medium_ttl must be positive")
	}
	if c.Memory.DedupThreshold <= 0 || c.Memory.DedupThreshold > 1 {
		return fmt.Errorf("memory.dedup_threshold must be within (0,1]")
	}
	for name, p := range c.Memory.Plans {
		for _, v := range []*int{p.Short, p.Medium, p.Long} {
			if v != nil && *v < -1 {
				return fmt.Errorf("memory.plans.%s: limits must be -1, 0 or positive", name)
			}
		}
	}
	return nil
}
