package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/railsched/core/timeline"
)

// Config holds the separation buffers used by the baseline builder. A nil
// buffer takes its default; zero disables it.
type Config struct {
	TrackBufferMinutes    *int `json:"track_buffer_minutes" yaml:"track_buffer_minutes" koanf:"track_buffer_minutes"`
	PlatformBufferMinutes *int `json:"platform_buffer_minutes" yaml:"platform_buffer_minutes" koanf:"platform_buffer_minutes"`
}

// Minutes returns a buffer value for Config.
func Minutes(v int) *int { return &v }

// SetDefaults applies the standard 15 and 5 minute buffers to unset fields.
func (c *Config) SetDefaults() {
	if c.TrackBufferMinutes == nil {
		c.TrackBufferMinutes = Minutes(int(timeline.DefaultTrackBuffer / time.Minute))
	}
	if c.PlatformBufferMinutes == nil {
		c.PlatformBufferMinutes = Minutes(int(timeline.DefaultPlatformBuffer / time.Minute))
	}
}

func (c Config) Validate() error {
	if (c.TrackBufferMinutes != nil && *c.TrackBufferMinutes < 0) ||
		(c.PlatformBufferMinutes != nil && *c.PlatformBufferMinutes < 0) {
		return errors.New("scheduler buffers must not be negative")
	}
	return nil
}

// Buffers converts the configured minutes. Unset buffers take their defaults.
func (c Config) Buffers() Buffers {
	return Buffers{
		Track:    minutesOr(c.TrackBufferMinutes, timeline.DefaultTrackBuffer),
		Platform: minutesOr(c.PlatformBufferMinutes, timeline.DefaultPlatformBuffer),
	}
}

func minutesOr(v *int, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * time.Minute
}

// LoadConfig loads Config from a JSON or YAML file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var cfg Config
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}

// DecodeConfig reads from r to decode a Config.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	var cfg Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, err
		}
	case "json":
		dec := json.NewDecoder(r)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported format: %s", format)
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}
