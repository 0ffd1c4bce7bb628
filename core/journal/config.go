package journal

import "fmt"

// Config defines the journal backend and rotation.
type Config struct {
	// Backend selects the store type: "none", "jsonl" or "sqlite".
	Backend string `json:"backend" yaml:"backend" koanf:"backend"`
	// Path is the file location of the store.
	Path string `json:"path" yaml:"path" koanf:"path"`
	// MaxSizeMB enables rotation of the jsonl backend when positive.
	MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb" koanf:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups" yaml:"max_backups" koanf:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days" yaml:"max_age_days" koanf:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.Path == "" {
		switch c.Backend {
		case "jsonl":
			c.Path = "railsched-journal.jsonl"
		case "sqlite":
			c.Path = "railsched-journal.db"
		}
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "none":
		return nil
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("unknown journal backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("journal path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("journal rotation settings must not be negative")
	}
	return nil
}

// Open creates the store described by cfg.
func Open(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "jsonl":
		if cfg.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return NewJSONLStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	}
	return NopStore{}, nil
}
