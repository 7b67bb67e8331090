package config

// Config represents the full service configuration
type Config struct {
	Version string `yaml:"version" mapstructure:"version"`

	// Server configuration
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Fallback (temporary ticket) store configuration
	Fallback FallbackConfig `yaml:"fallback" mapstructure:"fallback"`

	// API client tuning
	Client ClientConfig `yaml:"client" mapstructure:"client"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Addr       string `yaml:"addr" mapstructure:"addr"`
	DevMode    bool   `yaml:"dev_mode" mapstructure:"dev_mode"`
	UploadsDir string `yaml:"uploads_dir" mapstructure:"uploads_dir"`
}

// StorageConfig configures the relational store
type StorageConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// FallbackConfig configures the flat-file temporary ticket store
type FallbackConfig struct {
	Path string `yaml:"path" mapstructure:"path"`

	// RetentionHours prunes temporary tickets older than this on save.
	// 0 keeps everything.
	RetentionHours int `yaml:"retention_hours" mapstructure:"retention_hours"`
}

// ClientConfig tunes the fetch controller defaults
type ClientConfig struct {
	Retries      int `yaml:"retries" mapstructure:"retries"`
	RetryDelayMS int `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
}
