package config

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Addr:       ":8080",
			DevMode:    false,
			UploadsDir: "public/uploads",
		},
		Storage: StorageConfig{
			DBPath: "shadesupport.db",
		},
		Fallback: FallbackConfig{
			Path:           "temp-tickets.json",
			RetentionHours: 72,
		},
		Client: ClientConfig{
			Retries:      1,
			RetryDelayMS: 2000,
		},
	}
}
