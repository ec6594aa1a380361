package config

import "time"

// DefaultConfig returns this runtime's built-in defaults, merged under
// whatever the user's YAML file supplies (pkg/config/defaults.go's
// registry-of-defaults shape, narrowed to this domain's own fields).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Outbox: OutboxConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    100,
		},
		Quota: QuotaConfig{
			SweepInterval: 5 * time.Minute,
		},
		Session: SessionConfig{
			AbandonSweepInterval: 10 * time.Minute,
			AbandonAfter:         24 * time.Hour,
		},
	}
}
