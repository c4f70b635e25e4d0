package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"reportgen"`
	Password string `env:"PASSWORD" envDefault:"reportgen"`
	Name     string `env:"NAME"     envDefault:"reportgen"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
}

// CacheConfig contains interpretation cache configuration (Redis-based).
type CacheConfig struct {
	// Enabled toggles the Redis cache in front of the interpretation store.
	Enabled bool `env:"CACHE_ENABLED" envDefault:"true"`

	// InterpretationTTL is the TTL for cached interpretation content.
	InterpretationTTL time.Duration `env:"CACHE_INTERPRETATION_TTL" envDefault:"30m"`
}
