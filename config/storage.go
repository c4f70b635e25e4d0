package config

import (
	"strings"
	"time"
)

// StorageConfig contains artifact object storage configuration.
type StorageConfig struct {
	// Endpoint is the host:port of the S3-compatible storage.
	Endpoint string `env:"ENDPOINT" envDefault:"localhost:9000"`

	AccessKey string `env:"ACCESS_KEY" envDefault:""`
	SecretKey string `env:"SECRET_KEY" envDefault:""`

	// Bucket is the bucket that receives combined report artifacts.
	Bucket string `env:"BUCKET" envDefault:"reports"`

	UseSSL bool `env:"USE_SSL" envDefault:"false"`

	// KeyPrefix namespaces artifact object keys inside the bucket.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"reports"`

	// LinkExpiry is the lifetime of presigned download links.
	LinkExpiry time.Duration `env:"LINK_EXPIRY" envDefault:"168h"` // 7 days
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Bucket = strings.TrimSpace(s.Bucket)
	s.KeyPrefix = strings.Trim(strings.TrimSpace(s.KeyPrefix), "/")
	if s.LinkExpiry <= 0 {
		s.LinkExpiry = 168 * time.Hour
	}
}
