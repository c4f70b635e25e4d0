package config

import (
	"strings"
	"time"
)

// RendererConfig contains the external section renderer endpoint configuration.
type RendererConfig struct {
	// BaseURL is the base URL of the rendering engine.
	BaseURL string `env:"RENDERER_BASE_URL" envDefault:"http://localhost:9090"`

	// Timeout bounds a single render call.
	Timeout time.Duration `env:"RENDERER_TIMEOUT" envDefault:"60s"`
}

// Sanitize applies guardrails to renderer configuration values.
func (r *RendererConfig) Sanitize() {
	r.BaseURL = strings.TrimSpace(r.BaseURL)
	if r.Timeout <= 0 {
		r.Timeout = 60 * time.Second
	}
}
