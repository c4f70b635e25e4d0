package config

import "time"

// WebhookConfig contains completion webhook configuration.
type WebhookConfig struct {
	// Enabled toggles webhook delivery entirely. Jobs without a callback
	// URL are always skipped regardless of this flag.
	Enabled bool `env:"WEBHOOK_ENABLED" envDefault:"true"`

	// Timeout bounds the single delivery POST.
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to webhook configuration values.
func (w *WebhookConfig) Sanitize() {
	if w.Timeout <= 0 {
		w.Timeout = 10 * time.Second
	}
}
