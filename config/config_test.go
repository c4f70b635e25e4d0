package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppConfig_ServiceToggles(t *testing.T) {
	cfg := AppConfig{Services: "http,worker"}

	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsWorkerEnabled())
	assert.False(t, cfg.IsReaperEnabled())

	cfg.Services = "bogus"
	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsWorkerEnabled())
	assert.False(t, cfg.IsReaperEnabled())
}

func TestAppConfig_DetectDevMode(t *testing.T) {
	t.Run("explicit DEV wins", func(t *testing.T) {
		cfg := AppConfig{IsDev: true}
		cfg.detectDevMode()
		assert.True(t, cfg.IsDev)
	})

	t.Run("APP_ENV development", func(t *testing.T) {
		t.Setenv("APP_ENV", "Development")
		cfg := AppConfig{}
		cfg.detectDevMode()
		assert.True(t, cfg.IsDev)
	})

	t.Run("APP_ENV production", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		cfg := AppConfig{}
		cfg.detectDevMode()
		assert.False(t, cfg.IsDev)
	})
}
