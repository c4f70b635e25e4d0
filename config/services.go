package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the report generation worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains report worker pool configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a report job.
	JobLease time.Duration `env:"WORKER_JOB_LEASE" envDefault:"5m"`

	// JobTimeout is the per-job execution deadline. A job exceeding it is
	// failed with a timeout error.
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"10m"`

	// PollInterval is the fallback poll cadence when no queue wakeups arrive.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"15s"`

	// OnSectionError selects what happens when rendering one section fails.
	// Valid values: abort, omit.
	OnSectionError string `env:"WORKER_ON_SECTION_ERROR" envDefault:"omit"`

	// WorkDir is the base directory for per-job temp directories.
	// Empty means the OS temp dir.
	WorkDir string `env:"WORKER_WORK_DIR" envDefault:""`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.JobLease < 5*time.Second {
		w.JobLease = 5 * time.Second
	}
	if w.JobTimeout < 10*time.Second {
		w.JobTimeout = 10 * time.Second
	}
	if w.PollInterval < time.Second {
		w.PollInterval = time.Second
	}
	switch strings.ToLower(strings.TrimSpace(w.OnSectionError)) {
	case "abort":
		w.OnSectionError = "abort"
	default:
		w.OnSectionError = "omit"
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
