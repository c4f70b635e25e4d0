package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/assesskit/reportgen/config"
	"github.com/assesskit/reportgen/internal/bootstrap"
	"github.com/assesskit/reportgen/internal/data"
	"github.com/assesskit/reportgen/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultCommandTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"stats": {
			name:        "stats",
			description: "Show report job counts per status",
			run:         runStats,
		},
		"job-status": {
			name:        "job-status",
			description: "Inspect a single report job by id",
			run:         runJobStatus,
		},
		"cleanup": {
			name:        "cleanup",
			description: "Delete terminal report jobs older than N days",
			run:         runCleanup,
		},
		"reap": {
			name:        "reap",
			description: "Run one reaper sweep (fail expired leases, purge old jobs)",
			run:         runReap,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: reportgen-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(os.Stdout, "  %-12s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

// withDatabase runs fn against a connected database with signal handling
// and a command timeout, closing the connection afterwards.
func withDatabase(cmdCtx *commandContext, timeout time.Duration, fn func(ctx context.Context, db *sql.DB) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	return fn(ctx, db)
}

func newJobService(cmdCtx *commandContext, db *sql.DB) (*service.JobService, error) {
	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	return service.NewJobService(service.JobServiceOptions{
		Repo:         repo,
		Reaper:       repo,
		Workflow:     data.NewWorkflowRepo(db),
		DefaultLease: cmdCtx.Config.Worker.JobLease,
		Logger:       cmdCtx.Logger,
	})
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		svc, err := newJobService(cmdCtx, db)
		if err != nil {
			return err
		}
		stats, err := svc.Stats(ctx)
		if err != nil {
			return fmt.Errorf("query job stats: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		rows := []struct {
			label string
			count int
		}{
			{"pending", stats.Pending},
			{"in_progress", stats.InProgress},
			{"completed", stats.Completed},
			{"failed", stats.Failed},
			{"cancelled", stats.Cancelled},
		}
		for _, row := range rows {
			if err = writef(tw, "%s\t%d\n", row.label, row.count); err != nil {
				return err
			}
		}
		return tw.Flush()
	})
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("job-status", flag.ContinueOnError)
	jobID := fs.String("id", "", "report job id (required)")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("missing required flag -id")
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		svc, err := newJobService(cmdCtx, db)
		if err != nil {
			return err
		}
		status, err := svc.Status(ctx, *jobID)
		if err != nil {
			return fmt.Errorf("query job %s: %w", *jobID, err)
		}

		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("encode job status: %w", err)
		}
		return writef(os.Stdout, "%s\n", out)
	})
}

func runCleanup(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	days := fs.Int("days", 30, "delete terminal jobs older than this many days")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		svc, err := newJobService(cmdCtx, db)
		if err != nil {
			return err
		}
		deleted, err := svc.Cleanup(ctx, *days)
		if err != nil {
			return fmt.Errorf("cleanup jobs: %w", err)
		}
		cmdCtx.Logger.Info("cleanup finished", "days", *days, "deleted", deleted)
		return nil
	})
}

func runReap(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reap", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
		reaper, err := service.NewReaperService(service.ReaperServiceOptions{
			Repo:   repo,
			Config: cmdCtx.Config.Reaper,
			Logger: cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		if err = reaper.RunCleanup(ctx); err != nil {
			return fmt.Errorf("reaper sweep: %w", err)
		}
		cmdCtx.Logger.Info("reaper sweep finished")
		return nil
	})
}
