package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hcmut-tools/lmscrawl/internal/config"
	"github.com/hcmut-tools/lmscrawl/internal/crawler"
	"github.com/hcmut-tools/lmscrawl/internal/database"
	"github.com/hcmut-tools/lmscrawl/internal/fetch"
	"github.com/hcmut-tools/lmscrawl/internal/htmlstore"
	"github.com/hcmut-tools/lmscrawl/internal/log"
	"github.com/hcmut-tools/lmscrawl/internal/report"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl and archive the LMS portal",
		Long: `Crawl discovers the semester catalog, then follows links through
semester pages, course pages, and user profiles, archiving each page once.
Re-running a crawl reuses every archived page instead of re-fetching it,
so an interrupted run can simply be restarted.

Two modes are available:

Normal mode (default) follows links:
  semesters -> courses -> users -> additional courses

Brute-force mode enumerates a numeric profile-id range instead of following
links, in checkpointed batches. It is selected by --max-user-id:

Examples:
  # Normal crawl with 8 parallel workers
  lmscrawl crawl --cookie "$COOKIE" --workers 8 --output ./archive

  # Brute-force profiles 1..50000, checkpoint every 200
  lmscrawl crawl --min-user-id 1 --max-user-id 50000 --batch-size 200

  # Read the credential from the environment
  LMSCRAWL_COOKIE="MoodleSession=..." lmscrawl crawl

Configuration file (.lmscrawl) example:
  base_url: https://lms.hcmut.edu.vn
  workers: 4
  output_dir: ./archive
  batch_size: 200`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	// Portal access flags
	cmd.Flags().StringP("base-url", "u", config.DefaultBaseURL, "Base URL of the LMS portal")
	cmd.Flags().StringP("cookie", "k", "", "Session cookie (or set LMSCRAWL_COOKIE)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout per fetch attempt")

	// Crawl behavior flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers, "Bounded worker-pool size per stage")
	cmd.Flags().StringP("output", "o", ".", "Output directory for the page archive and JSON collections")

	// Brute-force mode flags
	cmd.Flags().Int("min-user-id", 0, "Lowest profile id in brute-force mode")
	cmd.Flags().Int("max-user-id", 0, "Highest profile id; a positive value selects brute-force mode")
	cmd.Flags().IntP("batch-size", "b", config.DefaultBatchSize, "Chunk size for batched brute-force stages")
	cmd.Flags().String("seed-file", config.DefaultSeedFile, "Newline-delimited extra user ids for brute-force mode")

	// Bookkeeping flags
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory for the fetch-history database")
	cmd.Flags().Bool("no-db", false, "Disable fetch-history recording")
	cmd.Flags().StringP("report", "r", "", "Write a markdown crawl summary to this file")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .lmscrawl in current or home directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Cancel the run on SIGINT/SIGTERM. Checkpointed work stays durable;
	// in-flight batch work is lost.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runCrawl(ctx, cfg, logger)
}

// runCrawl wires the crawl components and executes the run.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := htmlstore.New(cfg.OutputDir)
	if err != nil {
		return err
	}

	fetcher, err := fetch.NewClient(cfg.BaseURL, fetch.Options{
		Cookie:  cfg.Cookie,
		Timeout: cfg.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	var opts []crawler.Option
	if cfg.DBDir != "" {
		fetchLog, err := database.Open(cfg.DBDir)
		if err != nil {
			// History is an aid, not a dependency of the crawl.
			logger.Warn("fetch-history database unavailable, continuing without it", "error", err)
		} else {
			defer fetchLog.Close() //nolint:errcheck // Best-effort close on shutdown
			logger.Info("recording fetch history", "path", fetchLog.Path())
			opts = append(opts, crawler.WithFetchRecorder(fetchLog))
		}
	}

	orch := crawler.New(cfg, fetcher, store, logger, opts...)
	runErr := orch.Run(ctx)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		logger.Info("crawl cancelled; checkpointed work is preserved")
		runErr = nil
	}

	if cfg.ReportFile != "" {
		if err := writeReport(cfg.ReportFile, orch.Stats()); err != nil {
			logger.Error("write crawl report", "path", cfg.ReportFile, "error", err)
		} else {
			logger.Info("crawl report written", "path", cfg.ReportFile)
		}
	}

	return runErr
}

// writeReport renders the markdown crawl summary to path, creating parent
// directories as needed.
func writeReport(path string, stats crawler.Stats) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}
	f, err := os.Create(path) //nolint:gosec // User-provided report path is intentional
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // Close error is returned below via Sync-less write semantics

	return report.NewMarkdownWriter(f).Write(stats)
}

// buildConfig creates a Config from cobra command flags, the optional config
// file, and the environment. Precedence: explicit flag > environment (for
// the cookie) > config file > default.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	configPathFlag, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Config file first, so flags can override it.
	configPath := config.FindConfigFile(configPathFlag)
	if configPath != "" {
		if err := config.LoadFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else if configPathFlag != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPathFlag)
	}

	if envCookie := config.CookieFromEnv(); envCookie != "" {
		cfg.Cookie = envCookie
	}

	flagString(cmd, "base-url", &cfg.BaseURL)
	flagString(cmd, "cookie", &cfg.Cookie)
	flagString(cmd, "output", &cfg.OutputDir)
	flagString(cmd, "seed-file", &cfg.SeedFile)
	flagString(cmd, "db-dir", &cfg.DBDir)
	flagString(cmd, "report", &cfg.ReportFile)
	flagInt(cmd, "workers", &cfg.Workers)
	flagInt(cmd, "batch-size", &cfg.BatchSize)
	flagInt(cmd, "min-user-id", &cfg.MinUserID)
	flagInt(cmd, "max-user-id", &cfg.MaxUserID)
	flagDuration(cmd, "timeout", &cfg.Timeout)

	if noDB, err := cmd.Flags().GetBool("no-db"); err == nil && noDB {
		cfg.DBDir = ""
	}

	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// flagString copies a string flag into dst when the user set it explicitly.
func flagString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		if v, err := cmd.Flags().GetString(name); err == nil {
			*dst = v
		}
	}
}

// flagInt copies an int flag into dst when the user set it explicitly.
func flagInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		if v, err := cmd.Flags().GetInt(name); err == nil {
			*dst = v
		}
	}
}

// flagDuration copies a duration flag into dst when the user set it explicitly.
func flagDuration(cmd *cobra.Command, name string, dst *time.Duration) {
	if cmd.Flags().Changed(name) {
		if v, err := cmd.Flags().GetDuration(name); err == nil {
			*dst = v
		}
	}
}
