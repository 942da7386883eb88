package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsTopics/internal/config"
	"github.com/TobiSchelling/NewsTopics/internal/database"
	"github.com/TobiSchelling/NewsTopics/internal/llm"
	"github.com/TobiSchelling/NewsTopics/internal/logging"
	"github.com/TobiSchelling/NewsTopics/internal/pipeline"
	"github.com/TobiSchelling/NewsTopics/internal/query"
	"github.com/TobiSchelling/NewsTopics/internal/report"
	"github.com/TobiSchelling/NewsTopics/internal/schedule"
	"github.com/TobiSchelling/NewsTopics/internal/server"
)

var version = "dev"

var (
	verbose    bool
	jsonOutput bool
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newstopics",
	Short:   "Daily news topic analysis",
	Long:    "newstopics collects the last day of news for a set of search terms, groups articles into topics, and answers questions about topics over time.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = logging.New("info", "text")
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger = logging.New(level, cfg.Logging.Format)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON envelopes")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(datesCmd)
	rootCmd.AddCommand(articlesCmd)
	rootCmd.AddCommand(keywordsCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(reportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newstopics", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newstopics/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set search terms, then export NAVER_CLIENT_ID and NAVER_CLIENT_SECRET.")
		return nil
	},
}

// --- run command ---

var (
	dryRun        bool
	runRetries    int
	daemonRetries int
	runAt         string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once: collect -> fetch -> preprocess -> model -> persist",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.FromConfig(cfg, db, logger)
		if err != nil {
			return err
		}

		at := time.Now()
		if runAt != "" {
			at, err = time.Parse(time.RFC3339, runAt)
			if err != nil {
				return fmt.Errorf("--at must be RFC3339, e.g. 2024-06-10T09:00:00+09:00: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var (
			result *pipeline.Result
			runErr error
		)
		if dryRun {
			result = pipe.DryRun(ctx, at)
		} else {
			result, runErr = pipe.RunWithRetry(ctx, at, runRetries)
		}

		printSteps(result)
		if runErr != nil {
			return runErr
		}
		switch {
		case dryRun:
		case result.Skipped:
			fmt.Println("\nNothing to analyze in this window.")
		default:
			fmt.Printf("\nRun %s complete. Try 'newstopics report --date %s'.\n",
				result.RunID, database.AnalysisDay(result.AnalysisDate))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Collect and preprocess without modeling or writing")
	runCmd.Flags().IntVar(&runRetries, "retries", 1, "Attempts when persisting fails")
	runCmd.Flags().StringVar(&runAt, "at", "", "Anchor the window at this RFC3339 time instead of now")
}

func printSteps(r *pipeline.Result) {
	if r == nil {
		return
	}
	fmt.Println(titleStyle.Render("Run " + database.FormatAnalysisDate(r.AnalysisDate)))
	for i, step := range r.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(r.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  %s %v\n", errorStyle.Render("Error:"), step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- daemon command ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pipeline on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.FromConfig(cfg, db, logger)
		if err != nil {
			return err
		}

		loc, err := time.LoadLocation(cfg.Schedule.Timezone)
		if err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
		sched, err := schedule.New(cfg.Schedule.Cron, loc, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Scheduled %q (%s). Next run: %s\n", cfg.Schedule.Cron, loc,
			sched.Next(time.Now()).Format(time.RFC3339))
		fmt.Println("Press Ctrl+C to stop")
		return sched.Run(ctx, func(ctx context.Context, trigger time.Time) {
			if _, err := pipe.RunWithRetry(ctx, trigger, daemonRetries); err != nil {
				logger.Error("scheduled run failed", "error", err)
			}
		})
	},
}

func init() {
	daemonCmd.Flags().IntVar(&daemonRetries, "retries", 3, "Attempts per scheduled run when persisting fails")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		svc, err := newQueryService(db)
		if err != nil {
			return err
		}

		opts := server.Options{Pinger: db, Retries: 3}
		if pipe, err := pipeline.FromConfig(cfg, db, logger); err != nil {
			logger.Warn("on-demand runs disabled", "error", err)
		} else {
			opts.Runner = pipe
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srv := server.New(svc, newComposer(db), opts, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// openDB opens the configured store and brings its schema up to date.
func openDB() (*database.DB, error) {
	if cfg.Database.Driver == "postgres" {
		return database.OpenPostgres(cfg.DatabaseDSN())
	}
	return database.Open(cfg.GetDatabasePath())
}

func newQueryService(db *database.DB) (*query.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return query.NewService(db, query.Options{
		TrendMinCount: cfg.Query.TrendMinCount,
		KeywordTopN:   cfg.Query.KeywordTopN,
		Location:      loc,
	}, logger), nil
}

func newComposer(db *database.DB) *report.Composer {
	var provider llm.Provider
	if cfg.Modeling.LLMLabels {
		s := cfg.Summarization
		provider = llm.CreateProvider(s.Provider, s.Model, s.OllamaURL, s.OpenAIModel, s.APIKeyEnv, logger)
	}
	return report.NewComposer(db, provider, logger)
}
