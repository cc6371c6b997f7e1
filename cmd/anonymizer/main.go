package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"eicr-anonymizer/internal/config"
	"eicr-anonymizer/internal/logger"
	"eicr-anonymizer/internal/report"
	"eicr-anonymizer/internal/runner"
)

// Build information. Populated at build-time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile     string
	debugMode   bool
	mappingFile string
	seed        int64
	workers     int
	watchMode   bool
	policyFile  string
	suffix      string
	dataDir     string
	logLevel    string
	noProgress  bool
)

// exitCode carries the outcome of a completed run out of the command so
// deferred cleanup still executes before the process exits.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "eicr-anonymizer [input]",
	Short: "Replace protected health information in eICR documents with realistic fakes",
	Long: `eicr-anonymizer rewrites electronic Initial Case Report (eICR) XML so the
documents stay structurally valid while every name, address, date, identifier
and contact detail is replaced with a consistent fake value. Identical values
map to identical fakes within a run, so cross-references between document
sections survive anonymization.

The input may be a single XML file or a directory of XML files. Anonymized
copies are written next to the originals with a configurable suffix.`,
	Example: `  eicr-anonymizer ./samples/eicr.xml
  eicr-anonymizer --seed 42 --workers 4 ./incoming
  eicr-anonymizer --watch --policy policy.yaml ./incoming`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runAnonymize,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("eicr-anonymizer %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "log original and replacement values and print the mapping table")
	rootCmd.Flags().StringVar(&mappingFile, "mapping-file", "", "write the value mapping JSON to this path (implies --debug)")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "generator seed for reproducible runs (0 picks a random seed)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "parallel document workers (0 uses the CPU count, capped at 8)")
	rootCmd.Flags().BoolVar(&watchMode, "watch", false, "keep watching the input directory for new documents")
	rootCmd.Flags().StringVar(&policyFile, "policy", "", "path to a YAML field policy (defaults to the built-in policy)")
	rootCmd.Flags().StringVar(&suffix, "suffix", "", "output file suffix (default \".anonymized.xml\")")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory of replacement value files overriding the embedded set")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, or error")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

// applyOverrides copies explicitly set command line flags over the loaded
// configuration. Unset flags leave the file and environment values alone.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug.Enabled = debugMode
	}
	if flags.Changed("mapping-file") {
		cfg.Debug.MappingFile = mappingFile
		cfg.Debug.Enabled = true
	}
	if flags.Changed("seed") {
		cfg.Anonymizer.Generator.Seed = seed
	}
	if flags.Changed("workers") {
		cfg.Anonymizer.Workers = workers
	}
	if flags.Changed("watch") {
		cfg.Watch.Enabled = watchMode
	}
	if flags.Changed("policy") {
		cfg.Anonymizer.PolicyFile = policyFile
	}
	if flags.Changed("suffix") {
		cfg.Anonymizer.OutputSuffix = suffix
	}
	if flags.Changed("data-dir") {
		cfg.Anonymizer.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	input := args[0]

	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger
	logConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		logConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	log = log.WithRun(uuid.NewString())

	log.Info("Starting eICR Anonymizer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("input", input),
	)

	if cfg.Watch.Enabled {
		info, err := os.Stat(input)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("watch mode needs a directory input, got file %s", input)
		}
		if err := config.Watch(cfg, func(*config.Config) {
			log.Warn("Configuration file changed, restart to apply")
		}); err != nil {
			log.Warn("Failed to watch configuration file", zap.Error(err))
		}
	}

	// Graceful shutdown: a first signal cancels the run context, in-flight
	// documents finish and the summary still prints.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		log.Warn("Shutdown signal received, finishing in-flight documents", zap.String("signal", sig.String()))
		cancel()
	}()

	// The bar owns stdout, so it only renders on an interactive terminal.
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	disableProgress := noProgress || cfg.Watch.Enabled || !tty
	r, err := runner.New(cfg, log, disableProgress)
	if err != nil {
		return err
	}

	summary, runErr := r.Run(ctx, input)
	if summary == nil {
		return runErr
	}

	report.PrintSummary(summary)

	exitCode = summary.ExitCode()
	if runErr != nil {
		// Interrupted mid-batch, so some documents were never processed.
		exitCode = 1
	} else if cfg.Watch.Enabled {
		if err := r.Watch(ctx, input); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("Watch stopped")
	}

	if cfg.Debug.Enabled {
		mappings := r.Mappings()
		report.PrintMappings(mappings)
		if cfg.Debug.MappingFile != "" {
			if err := report.WriteMappingFile(cfg.Debug.MappingFile, len(summary.Results), mappings); err != nil {
				return err
			}
			log.Info("Mapping file written", zap.String("path", cfg.Debug.MappingFile))
		}
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
	os.Exit(exitCode)
}
