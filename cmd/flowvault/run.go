package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flowvault/pkg/auth"
	"flowvault/pkg/checkpoint"
	"flowvault/pkg/config"
	"flowvault/pkg/logger"
	"flowvault/pkg/models"
	"flowvault/pkg/scraper"
	"flowvault/pkg/source"
	"flowvault/pkg/staging"
	"flowvault/pkg/storage"
)

var (
	// Run command flags
	appsFile      string
	bucket        string
	keyPrefix     string
	concurrent    int
	maxRetries    int
	flowLimit     int
	stagingDir    string
	checkpointDir string
	accountName   string
	forceRestart  bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Archive the flows of every app in the apps file",
	Long: `Process the apps file end to end: fetch each app's flow listing,
download and extract every flow archive, and upload the results to storage.

Progress is checkpointed after every step. Rerunning the command after an
interruption or a partial failure picks up exactly where the previous run
stopped: completed apps and flows are skipped, and already-uploaded objects
are never transferred again.

If no bucket is configured, results are written to a local directory
(storage.local_dir, default ./archive).`,
	Example: `  # Archive everything in apps.json to the configured bucket
  flowvault run --apps apps.json --bucket my-archive

  # Local dry run without a bucket
  flowvault run --apps apps.json

  # Limit to the first 5 flows per app
  flowvault run --apps apps.json --limit 5

  # Discard previous progress and start over
  flowvault run --apps apps.json --force-restart`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&appsFile, "apps", "a", "", "JSON file listing the apps to archive")
	runCmd.Flags().StringVar(&bucket, "bucket", "", "destination bucket")
	runCmd.Flags().StringVar(&keyPrefix, "key-prefix", "", "object key prefix (default \"flows\")")
	runCmd.Flags().IntVar(&concurrent, "concurrent", 0, "number of concurrent uploads")
	runCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "maximum retry attempts per operation")
	runCmd.Flags().IntVar(&flowLimit, "limit", -1, "archive at most N flows per app (0 = no limit)")
	runCmd.Flags().StringVar(&stagingDir, "staging-dir", "", "local staging directory")
	runCmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "checkpoint directory")
	runCmd.Flags().StringVar(&accountName, "account", "", "use a specific stored credential account")
	runCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard existing checkpoints and start over")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	if err := logger.Initialize(logger.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("flowvault starting")

	if err := resolveCredentials(cfg, log); err != nil {
		return err
	}

	apps, err := models.LoadApps(cfg.Pipeline.AppsFile)
	if err != nil {
		return fmt.Errorf("failed to load apps file: %w", err)
	}
	if len(apps) == 0 {
		log.Warn("apps file is empty, nothing to do")
		return nil
	}

	store, err := buildObjectStore(cfg, log)
	if err != nil {
		return err
	}

	checkpoints, err := checkpoint.NewStore(cfg.Pipeline.CheckpointDir, log)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	if forceRestart {
		log.Warn("force restart requested, discarding previous progress")
		if err := checkpoints.Reset(); err != nil {
			return fmt.Errorf("failed to reset checkpoints: %w", err)
		}
	}

	stagingMgr, err := staging.NewManager(cfg.Pipeline.StagingDir, log)
	if err != nil {
		return fmt.Errorf("failed to prepare staging directory: %w", err)
	}

	flowSource := source.NewClient(cfg.Pipeline.DownloadTimeout, log)
	pipeline := scraper.NewPipeline(cfg, flowSource, store, checkpoints, stagingMgr, log)

	// Interrupts cancel the run cleanly; checkpoints make the next run resume.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx, apps)
	printSummary(summary)
	if err != nil {
		log.WithError(err).Error("run aborted")
		os.Exit(1)
	}
	if summary.Failures() {
		log.Warn("run finished with failures, rerun to retry them")
		os.Exit(1)
	}
	return nil
}

// loadRunConfig merges defaults, config file, environment, and flags.
func loadRunConfig() (*config.Config, error) {
	flags := make(map[string]interface{})
	if appsFile != "" {
		flags["apps"] = appsFile
	}
	if bucket != "" {
		flags["bucket"] = bucket
	}
	if keyPrefix != "" {
		flags["key-prefix"] = keyPrefix
	}
	if concurrent > 0 {
		flags["concurrent"] = concurrent
	}
	if maxRetries > 0 {
		flags["max-retries"] = maxRetries
	}
	if flowLimit >= 0 {
		flags["limit"] = flowLimit
	}
	if stagingDir != "" {
		flags["staging-dir"] = stagingDir
	}
	if checkpointDir != "" {
		flags["checkpoint-dir"] = checkpointDir
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// resolveCredentials fills in storage credentials from the credential
// manager when a bucket is configured and the config carries none.
func resolveCredentials(cfg *config.Config, log logger.Logger) error {
	if cfg.Storage.Bucket == "" {
		return nil
	}
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var account *auth.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
		if err != nil {
			return fmt.Errorf("account %q not found, use 'flowvault auth list' to see stored accounts", accountName)
		}
	} else {
		account, err = manager.RetrieveDefault()
		if err != nil {
			// The SDK falls back to its own credential chain (shared
			// config, instance roles), so missing stored credentials are
			// not fatal here.
			log.Debug("no stored credentials found, relying on SDK credential chain")
			return nil
		}
	}

	cfg.Storage.AccessKeyID = account.AccessKeyID
	cfg.Storage.SecretAccessKey = account.SecretAccessKey
	if account.Region != "" {
		cfg.Storage.Region = account.Region
	}
	log.WithField("account", account.Name).Info("using stored credentials")
	return nil
}

// buildObjectStore picks the storage backend: the bucket when configured,
// the local directory otherwise.
func buildObjectStore(cfg *config.Config, log logger.Logger) (storage.ObjectStore, error) {
	if cfg.Storage.Bucket != "" {
		store, err := storage.NewS3Store(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		log.InfoWithFields("using bucket storage", map[string]interface{}{
			"bucket": cfg.Storage.Bucket,
			"region": cfg.Storage.Region,
		})
		return store, nil
	}

	store, err := storage.NewLocalStore(cfg.Storage.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create local store: %w", err)
	}
	log.InfoWithFields("no bucket configured, archiving locally", map[string]interface{}{
		"dir": cfg.Storage.LocalDir,
	})
	return store, nil
}

func printSummary(s *scraper.Summary) {
	if s == nil {
		return
	}
	fmt.Println()
	fmt.Println("Run summary:")
	fmt.Printf("  Apps:  %d completed, %d failed, %d skipped\n", s.AppsCompleted, s.AppsFailed, s.AppsSkipped)
	fmt.Printf("  Flows: %d completed, %d failed, %d skipped\n", s.FlowsCompleted, s.FlowsFailed, s.FlowsSkipped)
	fmt.Printf("  Elapsed: %s\n", s.Elapsed.Round(10*time.Millisecond))
}
