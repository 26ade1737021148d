package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowvault/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage flowvault configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (FLOWVAULT_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.flowvault.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration after merging all sources.

Sensitive values like credentials will be masked for security.`,
	Run: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".flowvault.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintln(os.Stderr, "Configuration file already exists:", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	exampleConfig := `# flowvault configuration file
#
# This file contains all available configuration options.
# You can also use environment variables prefixed with FLOWVAULT_
# For example: FLOWVAULT_BUCKET, FLOWVAULT_ACCESS_KEY_ID

# Destination storage
storage:
  # Bucket to archive into. Leave empty to archive into local_dir instead.
  bucket: ""

  # Bucket region
  region: "us-east-1"

  # Custom endpoint for S3-compatible storage (MinIO, etc.)
  endpoint: ""

  # Use path-style addressing (required by most S3-compatible servers)
  force_path_style: false

  # Prefix for all object keys
  key_prefix: "flows"

  # Credentials. Prefer 'flowvault auth login' or environment variables
  # over putting them here.
  access_key_id: ""
  secret_access_key: ""

  # Local archive directory, used when no bucket is configured
  local_dir: "./archive"

# Upload behavior
upload:
  # Number of concurrent uploads
  # Range: 1-64
  concurrency: 10

# Retry behavior for downloads and flow listings
retry:
  # Maximum attempts per operation
  max_attempts: 3

  # Jittered delay window between attempts
  min_delay: 1s
  max_delay: 3s

# Pipeline settings
pipeline:
  # JSON file listing the apps to archive
  apps_file: "apps.json"

  # Scratch space for downloads and extraction
  staging_dir: "./staging"

  # Where run progress is recorded
  checkpoint_dir: "./checkpoints"

  # Per-attempt archive download timeout
  download_timeout: 60s

  # Jittered pause between apps
  app_delay_min: 10s
  app_delay_max: 15s

  # Archive at most N flows per app (0 = no limit)
  flow_limit: 0

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log file path (optional)
  # Leave empty to log to stderr only
  file: ""
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to create configuration file:", err)
		os.Exit(1)
	}

	fmt.Println("Configuration file created:", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the configuration file and set your bucket or local directory")
	fmt.Println("2. Store credentials with 'flowvault auth login'")
	fmt.Println("3. Start archiving with 'flowvault run'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// Create a sanitized version for display
	displayCfg := *cfg

	if displayCfg.Storage.AccessKeyID != "" {
		displayCfg.Storage.AccessKeyID = maskValue(displayCfg.Storage.AccessKeyID)
	}
	if displayCfg.Storage.SecretAccessKey != "" {
		displayCfg.Storage.SecretAccessKey = maskValue(displayCfg.Storage.SecretAccessKey)
	}

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to format configuration:", err)
		os.Exit(1)
	}

	fmt.Println("Current configuration:")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (FLOWVAULT_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (not specified)")
	}
	fmt.Println("4. Default values")
}

func maskValue(s string) string {
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "***"
}
