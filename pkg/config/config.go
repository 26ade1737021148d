package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the flow archive pipeline
type Config struct {
	// Durable object storage settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Upload worker pool settings
	Upload UploadConfig `yaml:"upload" json:"upload"`

	// Retry and jitter policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Pipeline-wide settings
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// StorageConfig holds object storage configuration. With an empty bucket
// the pipeline falls back to a local filesystem store, so absence of
// explicit configuration never prevents a run.
type StorageConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	KeyPrefix       string `yaml:"key_prefix" json:"key_prefix"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" json:"force_path_style"`
	LocalDir        string `yaml:"local_dir" json:"local_dir"`
}

// UploadConfig holds upload worker pool configuration
type UploadConfig struct {
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// RetryConfig holds the retry bound and the jitter window used for both
// inter-attempt and inter-app delays
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	MinDelay    time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// PipelineConfig holds pipeline-wide settings
type PipelineConfig struct {
	AppsFile        string        `yaml:"apps_file" json:"apps_file"`
	StagingDir      string        `yaml:"staging_dir" json:"staging_dir"`
	CheckpointDir   string        `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	AppDelayMin     time.Duration `yaml:"app_delay_min" json:"app_delay_min"`
	AppDelayMax     time.Duration `yaml:"app_delay_max" json:"app_delay_max"`
	FlowLimit       int           `yaml:"flow_limit" json:"flow_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Region:    "us-east-1",
			KeyPrefix: "flows",
			LocalDir:  "./archive",
		},
		Upload: UploadConfig{
			Concurrency: 10,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			MinDelay:    1 * time.Second,
			MaxDelay:    3 * time.Second,
		},
		Pipeline: PipelineConfig{
			AppsFile:        "apps.json",
			StagingDir:      "./staging",
			CheckpointDir:   "./checkpoints",
			DownloadTimeout: 60 * time.Second,
			AppDelayMin:     10 * time.Second,
			AppDelayMax:     15 * time.Second,
			FlowLimit:       0, // 0 means no limit
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FLOWVAULT_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("FLOWVAULT_REGION"); v != "" {
		c.Storage.Region = v
	}
	if v := os.Getenv("FLOWVAULT_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := os.Getenv("FLOWVAULT_KEY_PREFIX"); v != "" {
		c.Storage.KeyPrefix = v
	}
	if v := os.Getenv("FLOWVAULT_ACCESS_KEY_ID"); v != "" {
		c.Storage.AccessKeyID = v
	}
	if v := os.Getenv("FLOWVAULT_SECRET_ACCESS_KEY"); v != "" {
		c.Storage.SecretAccessKey = v
	}
	if v := os.Getenv("FLOWVAULT_UPLOAD_WORKERS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			c.Upload.Concurrency = val
		}
	}
	if v := os.Getenv("FLOWVAULT_MAX_RETRIES"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			c.Retry.MaxAttempts = val
		}
	}
	if v := os.Getenv("FLOWVAULT_DELAY_MIN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Retry.MinDelay = d
		}
	}
	if v := os.Getenv("FLOWVAULT_DELAY_MAX"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Retry.MaxDelay = d
		}
	}
	if v := os.Getenv("FLOWVAULT_DOWNLOAD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Pipeline.DownloadTimeout = d
		}
	}
	if v := os.Getenv("FLOWVAULT_APPS_FILE"); v != "" {
		c.Pipeline.AppsFile = v
	}
	if v := os.Getenv("FLOWVAULT_STAGING_DIR"); v != "" {
		c.Pipeline.StagingDir = v
	}
	if v := os.Getenv("FLOWVAULT_CHECKPOINT_DIR"); v != "" {
		c.Pipeline.CheckpointDir = v
	}
	if v := os.Getenv("FLOWVAULT_FLOW_LIMIT"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val >= 0 {
			c.Pipeline.FlowLimit = val
		}
	}
	if v := os.Getenv("FLOWVAULT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".flowvault.yaml",
		".flowvault.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "flowvault", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "flowvault", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".flowvault.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Upload.Concurrency <= 0 {
		errs = append(errs, errors.New("upload concurrency must be positive"))
	}
	if c.Upload.Concurrency > 64 {
		errs = append(errs, errors.New("upload concurrency should not exceed 64"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Retry.MinDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("jitter delays cannot be negative"))
	}
	if c.Retry.MaxDelay < c.Retry.MinDelay {
		errs = append(errs, errors.New("max delay must not be below min delay"))
	}
	if c.Pipeline.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Pipeline.AppDelayMax < c.Pipeline.AppDelayMin {
		errs = append(errs, errors.New("app delay max must not be below app delay min"))
	}
	if c.Pipeline.StagingDir == "" {
		errs = append(errs, errors.New("staging directory is required"))
	}
	if c.Pipeline.CheckpointDir == "" {
		errs = append(errs, errors.New("checkpoint directory is required"))
	}
	if c.Storage.KeyPrefix == "" {
		errs = append(errs, errors.New("storage key prefix is required"))
	}
	if c.Storage.Bucket == "" && c.Storage.LocalDir == "" {
		errs = append(errs, errors.New("either a storage bucket or a local storage directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if bucket, ok := flags["bucket"].(string); ok && bucket != "" {
		c.Storage.Bucket = bucket
	}
	if prefix, ok := flags["key-prefix"].(string); ok && prefix != "" {
		c.Storage.KeyPrefix = prefix
	}
	if apps, ok := flags["apps"].(string); ok && apps != "" {
		c.Pipeline.AppsFile = apps
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Upload.Concurrency = concurrent
	}
	if retries, ok := flags["max-retries"].(int); ok && retries > 0 {
		c.Retry.MaxAttempts = retries
	}
	if limit, ok := flags["limit"].(int); ok && limit >= 0 {
		c.Pipeline.FlowLimit = limit
	}
	if stagingDir, ok := flags["staging-dir"].(string); ok && stagingDir != "" {
		c.Pipeline.StagingDir = stagingDir
	}
	if checkpointDir, ok := flags["checkpoint-dir"].(string); ok && checkpointDir != "" {
		c.Pipeline.CheckpointDir = checkpointDir
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".flowvault.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}
