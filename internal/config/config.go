// Package config builds the splitter configuration once, at the process
// boundary, from environment variables or a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/pkrsplitter/internal/hands"
	"github.com/Lllllllleong/pkrsplitter/internal/splitter"
)

// Backend names.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
	BackendS3    = "s3"
)

// Config is the root configuration.
type Config struct {
	Backend   string `yaml:"backend"`    // local | gcs | s3
	DataDir   string `yaml:"data_dir"`   // Root of the local data tree
	Bucket    string `yaml:"bucket"`     // Bucket holding the histories (gcs, s3)
	RawPrefix string `yaml:"raw_prefix"` // Batch root, relative to DataDir or the bucket
	ProjectID string `yaml:"project_id"`

	Splitter SplitterConfig `yaml:"splitter"`
	S3       S3Config       `yaml:"s3"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

// SplitterConfig tunes the splitting engine.
type SplitterConfig struct {
	BoundaryPattern  string        `yaml:"boundary_pattern"`
	IDPattern        string        `yaml:"id_pattern"`
	RawSegment       string        `yaml:"raw_segment"`
	SplitSegment     string        `yaml:"split_segment"`
	SourceExt        string        `yaml:"source_ext"`
	RecordExt        string        `yaml:"record_ext"`
	Concurrency      int           `yaml:"concurrency"`
	WriteConcurrency int           `yaml:"write_concurrency"`
	WritesPerSecond  float64       `yaml:"writes_per_second"` // 0 disables throttling
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
	Mode             string        `yaml:"mode"`         // Batch idempotency mode
	TriggerMode      string        `yaml:"trigger_mode"` // Idempotency mode on object events
}

// S3Config holds the settings of an S3-compatible object store.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"` // Supports ${VAR}
	SecretKey string `yaml:"secret_key"` // Supports ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
}

// LedgerConfig enables the Firestore split ledger when Collection is set.
type LedgerConfig struct {
	Collection string `yaml:"collection"`
}

// WorkflowConfig enables the post-split workflow hand-off when ID is set.
type WorkflowConfig struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
}

// Load reads a YAML file, substitutes environment variables, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at: %s", path)
	}
	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(rawBytes))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// FromEnv builds the configuration from environment variables.
func FromEnv() (*Config, error) {
	cfg := Config{
		Backend:   getEnv("SPLITTER_BACKEND", ""),
		DataDir:   getEnv("POKER_DATA_DIR", ""),
		Bucket:    getEnv("POKER_BUCKET_NAME", ""),
		RawPrefix: getEnv("RAW_PREFIX", ""),
		ProjectID: getEnv("PROJECT_ID", ""),
		Splitter: SplitterConfig{
			BoundaryPattern: getEnv("BOUNDARY_PATTERN", ""),
			IDPattern:       getEnv("HAND_ID_PATTERN", ""),
			RawSegment:      getEnv("RAW_SEGMENT", ""),
			SplitSegment:    getEnv("SPLIT_SEGMENT", ""),
			SourceExt:       getEnv("SOURCE_EXT", ""),
			RecordExt:       getEnv("RECORD_EXT", ""),
			Mode:            getEnv("SPLITTER_MODE", ""),
			TriggerMode:     getEnv("SPLITTER_TRIGGER_MODE", ""),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		Ledger: LedgerConfig{
			Collection: getEnv("FIRESTORE_COLLECTION", ""),
		},
		Workflow: WorkflowConfig{
			ID:       getEnv("WORKFLOW_ID", ""),
			Location: getEnv("WORKFLOW_LOCATION", ""),
		},
	}

	var err error
	if cfg.Splitter.Concurrency, err = getEnvInt("SPLITTER_CONCURRENCY", 0); err != nil {
		return nil, err
	}
	if cfg.Splitter.WriteConcurrency, err = getEnvInt("SPLITTER_WRITE_CONCURRENCY", 0); err != nil {
		return nil, err
	}
	if cfg.Splitter.WritesPerSecond, err = getEnvFloat("SPLITTER_WRITES_PER_SECOND", 0); err != nil {
		return nil, err
	}
	if cfg.Splitter.BatchTimeout, err = getEnvDuration("SPLITTER_BATCH_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.S3.UseSSL, err = getEnvBool("S3_USE_SSL", true); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	if c.Backend == BackendLocal && c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.RawPrefix == "" {
		c.RawPrefix = "histories/raw"
		if c.Backend != BackendLocal {
			c.RawPrefix = "data/histories/raw"
		}
	}

	s := &c.Splitter
	if s.BoundaryPattern == "" {
		s.BoundaryPattern = hands.DefaultBoundaryPattern
	}
	if s.IDPattern == "" {
		s.IDPattern = hands.DefaultIDPattern
	}
	if s.RawSegment == "" {
		s.RawSegment = hands.DefaultRawSegment
	}
	if s.SplitSegment == "" {
		s.SplitSegment = hands.DefaultSplitSegment
	}
	if s.SourceExt == "" {
		s.SourceExt = splitter.DefaultExt
	}
	if s.RecordExt == "" {
		s.RecordExt = splitter.DefaultExt
	}
	if s.Concurrency == 0 {
		s.Concurrency = splitter.DefaultConcurrency
	}
	if s.WriteConcurrency == 0 {
		s.WriteConcurrency = splitter.DefaultWriteConcurrency
	}
	if s.Mode == "" {
		s.Mode = string(splitter.ModeSkipIfAnyFileExists)
	}
	if s.TriggerMode == "" {
		s.TriggerMode = string(splitter.ModeAlways)
	}

	if c.Workflow.Location == "" {
		c.Workflow.Location = "us-central1"
	}
}

// Validate checks the settings each backend needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Bucket == "" {
			return fmt.Errorf("bucket (POKER_BUCKET_NAME) is required for the gcs backend")
		}
	case BackendS3:
		if c.Bucket == "" {
			return fmt.Errorf("bucket (POKER_BUCKET_NAME) is required for the s3 backend")
		}
		if c.S3.Endpoint == "" {
			return fmt.Errorf("s3.endpoint is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if (c.Ledger.Collection != "" || c.Workflow.ID != "") && c.ProjectID == "" {
		return fmt.Errorf("project_id (PROJECT_ID) is required for the ledger and the workflow hand-off")
	}
	if c.Splitter.Concurrency < 0 || c.Splitter.WriteConcurrency < 0 {
		return fmt.Errorf("splitter concurrency must be positive")
	}
	if c.Splitter.WritesPerSecond < 0 {
		return fmt.Errorf("splitter.writes_per_second must not be negative")
	}
	if _, err := splitter.ParseMode(c.Splitter.Mode); err != nil {
		return err
	}
	if _, err := splitter.ParseMode(c.Splitter.TriggerMode); err != nil {
		return err
	}
	if _, err := c.Patterns(); err != nil {
		return err
	}
	if c.Splitter.RawSegment == c.Splitter.SplitSegment {
		return fmt.Errorf("raw_segment and split_segment must differ")
	}
	return nil
}

// Patterns compiles the configured boundary and hand id patterns.
func (c *Config) Patterns() (*hands.Patterns, error) {
	return hands.Compile(c.Splitter.BoundaryPattern, c.Splitter.IDPattern)
}

// Mapper returns the configured destination mapper.
func (c *Config) Mapper() hands.Mapper {
	return hands.Mapper{RawSegment: c.Splitter.RawSegment, SplitSegment: c.Splitter.SplitSegment}
}

// Root is the batch root location on the configured backend.
func (c *Config) Root() string {
	if c.Backend == BackendLocal {
		return trimSlash(c.DataDir) + "/" + trimSlash(c.RawPrefix)
	}
	return trimSlash(c.RawPrefix)
}

func trimSlash(s string) string {
	for len(s) > 1 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s: %w", key, err)
	}
	return d, nil
}
