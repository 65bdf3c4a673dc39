package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/txorch/pkg/txorch"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

// Policy types accepted in policy.type.
const (
	PolicySame       = "same"
	PolicySequence   = "sequence"
	PolicyBucket     = "bucket"
	PolicyEscalation = "escalation"
)

type ConnectionConfig struct {
	URL             string `yaml:"url"`
	MaxConns        int32  `yaml:"max_conns,omitempty"`
	ConnectAttempts int    `yaml:"connect_attempts,omitempty"`
}

// TimeoutsConfig holds phase timeouts as Go duration strings ("30s", "1m").
type TimeoutsConfig struct {
	Begin    string `yaml:"begin,omitempty"`
	Commit   string `yaml:"commit,omitempty"`
	Rollback string `yaml:"rollback,omitempty"`
	Close    string `yaml:"close,omitempty"`
}

// OptionConfig describes one transaction option.
type OptionConfig struct {
	Kind          string   `yaml:"kind"`
	WritePreserve []string `yaml:"write_preserve,omitempty"`
	Label         string   `yaml:"label,omitempty"`
}

type BucketConfig struct {
	Size   int          `yaml:"size"`
	Option OptionConfig `yaml:"option"`
}

// PolicyConfig selects and parameterizes a retry policy. Only the fields of the
// selected type are read.
type PolicyConfig struct {
	Type string `yaml:"type"`

	// same
	Option      OptionConfig `yaml:"option,omitempty"`
	MaxAttempts int          `yaml:"max_attempts,omitempty"`

	// sequence
	Options []OptionConfig `yaml:"options,omitempty"`

	// bucket
	Buckets []BucketConfig `yaml:"buckets,omitempty"`

	// escalation
	OCC         OptionConfig `yaml:"occ,omitempty"`
	OCCSize     int          `yaml:"occ_size,omitempty"`
	Pessimistic OptionConfig `yaml:"pessimistic,omitempty"`
	LTXSize     int          `yaml:"ltx_size,omitempty"`

	RetryableCodes []string `yaml:"retryable_codes,omitempty"`
	EscalateCodes  []string `yaml:"escalate_codes,omitempty"`
}

type BackoffConfig struct {
	InitialDelay string  `yaml:"initial_delay,omitempty"`
	MaxDelay     string  `yaml:"max_delay,omitempty"`
	Multiplier   float64 `yaml:"multiplier,omitempty"`
	Jitter       float64 `yaml:"jitter,omitempty"`
}

type LogConfig struct {
	Format  string `yaml:"format,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

type ProjectConfig struct {
	Connection ConnectionConfig `yaml:"connection"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts,omitempty"`
	CommitKind string           `yaml:"commit,omitempty"`
	Policy     PolicyConfig     `yaml:"policy"`
	Backoff    *BackoffConfig   `yaml:"backoff,omitempty"`
	Log        LogConfig        `yaml:"log,omitempty"`
}

const ConfigFileName = txorch.ConfigFileName

// Default returns the configuration used when no file exists: the manager's
// default policy and timeouts, console logging.
func Default() *ProjectConfig {
	return &ProjectConfig{
		Policy: PolicyConfig{
			Type:        PolicySame,
			Option:      OptionConfig{Kind: "occ"},
			MaxAttempts: txorch.DefaultMaxAttempts,
		},
		Log: LogConfig{Format: "console"},
	}
}

// Load reads ConfigFileName from dir.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads and validates the config file at path.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys are rejected.
func Parse(data []byte) (*ProjectConfig, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", txorch.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabaseURL returns the configured connection string, falling back to
// the TXORCH_DATABASE_URL environment variable.
func (c *ProjectConfig) DatabaseURL() string {
	if c.Connection.URL != "" {
		return c.Connection.URL
	}
	return os.Getenv(txorch.DatabaseURLEnv)
}

// Validate reports every problem in the configuration at once.
func (c *ProjectConfig) Validate() error {
	var errs []error

	if _, err := c.BuildTimeouts(); err != nil {
		errs = append(errs, err)
	}
	if _, err := txorch.ParseCommitKind(c.CommitKind); err != nil {
		errs = append(errs, fmt.Errorf("commit: %w", err))
	}
	if _, err := c.BuildPolicy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.BuildBackoff(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Connection.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("connection.max_conns: must not be negative"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", txorch.ErrInvalidConfig, errors.Join(errs...))
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}
