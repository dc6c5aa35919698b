// Package config handles loading and validation of the report generator's
// config.yml and Notify secrets.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// Branch values select the local or remote endpoint sections.
const (
	BranchLocal  = "local"
	BranchRemote = "remote"
)

// Defaults applied to settings left out of the file.
const (
	DefaultWorkers       = 4
	DefaultCallTimeout   = 10 * time.Second
	DefaultFailThreshold = 5
	DefaultCooldown      = 30 * time.Second
)

// Config is the parsed config.yml.
type Config struct {
	Functions Functions           `yaml:"functions"`
	Invoke    map[string]Endpoint `yaml:"invoke"`
	S3        map[string]Endpoint `yaml:"s3"`
	Report    Report              `yaml:"report"`
	Dispatch  Dispatch            `yaml:"dispatch"`
	Breaker   Breaker             `yaml:"breaker"`
	Notify    Notify              `yaml:"notify"`
}

// Functions names the downstream Lambda functions.
type Functions struct {
	TestResults  string `yaml:"testResults"`
	Activities   string `yaml:"activities"`
	TestStations string `yaml:"testStations"`
}

// Endpoint overrides the AWS endpoint for a client. An empty Endpoint uses
// the SDK default.
type Endpoint struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Region   string `yaml:"region,omitempty"`
}

// Report configures rendering and upload of the spreadsheet.
type Report struct {
	Timezone      string `yaml:"timezone"`
	TemplatePath  string `yaml:"templatePath,omitempty"`
	UploadEnabled *bool  `yaml:"uploadEnabled,omitempty"`
	BucketSuffix  string `yaml:"bucketSuffix,omitempty"`
}

// Uploads reports whether rendered reports are uploaded. Defaults to true.
func (r Report) Uploads() bool {
	return r.UploadEnabled == nil || *r.UploadEnabled
}

// Dispatch configures batch processing.
type Dispatch struct {
	BatchMode   types.BatchMode `yaml:"batchMode"`
	Workers     int             `yaml:"workers"`
	CallTimeout time.Duration   `yaml:"callTimeout"`
}

// Breaker configures the circuit breaker around each downstream function.
type Breaker struct {
	FailThreshold uint32        `yaml:"failThreshold"`
	Cooldown      time.Duration `yaml:"cooldown"`
	FailWindow    time.Duration `yaml:"failWindow,omitempty"`
}

// Notify holds the non-secret Notify settings.
type Notify struct {
	Endpoint   string `yaml:"endpoint,omitempty"`
	TemplateID string `yaml:"templateId,omitempty"`
}

// envRef matches ${VAR} and ${VAR:default}.
var envRef = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// ExpandEnv replaces ${VAR:default} references with the environment value,
// else the default, else the variable name.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v := os.Getenv(string(sub[1])); v != "" {
			return []byte(v)
		}
		if len(sub[2]) > 0 {
			return sub[2]
		}
		return sub[1]
	})
}

// Load reads, expands and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(ExpandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Dispatch.BatchMode == "" {
		cfg.Dispatch.BatchMode = types.BatchPartial
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = DefaultWorkers
	}
	if cfg.Dispatch.CallTimeout <= 0 {
		cfg.Dispatch.CallTimeout = DefaultCallTimeout
	}
	if cfg.Breaker.FailThreshold == 0 {
		cfg.Breaker.FailThreshold = DefaultFailThreshold
	}
	if cfg.Breaker.Cooldown <= 0 {
		cfg.Breaker.Cooldown = DefaultCooldown
	}
}

func validate(cfg *Config) error {
	if cfg.Functions.TestResults == "" {
		return fmt.Errorf("functions.testResults is required")
	}
	if cfg.Functions.Activities == "" {
		return fmt.Errorf("functions.activities is required")
	}
	if cfg.Functions.TestStations == "" {
		return fmt.Errorf("functions.testStations is required")
	}
	switch cfg.Dispatch.BatchMode {
	case types.BatchPartial, types.BatchFailFast:
	default:
		return fmt.Errorf("dispatch.batchMode %q must be %q or %q",
			cfg.Dispatch.BatchMode, types.BatchPartial, types.BatchFailFast)
	}
	return nil
}

// ResolveBranch maps a BRANCH value to the endpoint section it selects. An
// unset BRANCH or "local" selects local; anything else selects remote.
func ResolveBranch(branch string) string {
	if branch == "" || branch == BranchLocal {
		return BranchLocal
	}
	return BranchRemote
}

// InvokeEndpoint returns the Lambda invoke endpoint for a BRANCH value.
func (c *Config) InvokeEndpoint(branch string) Endpoint {
	return c.Invoke[ResolveBranch(branch)]
}

// S3Endpoint returns the S3 endpoint for a BRANCH value.
func (c *Config) S3Endpoint(branch string) Endpoint {
	return c.S3[ResolveBranch(branch)]
}
