package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cataloghq/datastore/internal/logging"
)

// Recognized option names. These are the keys accepted in the YAML options
// file and mirrored by the server's command-line flags.
const (
	// OptionWriteEndpoint is the database URL for the write role. Required.
	OptionWriteEndpoint = "write-endpoint"

	// OptionReadEndpoint is the database URL for the read-only role.
	// Absence selects legacy mode.
	OptionReadEndpoint = "read-endpoint"

	// OptionPrimaryEndpoint is the host catalog's own database URL,
	// used only for same-database leak detection.
	OptionPrimaryEndpoint = "primary-endpoint"

	// OptionDebug relaxes the fatal privilege checks as described in the
	// audit package.
	OptionDebug = "debug"

	// OptionBootstrapSkip opts out of all privilege and bootstrap steps.
	// It replaces detection of maintenance-command invocations from argv.
	OptionBootstrapSkip = "bootstrap-skip"
)

// DefaultConfigureTimeout bounds the whole configure sequence. The privilege
// probes run against production databases during service startup, so a hang
// there must not block the host indefinitely.
const DefaultConfigureTimeout = 30 * time.Second

// ErrMissingWriteEndpoint indicates the required write endpoint option was
// not supplied. Startup must abort without attempting any connection.
var ErrMissingWriteEndpoint = errors.New("write-endpoint is required")

// Options is the raw option set supplied by the host before validation.
// Zero values mean "not supplied".
type Options struct {
	// WriteEndpoint is the database URL for the write role.
	WriteEndpoint string `yaml:"write-endpoint"`

	// ReadEndpoint is the database URL for the read-only role.
	ReadEndpoint string `yaml:"read-endpoint"`

	// PrimaryEndpoint is the host catalog's own database URL.
	PrimaryEndpoint string `yaml:"primary-endpoint"`

	// Debug relaxes fatal privilege failures (see audit package).
	Debug bool `yaml:"debug"`

	// BootstrapSkip skips all privilege and bootstrap steps.
	BootstrapSkip bool `yaml:"bootstrap-skip"`

	// ConfigureTimeout bounds the configure sequence. Zero selects
	// DefaultConfigureTimeout.
	ConfigureTimeout time.Duration `yaml:"configure-timeout"`
}

// Config is the validated, immutable datastore configuration. It is built
// exactly once by Validate and passed explicitly to every component; no
// component reaches into ambient process state.
type Config struct {
	// Mode is the derived operating mode.
	Mode Mode

	// WriteURL is the write role endpoint.
	WriteURL string

	// ReadURL is the read role endpoint. Equals WriteURL in legacy mode.
	ReadURL string

	// PrimaryURL is the host catalog endpoint.
	PrimaryURL string

	// Debug relaxes the fatal privilege checks.
	Debug bool

	// SkipChecks instructs the caller to skip all privilege and bootstrap
	// steps. Validation still succeeds when it is set.
	SkipChecks bool

	// ConfigureTimeout bounds the configure sequence.
	ConfigureTimeout time.Duration
}

// Endpoint returns the URL bound to the given connection role.
func (c *Config) Endpoint(role Role) string {
	switch role {
	case RolePrimary:
		return c.PrimaryURL
	case RoleWrite:
		return c.WriteURL
	case RoleRead:
		return c.ReadURL
	}
	return ""
}

// Legacy reports whether the datastore operates without a distinct read role.
func (c *Config) Legacy() bool {
	return c.Mode == ModeLegacy
}

// Validate checks the supplied options and derives the immutable Config.
//
// Validation fails with ErrMissingWriteEndpoint if no write endpoint is set.
// Legacy mode is selected iff no read endpoint is set; in that case the read
// endpoint is aliased to the write endpoint and a warning notes that raw-SQL
// search will be unavailable. No database connection is attempted here.
func Validate(opts *Options, logger *zap.Logger) (*Config, error) {
	if opts.WriteEndpoint == "" {
		return nil, fmt.Errorf("%w (option %q)", ErrMissingWriteEndpoint, OptionWriteEndpoint)
	}

	cfg := &Config{
		Mode:             ModeFull,
		WriteURL:         opts.WriteEndpoint,
		ReadURL:          opts.ReadEndpoint,
		PrimaryURL:       opts.PrimaryEndpoint,
		Debug:            opts.Debug,
		SkipChecks:       opts.BootstrapSkip,
		ConfigureTimeout: opts.ConfigureTimeout,
	}

	if opts.ReadEndpoint == "" {
		cfg.Mode = ModeLegacy
		cfg.ReadURL = opts.WriteEndpoint
		logger.Warn("no read endpoint configured, running in legacy mode: raw-SQL search will not be available",
			zap.String(logging.FieldMode, string(ModeLegacy)))
	}

	if cfg.ConfigureTimeout <= 0 {
		cfg.ConfigureTimeout = DefaultConfigureTimeout
	}

	if cfg.SkipChecks {
		logger.Warn("bootstrap-skip is set, omitting privilege checks and schema bootstrap")
	}

	return cfg, nil
}

// LoadFile reads an Options value from a YAML file.
func LoadFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading options file: %w", err)
	}

	opts := &Options{}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("parsing options file %s: %w", path, err)
	}
	return opts, nil
}
