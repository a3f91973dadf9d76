// Package main provides the datastore server binary.
//
// This is the entrypoint for datastore-server, which runs the configure
// bootstrap sequence against the catalog and datastore databases and, when
// the datastore is safely activated, serves its action API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/action"
	"github.com/cataloghq/datastore/internal/api"
	"github.com/cataloghq/datastore/internal/config"
	"github.com/cataloghq/datastore/internal/datastore"
	"github.com/cataloghq/datastore/internal/logging"
	"github.com/cataloghq/datastore/internal/metrics"
)

// Config holds server configuration from flags and environment variables.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080").
	ListenAddr string

	// OptionsFile is an optional YAML file carrying datastore options.
	OptionsFile string

	// WriteEndpoint is the database URL for the write role.
	WriteEndpoint string

	// ReadEndpoint is the database URL for the read-only role.
	ReadEndpoint string

	// PrimaryEndpoint is the catalog's own database URL.
	PrimaryEndpoint string

	// Debug relaxes the fatal privilege checks.
	Debug bool

	// SkipBootstrap opts out of privilege checks and schema bootstrap.
	// Pass this when running maintenance commands, instead of relying on
	// how the process was launched.
	SkipBootstrap bool

	// ConfigureTimeout bounds the configure sequence.
	ConfigureTimeout time.Duration

	// Secret is the HMAC secret for action token verification.
	Secret string

	// WriteTokenHash authorizes mutating actions.
	WriteTokenHash string

	// ReadTokenHash authorizes search actions.
	ReadTokenHash string

	// SearchSQLRPS limits raw-SQL searches per second per client.
	SearchSQLRPS float64

	// LogLevel is the logging level (debug, info, warn, error).
	LogLevel string

	// LogFormat is the log format (json, console).
	LogFormat string
}

// parseFlags parses command-line flags and environment variables.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ListenAddr, "listen", getEnv("DATASTORE_LISTEN_ADDR", ":8080"),
		"Address to listen on")
	flag.StringVar(&cfg.OptionsFile, "options", getEnv("DATASTORE_OPTIONS_FILE", ""),
		"YAML file with datastore options")
	flag.StringVar(&cfg.WriteEndpoint, "write-endpoint", getEnv("DATASTORE_WRITE_ENDPOINT", ""),
		"Database URL for the write role (required)")
	flag.StringVar(&cfg.ReadEndpoint, "read-endpoint", getEnv("DATASTORE_READ_ENDPOINT", ""),
		"Database URL for the read-only role (absence selects legacy mode)")
	flag.StringVar(&cfg.PrimaryEndpoint, "primary-endpoint", getEnv("DATASTORE_PRIMARY_ENDPOINT", ""),
		"Catalog database URL, used for same-database leak detection")
	flag.BoolVar(&cfg.Debug, "debug", getEnv("DATASTORE_DEBUG", "") == "true",
		"Relax fatal privilege checks (unsafe, development only)")
	flag.BoolVar(&cfg.SkipBootstrap, "skip-bootstrap", getEnv("DATASTORE_SKIP_BOOTSTRAP", "") == "true",
		"Skip privilege checks and schema bootstrap (maintenance commands)")
	flag.DurationVar(&cfg.ConfigureTimeout, "configure-timeout", 0,
		"Timeout for the configure sequence (default 30s)")
	flag.StringVar(&cfg.Secret, "secret", getEnv("DATASTORE_HMAC_SECRET", ""),
		"HMAC secret for action token verification (required, min 32 bytes)")
	flag.StringVar(&cfg.WriteTokenHash, "write-token-hash", getEnv("DATASTORE_WRITE_TOKEN_HASH", ""),
		"HMAC-SHA256 hash of the write action token")
	flag.StringVar(&cfg.ReadTokenHash, "read-token-hash", getEnv("DATASTORE_READ_TOKEN_HASH", ""),
		"HMAC-SHA256 hash of the read action token")
	flag.Float64Var(&cfg.SearchSQLRPS, "sql-search-rps", 1.0,
		"Raw-SQL searches allowed per second per client")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("DATASTORE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("DATASTORE_LOG_FORMAT", "console"),
		"Log format (json, console)")

	flag.Parse()

	return cfg
}

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// validateConfig validates the server configuration.
func validateConfig(cfg *Config) error {
	if cfg.Secret == "" {
		return fmt.Errorf("HMAC secret is required (set DATASTORE_HMAC_SECRET or use -secret)")
	}
	if len(cfg.Secret) < 32 {
		return fmt.Errorf("HMAC secret must be at least 32 bytes (got %d)", len(cfg.Secret))
	}
	return nil
}

// datastoreOptions assembles the datastore option set: the options file
// first, then flags and environment overriding whatever they set.
func datastoreOptions(cfg *Config) (*config.Options, error) {
	opts := &config.Options{}
	if cfg.OptionsFile != "" {
		loaded, err := config.LoadFile(cfg.OptionsFile)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	if cfg.WriteEndpoint != "" {
		opts.WriteEndpoint = cfg.WriteEndpoint
	}
	if cfg.ReadEndpoint != "" {
		opts.ReadEndpoint = cfg.ReadEndpoint
	}
	if cfg.PrimaryEndpoint != "" {
		opts.PrimaryEndpoint = cfg.PrimaryEndpoint
	}
	if cfg.Debug {
		opts.Debug = true
	}
	if cfg.SkipBootstrap {
		opts.BootstrapSkip = true
	}
	if cfg.ConfigureTimeout > 0 {
		opts.ConfigureTimeout = cfg.ConfigureTimeout
	}
	return opts, nil
}

// setupLogger creates a Zap logger based on configuration.
func setupLogger(cfg *Config) (*zap.Logger, error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if cfg.LogFormat == "json" {
		logCfg.Environment = logging.EnvironmentProduction
	}
	return logging.NewLogger(logCfg)
}

// baseReadAction is the stand-in for the host platform's read-resource
// action. The catalog lookup itself belongs to the host; this binary
// supplies the boundary shape the decorator composes over.
func baseReadAction(_ context.Context, req *action.ReadRequest) (*action.ReadResult, error) {
	return &action.ReadResult{ID: req.ResourceID}, nil
}

func main() {
	cfg := parseFlags()

	if err := validateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting datastore-server",
		zap.String("version", "0.1.0"),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("log_level", cfg.LogLevel),
	)

	metrics.MustInit()

	opts, err := datastoreOptions(cfg)
	if err != nil {
		logger.Fatal("failed to load datastore options", zap.Error(err))
	}

	registry := action.NewRegistry(baseReadAction)
	plugin := datastore.New(logger)
	defer plugin.Close()

	if err := plugin.Configure(context.Background(), opts, registry); err != nil {
		logger.Fatal("datastore bootstrap failed", zap.Error(err))
	}

	router := api.SetupRouter(&api.RouterConfig{
		Plugin:         plugin,
		Registry:       registry,
		Logger:         logger,
		Secret:         cfg.Secret,
		WriteTokenHash: cfg.WriteTokenHash,
		ReadTokenHash:  cfg.ReadTokenHash,
		SearchSQLRPS:   cfg.SearchSQLRPS,
	})

	logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
