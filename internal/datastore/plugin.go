// Package datastore implements the startup-time access-control and
// bootstrap sequence for the secondary data store. Configure decides,
// before any request is served, whether the store may be safely activated:
// it validates the configuration, gates on backend compatibility, audits
// the read role's privileges, provisions the integrity-metadata schema
// objects, and decorates the host's read-resource action.
package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/action"
	"github.com/cataloghq/datastore/internal/audit"
	"github.com/cataloghq/datastore/internal/config"
	"github.com/cataloghq/datastore/internal/engine"
	"github.com/cataloghq/datastore/internal/logging"
	"github.com/cataloghq/datastore/internal/metrics"
	"github.com/cataloghq/datastore/internal/schema"
)

// auditor is the privilege-introspection surface Configure drives.
// *audit.Auditor satisfies it; tests substitute fakes.
type auditor interface {
	IsReadOnlyReplica(ctx context.Context) (bool, error)
	SameDatabaseLeak() bool
	ReadHasExcessPrivileges(ctx context.Context) (bool, error)
}

// bootstrapper is the schema-provisioning surface Configure drives.
type bootstrapper interface {
	CreateAliasView(ctx context.Context) error
	CreateTypeValidator(ctx context.Context) error
}

// ReadActionRegistry is the host platform's action-registry boundary: it
// hands out the current read-resource action and accepts a replacement.
type ReadActionRegistry interface {
	ReadAction() action.ReadAction
	ReplaceReadAction(action.ReadAction)
}

// Plugin is the datastore subsystem. One Plugin lives for the process
// lifetime; Configure may be invoked repeatedly (test setup does) and is
// safe to repeat.
type Plugin struct {
	logger  *zap.Logger
	engines *engine.Cache

	mu               sync.Mutex
	state            State
	cfg              *config.Config
	report           *audit.Report
	checksSkipped    bool
	bootstrapSkipped bool
	data             *action.DataActions

	// decorator carries the bootstrap marker: it is created once per
	// process, so repeated Configure cycles never stack a second wrap.
	decorator *action.Decorator

	// Test seams - allow substituting the audit and bootstrap layers and
	// the supported dialect.
	newAuditor      func(cfg *config.Config, engines *engine.Cache, logger *zap.Logger) (auditor, error)
	newBootstrapper func(cfg *config.Config, engines *engine.Cache, logger *zap.Logger) (bootstrapper, error)
	supported       engine.Dialect
}

// New creates the datastore plugin with its process-wide engine cache.
func New(logger *zap.Logger) *Plugin {
	return &Plugin{
		logger:  logger,
		engines: engine.NewCache(logger),
		state:   StateNotConfigured,
		newAuditor: func(cfg *config.Config, engines *engine.Cache, logger *zap.Logger) (auditor, error) {
			return audit.New(cfg, engines, logger)
		},
		newBootstrapper: func(cfg *config.Config, engines *engine.Cache, logger *zap.Logger) (bootstrapper, error) {
			write, err := engines.Get(cfg.WriteURL, engine.DefaultOptions())
			if err != nil {
				return nil, err
			}
			return schema.New(write, logger), nil
		},
		supported: engine.DialectPostgres,
	}
}

// State returns the current bootstrap state.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Report returns the privilege report of the last configure cycle, or nil
// if none ran to completion of the audit step.
func (p *Plugin) Report() *audit.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report
}

// Config returns the validated configuration, or nil before Configure.
func (p *Plugin) Config() *config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// DataActions returns the verified CRUD action set, or nil while the
// datastore is not configured.
func (p *Plugin) DataActions() *action.DataActions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// Capabilities returns the descriptor of action handlers and auth checks to
// register with the host platform. datastore_search_sql is absent in legacy
// mode.
func (p *Plugin) Capabilities(writeAuth, readAuth action.AuthCheck) action.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return action.BuildCapabilities(p.data, p.cfg.Mode, writeAuth, readAuth)
}

// Close releases every cached database handle.
func (p *Plugin) Close() error {
	return p.engines.Close()
}

// Configure runs the bootstrap sequence synchronously on the host's
// initialization path. It returns nil when the terminal state is Configured
// or Disabled, and the fatal error when it is Failed.
func (p *Plugin) Configure(ctx context.Context, opts *config.Options, registry ReadActionRegistry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.ConfigureDuration.Observe(time.Since(start).Seconds())
		p.publishState()
	}()

	// ValidatingConfig
	p.state = StateValidatingConfig
	cfg, err := config.Validate(opts, p.logger)
	if err != nil {
		p.state = StateFailed
		return err
	}
	p.cfg = cfg
	p.report = nil
	p.state = StateModeResolved

	ctx, cancel := context.WithTimeout(ctx, cfg.ConfigureTimeout)
	defer cancel()

	if cfg.SkipChecks {
		// Explicit opt-out: the caller runs maintenance commands and the
		// privilege and bootstrap steps must not touch the backend.
		p.checksSkipped = true
		if err := p.wireActions(); err != nil {
			p.state = StateFailed
			return err
		}
		p.state = StateConfigured
		p.logger.Warn("datastore configured without privilege checks",
			zap.String(logging.FieldState, string(p.state)))
		return nil
	}

	// CheckingEngineCompatibility
	p.state = StateCheckingEngine
	if dialect := engine.DialectOf(cfg.WriteURL); dialect != p.supported {
		p.state = StateDisabled
		p.logger.Warn("unsupported database backend, the datastore will NOT work",
			zap.String("dialect", string(dialect)),
			zap.String(logging.FieldEndpoint, engine.Redact(cfg.WriteURL)),
			zap.Error(ErrUnsupportedEngine),
		)
		return nil
	}

	// AuditingPrivileges
	p.state = StateAuditingPrivileges
	aud, err := p.newAuditor(cfg, p.engines, p.logger)
	if err != nil {
		p.state = StateFailed
		return fmt.Errorf("building privilege auditor: %w", err)
	}

	report, err := p.runAudit(ctx, aud)
	if err != nil {
		p.state = StateFailed
		return err
	}
	p.report = report

	if report.IsReadOnlyReplica {
		// Replication target: nothing is writable, so the checks below
		// (which assume a writable backend) and the schema bootstrap are
		// skipped.
		p.bootstrapSkipped = true
		if err := p.wireActions(); err != nil {
			p.state = StateFailed
			return err
		}
		p.state = StateConfigured
		p.logger.Warn("running against a read-only database: permission checks and integrity-metadata objects are skipped")
		return nil
	}

	// Bootstrapping
	p.state = StateBootstrapping
	boot, err := p.newBootstrapper(cfg, p.engines, p.logger)
	if err != nil {
		p.state = StateFailed
		return fmt.Errorf("building schema bootstrapper: %w", err)
	}
	if err := boot.CreateAliasView(ctx); err != nil {
		p.state = StateFailed
		return err
	}
	if err := boot.CreateTypeValidator(ctx); err != nil {
		p.state = StateFailed
		return err
	}

	// Decorating
	p.state = StateDecorating
	if err := p.wireActions(); err != nil {
		p.state = StateFailed
		return err
	}
	if registry != nil {
		registry.ReplaceReadAction(p.decorator.Decorate(registry.ReadAction()))
	}

	p.state = StateConfigured
	p.logger.Info("datastore configured",
		zap.String(logging.FieldMode, string(cfg.Mode)),
		zap.Bool("bootstrap_skipped", p.bootstrapSkipped),
	)
	return nil
}

// runAudit executes the privilege checks and applies the failure policy.
func (p *Plugin) runAudit(ctx context.Context, aud auditor) (*audit.Report, error) {
	report := &audit.Report{}

	readonly, err := p.timedCheck("read_only_replica", func() (bool, error) {
		return aud.IsReadOnlyReplica(ctx)
	})
	if err != nil {
		return nil, err
	}
	report.IsReadOnlyReplica = readonly
	if readonly {
		return report, nil
	}

	if p.cfg.Legacy() {
		// One shared connection, nothing to cross-check.
		return report, nil
	}

	if p.cfg.Debug {
		p.logger.Warn("debug mode: skipping same-database check")
	} else {
		leak, _ := p.timedCheck("same_database", func() (bool, error) {
			return aud.SameDatabaseLeak(), nil
		})
		report.SameDatabaseLeak = leak
		if leak {
			return nil, fmt.Errorf("%w (read endpoint %s)",
				audit.ErrSameDatabase, engine.Redact(p.cfg.ReadURL))
		}
	}

	unsafe, err := p.timedCheck("read_privileges", func() (bool, error) {
		return aud.ReadHasExcessPrivileges(ctx)
	})
	if err != nil {
		return nil, err
	}
	report.ReadHasWritePrivileges = unsafe
	if unsafe {
		if p.cfg.Debug {
			// Deliberately asymmetric to the same-database policy: the
			// consequence is a live security gap, so debug mode logs at
			// the highest severity and continues instead of skipping.
			p.logger.With(zap.String("severity", "critical")).
				Error("read role has write privileges on the read-only database, continuing because debug is set")
			return report, nil
		}
		return nil, fmt.Errorf("%w (read endpoint %s)",
			audit.ErrPrivilegeEscalation, engine.Redact(p.cfg.ReadURL))
	}

	return report, nil
}

// timedCheck runs one privilege check with duration and outcome metrics.
func (p *Plugin) timedCheck(name string, check func() (bool, error)) (bool, error) {
	start := time.Now()
	flagged, err := check()
	metrics.CheckDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	outcome := "pass"
	switch {
	case err != nil:
		outcome = "error"
	case flagged:
		outcome = "flagged"
	}
	metrics.ChecksTotal.WithLabelValues(name, outcome).Inc()
	return flagged, err
}

// wireActions builds the CRUD action set and the read-action decorator over
// the verified handles. The decorator is created once per process.
func (p *Plugin) wireActions() error {
	write, err := p.engines.Get(p.cfg.WriteURL, engine.DefaultOptions())
	if err != nil {
		return fmt.Errorf("engine for write role: %w", err)
	}
	read, err := p.engines.Get(p.cfg.ReadURL, engine.DefaultOptions())
	if err != nil {
		return fmt.Errorf("engine for read role: %w", err)
	}

	p.data = action.NewDataActions(write, read, p.cfg.Mode, p.logger)
	if p.decorator == nil {
		p.decorator = action.NewDecorator(read, p.logger)
	}
	return nil
}

// publishState exposes the current state through the bootstrap gauge.
func (p *Plugin) publishState() {
	for _, s := range []State{StateConfigured, StateDisabled, StateFailed, StateNotConfigured} {
		value := 0.0
		if s == p.state {
			value = 1.0
		}
		metrics.BootstrapState.WithLabelValues(string(s)).Set(value)
	}
}
