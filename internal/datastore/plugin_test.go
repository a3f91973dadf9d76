package datastore

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cataloghq/datastore/internal/action"
	"github.com/cataloghq/datastore/internal/audit"
	"github.com/cataloghq/datastore/internal/config"
	"github.com/cataloghq/datastore/internal/engine"
)

// fakeAuditor scripts the three privilege checks and counts how often each
// one runs.
type fakeAuditor struct {
	readonly    bool
	readonlyErr error
	leak        bool
	unsafe      bool
	unsafeErr   error

	replicaCalls int
	leakCalls    int
	probeCalls   int
}

func (f *fakeAuditor) IsReadOnlyReplica(context.Context) (bool, error) {
	f.replicaCalls++
	return f.readonly, f.readonlyErr
}

func (f *fakeAuditor) SameDatabaseLeak() bool {
	f.leakCalls++
	return f.leak
}

func (f *fakeAuditor) ReadHasExcessPrivileges(context.Context) (bool, error) {
	f.probeCalls++
	return f.unsafe, f.unsafeErr
}

type fakeBootstrapper struct {
	viewCalls int
	fnCalls   int
	err       error
}

func (f *fakeBootstrapper) CreateAliasView(context.Context) error {
	f.viewCalls++
	return f.err
}

func (f *fakeBootstrapper) CreateTypeValidator(context.Context) error {
	f.fnCalls++
	return f.err
}

// newTestPlugin builds a plugin over in-memory sqlite handles with the audit
// and bootstrap layers substituted.
func newTestPlugin(t *testing.T, aud *fakeAuditor, boot *fakeBootstrapper) (*Plugin, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	p := New(zap.New(core))
	t.Cleanup(func() { p.Close() })

	p.supported = engine.DialectSQLite
	p.newAuditor = func(*config.Config, *engine.Cache, *zap.Logger) (auditor, error) {
		return aud, nil
	}
	p.newBootstrapper = func(*config.Config, *engine.Cache, *zap.Logger) (bootstrapper, error) {
		return boot, nil
	}
	return p, logs
}

func fullOptions() *config.Options {
	return &config.Options{
		WriteEndpoint:   "file:plugin_write?mode=memory&cache=shared",
		ReadEndpoint:    "file:plugin_read?mode=memory&cache=shared",
		PrimaryEndpoint: "file:plugin_catalog?mode=memory&cache=shared",
	}
}

func baseReadAction(calls *int) action.ReadAction {
	return func(_ context.Context, req *action.ReadRequest) (*action.ReadResult, error) {
		*calls++
		return &action.ReadResult{ID: req.ResourceID}, nil
	}
}

func TestConfigureMissingWriteEndpoint(t *testing.T) {
	p, _ := newTestPlugin(t, &fakeAuditor{}, &fakeBootstrapper{})

	err := p.Configure(context.Background(), &config.Options{}, nil)
	if !errors.Is(err, config.ErrMissingWriteEndpoint) {
		t.Fatalf("expected ErrMissingWriteEndpoint, got %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, p.State())
	}
}

func TestConfigureUnsupportedBackend(t *testing.T) {
	aud := &fakeAuditor{}
	p, logs := newTestPlugin(t, aud, &fakeBootstrapper{})

	opts := fullOptions()
	opts.WriteEndpoint = "mysql://user@host/db"

	// An unsupported backend disables the datastore without failing the host.
	if err := p.Configure(context.Background(), opts, nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if p.State() != StateDisabled {
		t.Errorf("expected state %s, got %s", StateDisabled, p.State())
	}
	if aud.replicaCalls != 0 {
		t.Error("no privilege check may run against an unsupported backend")
	}
	if logs.FilterLevelExact(zap.WarnLevel).Len() == 0 {
		t.Error("expected a warning naming the unsupported backend")
	}
}

func TestConfigureHappyPath(t *testing.T) {
	aud := &fakeAuditor{}
	boot := &fakeBootstrapper{}
	p, _ := newTestPlugin(t, aud, boot)

	opts := fullOptions()
	read, err := p.engines.Get(opts.ReadEndpoint, engine.DefaultOptions())
	if err != nil {
		t.Fatalf("read engine: %v", err)
	}
	if _, err := read.Exec(`CREATE TABLE IF NOT EXISTS "_table_metadata" (name TEXT, alias_of TEXT)`); err != nil {
		t.Fatalf("seed metadata view: %v", err)
	}
	if _, err := read.Exec(`INSERT INTO "_table_metadata" (name, alias_of) VALUES ('stored', NULL)`); err != nil {
		t.Fatalf("seed metadata row: %v", err)
	}

	var baseCalls int
	registry := action.NewRegistry(baseReadAction(&baseCalls))

	if err := p.Configure(context.Background(), opts, registry); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if p.State() != StateConfigured {
		t.Fatalf("expected state %s, got %s", StateConfigured, p.State())
	}

	report := p.Report()
	if report == nil || report.IsReadOnlyReplica || report.SameDatabaseLeak || report.ReadHasWritePrivileges {
		t.Errorf("unexpected report: %+v", report)
	}
	if boot.viewCalls != 1 || boot.fnCalls != 1 {
		t.Errorf("expected one run of each DDL statement, got view=%d fn=%d", boot.viewCalls, boot.fnCalls)
	}

	result, err := registry.ReadAction()(context.Background(), &action.ReadRequest{ResourceID: "stored"})
	if err != nil {
		t.Fatalf("decorated read: %v", err)
	}
	if !result.DatastoreActive {
		t.Error("expected datastore_active for a stored relation")
	}

	result, err = registry.ReadAction()(context.Background(), &action.ReadRequest{ResourceID: "absent"})
	if err != nil {
		t.Fatalf("decorated read: %v", err)
	}
	if result.DatastoreActive {
		t.Error("expected datastore_active=false without a backing relation")
	}
	if baseCalls != 2 {
		t.Errorf("expected 2 base invocations, got %d", baseCalls)
	}
}

func TestConfigurePrivilegeEscalationFatal(t *testing.T) {
	aud := &fakeAuditor{unsafe: true}
	boot := &fakeBootstrapper{}
	p, _ := newTestPlugin(t, aud, boot)

	err := p.Configure(context.Background(), fullOptions(), nil)
	if !errors.Is(err, audit.ErrPrivilegeEscalation) {
		t.Fatalf("expected ErrPrivilegeEscalation, got %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, p.State())
	}
	if boot.viewCalls != 0 {
		t.Error("no DDL may run after a failed privilege audit")
	}
	if p.Report() != nil {
		t.Error("a failed audit must not publish a report")
	}
}

func TestConfigureDebugEscalationContinues(t *testing.T) {
	aud := &fakeAuditor{unsafe: true}
	boot := &fakeBootstrapper{}
	p, logs := newTestPlugin(t, aud, boot)

	opts := fullOptions()
	opts.Debug = true

	if err := p.Configure(context.Background(), opts, nil); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if p.State() != StateConfigured {
		t.Fatalf("expected state %s, got %s", StateConfigured, p.State())
	}
	if report := p.Report(); report == nil || !report.ReadHasWritePrivileges {
		t.Errorf("expected the escalation recorded in the report, got %+v", report)
	}
	if boot.viewCalls != 1 {
		t.Error("bootstrap must still run when debug downgrades the escalation")
	}

	critical := 0
	for _, entry := range logs.FilterLevelExact(zap.ErrorLevel).All() {
		if entry.ContextMap()["severity"] == "critical" {
			critical++
		}
	}
	if critical != 1 {
		t.Errorf("expected exactly one critical-severity error log, got %d", critical)
	}
}

func TestConfigureSameDatabaseLeak(t *testing.T) {
	aud := &fakeAuditor{leak: true}
	p, _ := newTestPlugin(t, aud, &fakeBootstrapper{})

	err := p.Configure(context.Background(), fullOptions(), nil)
	if !errors.Is(err, audit.ErrSameDatabase) {
		t.Fatalf("expected ErrSameDatabase, got %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, p.State())
	}
	if aud.probeCalls != 0 {
		t.Error("the privilege probe must not run after a leak was found")
	}
}

func TestConfigureDebugSkipsLeakCheck(t *testing.T) {
	aud := &fakeAuditor{leak: true}
	p, logs := newTestPlugin(t, aud, &fakeBootstrapper{})

	opts := fullOptions()
	opts.Debug = true

	if err := p.Configure(context.Background(), opts, nil); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if p.State() != StateConfigured {
		t.Fatalf("expected state %s, got %s", StateConfigured, p.State())
	}
	if aud.leakCalls != 0 {
		t.Error("debug mode must skip the same-database check entirely")
	}
	if logs.FilterLevelExact(zap.WarnLevel).Len() == 0 {
		t.Error("expected a warning about the skipped check")
	}
}

func TestConfigureLegacySkipsCrossChecks(t *testing.T) {
	// A leaky, over-privileged setup that would be fatal in full mode: with a
	// single shared connection there is nothing to cross-check.
	aud := &fakeAuditor{leak: true, unsafe: true}
	p, _ := newTestPlugin(t, aud, &fakeBootstrapper{})

	opts := fullOptions()
	opts.ReadEndpoint = ""

	if err := p.Configure(context.Background(), opts, nil); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if p.State() != StateConfigured {
		t.Fatalf("expected state %s, got %s", StateConfigured, p.State())
	}
	if aud.leakCalls != 0 || aud.probeCalls != 0 {
		t.Error("legacy mode must skip the leak and privilege checks")
	}

	caps := p.Capabilities(nil, nil)
	if _, ok := caps.Actions[action.ActionSearchSQL]; ok {
		t.Error("legacy mode must not expose datastore_search_sql")
	}
}

func TestConfigureReadOnlyReplica(t *testing.T) {
	aud := &fakeAuditor{readonly: true, leak: true, unsafe: true}
	boot := &fakeBootstrapper{}
	p, logs := newTestPlugin(t, aud, boot)

	if err := p.Configure(context.Background(), fullOptions(), nil); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if p.State() != StateConfigured {
		t.Fatalf("expected state %s, got %s", StateConfigured, p.State())
	}
	if report := p.Report(); report == nil || !report.IsReadOnlyReplica {
		t.Errorf("expected the replica recorded in the report, got %+v", report)
	}
	if aud.leakCalls != 0 || aud.probeCalls != 0 {
		t.Error("a read-only replica must skip the remaining checks")
	}
	if boot.viewCalls != 0 || boot.fnCalls != 0 {
		t.Error("a read-only replica must skip the schema bootstrap")
	}
	if logs.FilterLevelExact(zap.WarnLevel).Len() == 0 {
		t.Error("expected a warning about the read-only database")
	}
}

func TestConfigureBootstrapSkip(t *testing.T) {
	aud := &fakeAuditor{}
	boot := &fakeBootstrapper{}
	p, _ := newTestPlugin(t, aud, boot)

	opts := fullOptions()
	opts.BootstrapSkip = true

	if err := p.Configure(context.Background(), opts, nil); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if p.State() != StateConfigured {
		t.Fatalf("expected state %s, got %s", StateConfigured, p.State())
	}
	if aud.replicaCalls != 0 {
		t.Error("bootstrap-skip must not touch the backend")
	}
	if boot.viewCalls != 0 {
		t.Error("bootstrap-skip must not run DDL")
	}
	if p.DataActions() == nil {
		t.Error("the action set must still be wired")
	}
}

func TestConfigureBootstrapDDLFailure(t *testing.T) {
	ddlErr := errors.New("permission denied for schema public")
	p, _ := newTestPlugin(t, &fakeAuditor{}, &fakeBootstrapper{err: ddlErr})

	err := p.Configure(context.Background(), fullOptions(), nil)
	if !errors.Is(err, ddlErr) {
		t.Fatalf("expected the DDL error, got %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, p.State())
	}
}

func TestConfigureRepeatKeepsOneDecorator(t *testing.T) {
	p, _ := newTestPlugin(t, &fakeAuditor{}, &fakeBootstrapper{})

	var baseCalls int
	registry := action.NewRegistry(baseReadAction(&baseCalls))

	opts := fullOptions()
	if err := p.Configure(context.Background(), opts, registry); err != nil {
		t.Fatalf("first configure: %v", err)
	}
	first := p.decorator

	if err := p.Configure(context.Background(), opts, registry); err != nil {
		t.Fatalf("second configure: %v", err)
	}
	if p.decorator != first {
		t.Error("a repeated configure cycle must reuse the process-wide decorator")
	}
	if p.State() != StateConfigured {
		t.Errorf("expected state %s, got %s", StateConfigured, p.State())
	}
}
