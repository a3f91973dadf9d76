// Package audit verifies the effective database privileges of the datastore
// roles before the subsystem is activated. The read role executes untrusted
// query text, so the safety of the whole feature rests on proving, up front,
// that it cannot mutate data and is not secretly the host catalog database.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/config"
	"github.com/cataloghq/datastore/internal/engine"
	"github.com/cataloghq/datastore/internal/logging"
)

// ProbeTable is the disposable table created in the public schema to test
// the read role's effective privileges. It must never be left behind.
const ProbeTable = "_privilege_probe"

var (
	// ErrSameDatabase indicates the read role points at the host catalog
	// database, which would expose internal catalog tables through the
	// ad-hoc query API.
	ErrSameDatabase = errors.New("write and read-only roles resolve to the same database as the catalog")

	// ErrPrivilegeEscalation indicates the read role retains mutation
	// privileges.
	ErrPrivilegeEscalation = errors.New("read-only role has write privileges")
)

// Report is the audit result for one configure cycle. It is computed once
// and not persisted.
type Report struct {
	// IsReadOnlyReplica is true when no role has CREATE privilege on the
	// public schema, the signature of a replication target.
	IsReadOnlyReplica bool

	// SameDatabaseLeak is true when the read role and the host catalog
	// share one database.
	SameDatabaseLeak bool

	// ReadHasWritePrivileges is true when the read role holds INSERT,
	// UPDATE, or DELETE on the probe table.
	ReadHasWritePrivileges bool
}

// conn is the query surface the auditor needs from a connection handle.
// *sqlx.DB satisfies it; tests substitute fakes.
type conn interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// roleConn binds a connection handle to the role and endpoint it serves,
// for diagnostics.
type roleConn struct {
	role     config.Role
	endpoint string
	conn     conn
}

// Auditor runs privilege introspection across the three datastore endpoints.
type Auditor struct {
	cfg    *config.Config
	logger *zap.Logger

	primary roleConn
	write   roleConn
	read    roleConn
}

// New builds an Auditor over handles obtained from the engine cache.
func New(cfg *config.Config, engines *engine.Cache, logger *zap.Logger) (*Auditor, error) {
	a := &Auditor{cfg: cfg, logger: logger}

	for _, bind := range []struct {
		role config.Role
		dst  *roleConn
	}{
		{config.RolePrimary, &a.primary},
		{config.RoleWrite, &a.write},
		{config.RoleRead, &a.read},
	} {
		url := cfg.Endpoint(bind.role)
		db, err := engines.Get(url, engine.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("engine for %s role: %w", bind.role, err)
		}
		*bind.dst = roleConn{role: bind.role, endpoint: url, conn: db}
	}

	return a, nil
}

// IsReadOnlyReplica reports whether the backend rejects schema mutation
// across all roles. For each of the three endpoints it queries whether that
// role has CREATE privilege on the public schema; only if none report it is
// the backend classified as a read-only replica. Replication targets reject
// all writes, so the privilege checks that assume a writable backend are
// skipped for them.
func (a *Auditor) IsReadOnlyReplica(ctx context.Context) (bool, error) {
	for _, rc := range []roleConn{a.primary, a.write, a.read} {
		var writable bool
		err := rc.conn.GetContext(ctx, &writable,
			`SELECT has_schema_privilege('public', 'CREATE')`)
		if err != nil {
			return false, fmt.Errorf("schema privilege check on %s endpoint %s: %w",
				rc.role, engine.Redact(rc.endpoint), err)
		}
		if writable {
			return false, nil
		}
	}
	return true, nil
}

// SameDatabaseLeak reports whether the read role reaches the host catalog
// database. True if the write and read endpoints are identical outside
// legacy mode, or if the database identity of the primary endpoint equals
// that of the read endpoint.
func (a *Auditor) SameDatabaseLeak() bool {
	if !a.cfg.Legacy() && a.cfg.WriteURL == a.cfg.ReadURL {
		return true
	}
	return engine.DatabaseIdentity(a.cfg.PrimaryURL) == engine.DatabaseIdentity(a.cfg.ReadURL)
}

// ReadHasExcessPrivileges probes the read role's effective table privileges.
// The write role creates a disposable probe table; the read role is then
// checked for INSERT, UPDATE, and DELETE privilege on it, returning true as
// soon as any is present. The probe table is dropped via the write role on
// every exit path; a failed drop is surfaced as a warning but never masks
// the probe result.
func (a *Auditor) ReadHasExcessPrivileges(ctx context.Context) (unsafe bool, err error) {
	if _, err := a.write.conn.ExecContext(ctx,
		`DROP TABLE IF EXISTS public.`+ProbeTable); err != nil {
		return false, fmt.Errorf("dropping stale probe table: %w", err)
	}

	defer func() {
		// Cleanup runs whether or not the probe raised an error. Use a
		// fresh context so cancellation cannot strand the table.
		if _, dropErr := a.write.conn.ExecContext(context.WithoutCancel(ctx),
			`DROP TABLE IF EXISTS public.`+ProbeTable); dropErr != nil {
			a.logger.Warn("failed to drop privilege probe table",
				zap.String(logging.FieldRelation, ProbeTable),
				zap.String(logging.FieldEndpoint, engine.Redact(a.write.endpoint)),
				zap.Error(dropErr),
			)
		}
	}()

	if _, err := a.write.conn.ExecContext(ctx,
		`CREATE TABLE public.`+ProbeTable+` ()`); err != nil {
		return false, fmt.Errorf("creating probe table: %w", err)
	}

	for _, privilege := range []string{"INSERT", "UPDATE", "DELETE"} {
		var granted bool
		err := a.read.conn.GetContext(ctx, &granted,
			fmt.Sprintf(`SELECT has_table_privilege('%s', '%s')`, ProbeTable, privilege))
		if err != nil {
			return false, fmt.Errorf("%s privilege check on read endpoint %s: %w",
				privilege, engine.Redact(a.read.endpoint), err)
		}
		if granted {
			a.logger.Warn("read role holds a mutation privilege on the probe table",
				zap.String(logging.FieldCheck, "read_privileges"),
				zap.String("privilege", privilege),
				zap.String(logging.FieldEndpoint, engine.Redact(a.read.endpoint)),
			)
			return true, nil
		}
	}
	return false, nil
}
