// Package schema provisions the backend objects the datastore requires for
// safe operation: the alias metadata view and the type-validity function.
// Both use create-or-replace forms, so repeated configure cycles never
// accumulate duplicate state.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/logging"
)

const (
	// AliasMetadataView exposes, for every table and view in the public
	// schema, its name, object identifier, and the relation it aliases.
	AliasMetadataView = "_table_metadata"

	// TypeValidityFunction resolves a type name to a boolean without ever
	// raising to the caller.
	TypeValidityFunction = "is_valid_type"
)

// ErrBootstrapDDL indicates a provisioning statement failed. The schema
// objects are required for downstream correctness, so this is fatal.
var ErrBootstrapDDL = errors.New("schema bootstrap DDL failed")

// aliasViewSQL maps the backend's internal dependency catalog (rewrite rule
// dependency, then object dependency, then originating relation) to an
// alias_of column, excluding self-dependencies. The synthetic _id is a
// deterministic md5 prefix over the dependent and dependee names.
const aliasViewSQL = `CREATE OR REPLACE VIEW "` + AliasMetadataView + `" AS
	SELECT DISTINCT
		substr(md5(dependee.relname || COALESCE(dependent.relname, '')), 0, 17) AS "_id",
		dependee.relname AS name,
		dependee.oid AS oid,
		dependent.relname AS alias_of
	FROM
		pg_class AS dependee
		LEFT OUTER JOIN pg_rewrite AS r ON r.ev_class = dependee.oid
		LEFT OUTER JOIN pg_depend AS d ON d.objid = r.oid
		LEFT OUTER JOIN pg_class AS dependent ON d.refobjid = dependent.oid
	WHERE
		(dependee.oid != dependent.oid OR dependent.oid IS NULL) AND
		(dependee.relname IN (SELECT tablename FROM pg_catalog.pg_tables)
			OR dependee.relname IN (SELECT viewname FROM pg_catalog.pg_views)) AND
		dependee.relnamespace = (SELECT oid FROM pg_namespace WHERE nspname='public')
	ORDER BY dependee.oid DESC`

// typeValidityFunctionSQL is backend-resident code and is provisioned
// verbatim rather than ported into the host language. undefined_object is
// raised when the type does not exist, syntax_error when a keyword is
// supplied as a type name; both convert to false.
const typeValidityFunctionSQL = `CREATE OR REPLACE FUNCTION ` + TypeValidityFunction + `(v_type text)
RETURNS boolean
AS $$
BEGIN
	PERFORM v_type::regtype;
	RETURN true;
EXCEPTION WHEN undefined_object OR syntax_error THEN
	RETURN false;
END;
$$ LANGUAGE plpgsql stable`

// execer is the statement surface the bootstrapper needs from the write
// handle. *sqlx.DB satisfies it; tests substitute fakes.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Bootstrapper provisions the datastore schema objects through the write role.
type Bootstrapper struct {
	write  execer
	logger *zap.Logger
}

// New creates a Bootstrapper over the write role handle.
func New(write execer, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{write: write, logger: logger}
}

// CreateAliasView provisions the alias metadata view. Safe to re-run.
func (b *Bootstrapper) CreateAliasView(ctx context.Context) error {
	if _, err := b.write.ExecContext(ctx, aliasViewSQL); err != nil {
		return fmt.Errorf("%w: creating view %s: %v", ErrBootstrapDDL, AliasMetadataView, err)
	}
	b.logger.Info("provisioned alias metadata view",
		zap.String(logging.FieldRelation, AliasMetadataView))
	return nil
}

// CreateTypeValidator provisions the type-validity function. Safe to re-run.
func (b *Bootstrapper) CreateTypeValidator(ctx context.Context) error {
	if _, err := b.write.ExecContext(ctx, typeValidityFunctionSQL); err != nil {
		return fmt.Errorf("%w: creating function %s: %v", ErrBootstrapDDL, TypeValidityFunction, err)
	}
	b.logger.Info("provisioned type validity function",
		zap.String(logging.FieldOperation, TypeValidityFunction))
	return nil
}
