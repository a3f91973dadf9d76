package action

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/config"
	"github.com/cataloghq/datastore/internal/logging"
	"github.com/cataloghq/datastore/internal/schema"
)

var (
	// ErrSearchSQLDisabled indicates raw-SQL search was invoked in legacy
	// mode, where no distinct read role exists to sandbox it.
	ErrSearchSQLDisabled = errors.New("raw-SQL search is not available in legacy mode")

	// ErrInvalidFieldType indicates a user-supplied column type name did
	// not resolve in the backend's type system.
	ErrInvalidFieldType = errors.New("invalid field type")

	// ErrNoRecords indicates a mutation was requested with no records or
	// filters.
	ErrNoRecords = errors.New("no records supplied")
)

// dbConn is the handle surface the data actions need. *sqlx.DB satisfies it.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

// Field describes one column of a resource's backing relation.
type Field struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// DataActions are the thin query builders over the verified connections.
// Mutations run on the write role, searches on the read role. They manage
// records in existing backing relations; they do not plan queries or tune
// access paths.
type DataActions struct {
	write  dbConn
	read   dbConn
	mode   config.Mode
	logger *zap.Logger
}

// NewDataActions creates the action set over the verified role handles.
func NewDataActions(write, read dbConn, mode config.Mode, logger *zap.Logger) *DataActions {
	return &DataActions{write: write, read: read, mode: mode, logger: logger}
}

// Create provisions the backing relation for a resource. Every field type is
// validated through the backend-side type-validity function before it is
// spliced into DDL.
func (a *DataActions) Create(ctx context.Context, resource string, fields []Field) error {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		var valid bool
		query := a.write.Rebind(`SELECT ` + schema.TypeValidityFunction + `(?)`)
		if err := a.write.GetContext(ctx, &valid, query, f.Type); err != nil {
			return fmt.Errorf("validating type of field %q: %w", f.ID, err)
		}
		if !valid {
			return fmt.Errorf("%w: field %q has type %q", ErrInvalidFieldType, f.ID, f.Type)
		}
		cols = append(cols, pq.QuoteIdentifier(f.ID)+" "+f.Type)
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`,
		pq.QuoteIdentifier(resource), strings.Join(cols, ", "))
	if _, err := a.write.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating relation for resource %s: %w", resource, err)
	}

	a.logger.Info("created datastore relation",
		zap.String(logging.FieldResourceID, resource),
		zap.Int("fields", len(fields)),
	)
	return nil
}

// Upsert inserts records into a resource's backing relation.
func (a *DataActions) Upsert(ctx context.Context, resource string, records []map[string]interface{}) (int64, error) {
	if len(records) == 0 {
		return 0, ErrNoRecords
	}

	var total int64
	for _, record := range records {
		cols := sortedKeys(record)
		quoted := make([]string, len(cols))
		marks := make([]string, len(cols))
		args := make([]interface{}, len(cols))
		for i, col := range cols {
			quoted[i] = pq.QuoteIdentifier(col)
			marks[i] = "?"
			args[i] = record[col]
		}

		stmt := a.write.Rebind(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			pq.QuoteIdentifier(resource), strings.Join(quoted, ", "), strings.Join(marks, ", ")))
		res, err := a.write.ExecContext(ctx, stmt, args...)
		if err != nil {
			return total, fmt.Errorf("inserting into resource %s: %w", resource, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// Delete removes records matching the filters from a resource's backing
// relation. An empty filter set is rejected rather than deleting everything.
func (a *DataActions) Delete(ctx context.Context, resource string, filters map[string]interface{}) (int64, error) {
	if len(filters) == 0 {
		return 0, fmt.Errorf("%w: refusing unfiltered delete", ErrNoRecords)
	}

	cols := sortedKeys(filters)
	conds := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		conds[i] = pq.QuoteIdentifier(col) + " = ?"
		args[i] = filters[col]
	}

	stmt := a.write.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE %s`,
		pq.QuoteIdentifier(resource), strings.Join(conds, " AND ")))
	res, err := a.write.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from resource %s: %w", resource, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Search returns records from a resource's backing relation via the read
// role.
func (a *DataActions) Search(ctx context.Context, resource string, limit, offset int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	stmt := a.read.Rebind(fmt.Sprintf(`SELECT * FROM %s LIMIT ? OFFSET ?`,
		pq.QuoteIdentifier(resource)))
	return a.collect(ctx, stmt, limit, offset)
}

// SearchSQL executes caller-supplied SQL on the read role. Available only in
// full mode, where the read role has been proven unable to mutate data.
func (a *DataActions) SearchSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	if a.mode == config.ModeLegacy {
		return nil, ErrSearchSQLDisabled
	}
	return a.collect(ctx, query)
}

func (a *DataActions) collect(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := a.read.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing search: %w", err)
	}
	defer rows.Close()

	var records []map[string]interface{}
	for rows.Next() {
		record := map[string]interface{}{}
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return records, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
