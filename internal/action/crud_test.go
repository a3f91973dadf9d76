package action

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/cataloghq/datastore/internal/config"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
CREATE TABLE resource_a (
    id TEXT,
    value INTEGER
);
`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newTestActions(t *testing.T, mode config.Mode) *DataActions {
	t.Helper()
	db := newTestDB(t)
	return NewDataActions(db, db, mode, zap.NewNop())
}

func TestUpsertAndSearch(t *testing.T) {
	actions := newTestActions(t, config.ModeFull)
	ctx := context.Background()

	n, err := actions.Upsert(ctx, "resource_a", []map[string]interface{}{
		{"id": "r1", "value": 1},
		{"id": "r2", "value": 2},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows inserted, got %d", n)
	}

	records, err := actions.Search(ctx, "resource_a", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestUpsertNoRecords(t *testing.T) {
	actions := newTestActions(t, config.ModeFull)

	if _, err := actions.Upsert(context.Background(), "resource_a", nil); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
}

func TestDeleteFiltered(t *testing.T) {
	actions := newTestActions(t, config.ModeFull)
	ctx := context.Background()

	if _, err := actions.Upsert(ctx, "resource_a", []map[string]interface{}{
		{"id": "r1", "value": 1},
		{"id": "r2", "value": 2},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := actions.Delete(ctx, "resource_a", map[string]interface{}{"id": "r1"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row deleted, got %d", n)
	}

	records, err := actions.Search(ctx, "resource_a", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record left, got %d", len(records))
	}
}

func TestDeleteRefusesUnfiltered(t *testing.T) {
	actions := newTestActions(t, config.ModeFull)

	if _, err := actions.Delete(context.Background(), "resource_a", nil); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
}

func TestSearchSQLFullMode(t *testing.T) {
	actions := newTestActions(t, config.ModeFull)
	ctx := context.Background()

	if _, err := actions.Upsert(ctx, "resource_a", []map[string]interface{}{
		{"id": "r1", "value": 7},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	records, err := actions.SearchSQL(ctx, `SELECT value FROM resource_a WHERE id = 'r1'`)
	if err != nil {
		t.Fatalf("search sql: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestSearchSQLDisabledInLegacyMode(t *testing.T) {
	actions := newTestActions(t, config.ModeLegacy)

	if _, err := actions.SearchSQL(context.Background(), `SELECT 1`); !errors.Is(err, ErrSearchSQLDisabled) {
		t.Fatalf("expected ErrSearchSQLDisabled, got %v", err)
	}
}

// fakeTypeConn scripts the type-validity lookups Create performs before
// splicing field types into DDL.
type fakeTypeConn struct {
	validTypes map[string]bool
	execs      []string
}

func (f *fakeTypeConn) GetContext(_ context.Context, dest interface{}, _ string, args ...interface{}) error {
	*(dest.(*bool)) = f.validTypes[args[0].(string)]
	return nil
}

func (f *fakeTypeConn) ExecContext(_ context.Context, query string, _ ...interface{}) (sql.Result, error) {
	f.execs = append(f.execs, query)
	return driver.RowsAffected(0), nil
}

func (f *fakeTypeConn) QueryxContext(context.Context, string, ...interface{}) (*sqlx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTypeConn) Rebind(query string) string { return query }

func TestCreateValidatesFieldTypes(t *testing.T) {
	write := &fakeTypeConn{validTypes: map[string]bool{"text": true, "int4": true}}
	actions := NewDataActions(write, write, config.ModeFull, zap.NewNop())

	err := actions.Create(context.Background(), "resource_b", []Field{
		{ID: "name", Type: "text"},
		{ID: "count", Type: "int4"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(write.execs) != 1 || !strings.Contains(write.execs[0], `CREATE TABLE IF NOT EXISTS "resource_b"`) {
		t.Errorf("unexpected DDL: %v", write.execs)
	}
}

func TestCreateRejectsInvalidFieldType(t *testing.T) {
	write := &fakeTypeConn{validTypes: map[string]bool{"text": true}}
	actions := NewDataActions(write, write, config.ModeFull, zap.NewNop())

	err := actions.Create(context.Background(), "resource_b", []Field{
		{ID: "payload", Type: "drop table students"},
	})
	if !errors.Is(err, ErrInvalidFieldType) {
		t.Fatalf("expected ErrInvalidFieldType, got %v", err)
	}
	if len(write.execs) != 0 {
		t.Error("no DDL may run when a field type fails validation")
	}
}
