package schema

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeExecer struct {
	execs []string
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, _ ...interface{}) (sql.Result, error) {
	f.execs = append(f.execs, query)
	if f.err != nil {
		return nil, f.err
	}
	return driver.RowsAffected(0), nil
}

func TestCreateAliasView(t *testing.T) {
	write := &fakeExecer{}
	b := New(write, zap.NewNop())

	if err := b.CreateAliasView(context.Background()); err != nil {
		t.Fatalf("create view: %v", err)
	}

	if len(write.execs) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(write.execs))
	}
	stmt := write.execs[0]
	for _, fragment := range []string{
		`CREATE OR REPLACE VIEW "` + AliasMetadataView + `"`,
		"pg_rewrite",
		"pg_depend",
		"alias_of",
		"substr(md5(",
	} {
		if !strings.Contains(stmt, fragment) {
			t.Errorf("view DDL missing %q", fragment)
		}
	}
}

func TestCreateTypeValidator(t *testing.T) {
	write := &fakeExecer{}
	b := New(write, zap.NewNop())

	if err := b.CreateTypeValidator(context.Background()); err != nil {
		t.Fatalf("create function: %v", err)
	}

	stmt := write.execs[0]
	for _, fragment := range []string{
		"CREATE OR REPLACE FUNCTION " + TypeValidityFunction,
		"v_type::regtype",
		"undefined_object OR syntax_error",
		"LANGUAGE plpgsql stable",
	} {
		if !strings.Contains(stmt, fragment) {
			t.Errorf("function DDL missing %q", fragment)
		}
	}
}

func TestBootstrapIsRepeatable(t *testing.T) {
	write := &fakeExecer{}
	b := New(write, zap.NewNop())

	// Both statements use create-or-replace forms, so a second configure
	// cycle re-runs them without error or duplicate state.
	for i := 0; i < 2; i++ {
		if err := b.CreateAliasView(context.Background()); err != nil {
			t.Fatalf("create view (run %d): %v", i+1, err)
		}
		if err := b.CreateTypeValidator(context.Background()); err != nil {
			t.Fatalf("create function (run %d): %v", i+1, err)
		}
	}

	for _, stmt := range write.execs {
		if !strings.Contains(stmt, "CREATE OR REPLACE") {
			t.Errorf("statement is not idempotent: %q", stmt)
		}
	}
}

func TestBootstrapDDLFailureIsFatal(t *testing.T) {
	write := &fakeExecer{err: errors.New("permission denied")}
	b := New(write, zap.NewNop())

	if err := b.CreateAliasView(context.Background()); !errors.Is(err, ErrBootstrapDDL) {
		t.Errorf("expected ErrBootstrapDDL, got %v", err)
	}
	if err := b.CreateTypeValidator(context.Background()); !errors.Is(err, ErrBootstrapDDL) {
		t.Errorf("expected ErrBootstrapDDL, got %v", err)
	}
}
