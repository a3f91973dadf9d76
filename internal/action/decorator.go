package action

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/logging"
	"github.com/cataloghq/datastore/internal/schema"
)

// queryer is the read-role surface the decorator needs. *sqlx.DB satisfies
// it; its GetContext acquires a pooled connection and releases it on every
// exit path, including query failure.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

// Decorator wraps the external read-resource action so that its result is
// annotated with whether the datastore holds active data for the resource.
type Decorator struct {
	read   queryer
	logger *zap.Logger

	// wrapped is the bootstrap marker. It transitions false -> true exactly
	// once per process and is never unset, so repeated configure cycles
	// cannot stack a second wrapper that would double-execute the lookup
	// on every call.
	wrapped atomic.Bool
}

// NewDecorator creates a Decorator over the read role handle.
func NewDecorator(read queryer, logger *zap.Logger) *Decorator {
	return &Decorator{read: read, logger: logger}
}

// Decorate returns the read action wrapped with the datastore-active lookup,
// or the action unmodified if the wrap was already installed in this process.
func (d *Decorator) Decorate(original ReadAction) ReadAction {
	if !d.wrapped.CompareAndSwap(false, true) {
		return original
	}

	return func(ctx context.Context, req *ReadRequest) (*ReadResult, error) {
		result, err := original(ctx, req)
		if err != nil {
			return nil, err
		}

		active, err := d.hasActiveData(ctx, result.ID)
		if err != nil {
			return nil, fmt.Errorf("datastore-active lookup for resource %s: %w", result.ID, err)
		}

		result.DatastoreActive = active
		return result, nil
	}
}

// hasActiveData reports whether the alias metadata view lists a genuine
// stored relation (alias_of is null) named after the resource.
func (d *Decorator) hasActiveData(ctx context.Context, resourceID string) (bool, error) {
	var one int
	query := d.read.Rebind(
		`SELECT 1 FROM "` + schema.AliasMetadataView + `" WHERE name = ? AND alias_of IS NULL`)
	err := d.read.GetContext(ctx, &one, query, resourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		d.logger.Debug("datastore-active lookup failed",
			zap.String(logging.FieldResourceID, resourceID),
			zap.Error(err),
		)
		return false, err
	}
	return true, nil
}
