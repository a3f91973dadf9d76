// Package engine manages pooled database connection handles for the
// datastore subsystem. All SQL execution in other components goes through
// handles obtained here, never through ad hoc connections, so that pooling
// and reuse are uniform.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/logging"

	// Database drivers. Postgres is the production backend; sqlite backs
	// the test suite.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrUnsupportedDialect indicates a connection URL that resolves to no
// registered driver.
var ErrUnsupportedDialect = errors.New("unsupported database dialect")

// Options holds pool settings applied to a handle when it is first opened.
// Handles are keyed by (URL, Options): asking for the same endpoint with the
// same options returns the same handle.
type Options struct {
	// MaxOpenConns limits concurrently open connections. Zero means no limit.
	MaxOpenConns int

	// MaxIdleConns is the idle connection pool size.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection may be reused.
	ConnMaxLifetime time.Duration
}

// DefaultOptions returns the pool settings used for the datastore roles.
// Connections are few (at most three distinct endpoints), so the pool is
// kept small.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

func (o Options) key() string {
	return fmt.Sprintf("%d|%d|%s", o.MaxOpenConns, o.MaxIdleConns, o.ConnMaxLifetime)
}

// Cache is a process-wide cache of database handles keyed by (URL, options).
// Repeated checks against the same endpoint reuse one handle rather than
// reconnecting. Handles are never evicted during the process lifetime.
type Cache struct {
	mu      sync.Mutex
	engines map[string]*sqlx.DB
	logger  *zap.Logger
}

// NewCache creates an empty engine cache.
func NewCache(logger *zap.Logger) *Cache {
	return &Cache{
		engines: make(map[string]*sqlx.DB),
		logger:  logger,
	}
}

// Get returns the handle for the given endpoint URL and options, opening and
// registering a new one on first use. Opening does not dial the backend; the
// first query does.
func (c *Cache) Get(rawurl string, opts Options) (*sqlx.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := rawurl + "|" + opts.key()
	if db, ok := c.engines[key]; ok {
		return db, nil
	}

	driver, dsn := driverDSN(rawurl)
	if driver == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, Redact(rawurl))
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s engine for %s: %w", driver, Redact(rawurl), err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	c.logger.Debug("registered database engine",
		zap.String(logging.FieldEndpoint, Redact(rawurl)),
		zap.String("driver", driver),
	)

	c.engines[key] = db
	return db, nil
}

// Close closes every cached handle. Intended for process shutdown and test
// teardown only; Get must not be called afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, db := range c.engines {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.engines, key)
	}
	return firstErr
}
