package engine

import (
	"net/url"
	"strings"
)

// Dialect identifies the SQL backend a connection URL resolves to.
type Dialect string

const (
	// DialectPostgres is the supported production backend.
	DialectPostgres Dialect = "postgres"

	// DialectSQLite is used by the test suite as an in-process backend.
	DialectSQLite Dialect = "sqlite"

	// DialectUnknown is any backend this subsystem cannot drive.
	DialectUnknown Dialect = "unknown"
)

// DialectOf derives the backend dialect from a connection URL.
func DialectOf(rawurl string) Dialect {
	switch {
	case strings.HasPrefix(rawurl, "postgres://"), strings.HasPrefix(rawurl, "postgresql://"):
		return DialectPostgres
	case strings.HasPrefix(rawurl, "sqlite://"), strings.HasPrefix(rawurl, "file:"), rawurl == ":memory:":
		return DialectSQLite
	}
	return DialectUnknown
}

// driverDSN maps a connection URL to the database/sql driver name and DSN
// used to open it.
func driverDSN(rawurl string) (driver, dsn string) {
	switch DialectOf(rawurl) {
	case DialectPostgres:
		return "postgres", rawurl
	case DialectSQLite:
		return "sqlite", strings.TrimPrefix(rawurl, "sqlite://")
	}
	return "", rawurl
}

// DatabaseIdentity extracts the host and database portion of a connection
// string: the substring starting at its last "@" delimiter, discarding
// embedded credentials. Connection strings without embedded credentials have
// no "@"; the full string is returned and compared in that case, which can
// misclassify URLs that differ only in credentials or query parameters.
func DatabaseIdentity(rawurl string) string {
	if i := strings.LastIndex(rawurl, "@"); i >= 0 {
		return rawurl[i:]
	}
	return rawurl
}

// Redact returns a form of the connection URL safe for logging, with any
// embedded password removed.
func Redact(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil || u.User == nil {
		// Not URL-shaped; drop everything before the credentials
		// delimiter instead.
		if i := strings.LastIndex(rawurl, "@"); i >= 0 {
			return "***" + rawurl[i:]
		}
		return rawurl
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
