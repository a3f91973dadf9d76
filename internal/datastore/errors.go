package datastore

import "errors"

// ErrUnsupportedEngine indicates the configured backend is not the supported
// relational engine. It is non-fatal: the datastore is disabled entirely
// with a warning and the host keeps starting up.
var ErrUnsupportedEngine = errors.New("datastore backend is not PostgreSQL")
