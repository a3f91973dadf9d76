// Package config defines and validates the datastore subsystem configuration.
package config

// Mode represents the datastore operating mode.
type Mode string

const (
	// ModeFull indicates distinct write and read endpoints are configured.
	// All actions, including raw-SQL search, are available.
	ModeFull Mode = "full"

	// ModeLegacy indicates no read endpoint was supplied. The read role is
	// aliased to the write role and raw-SQL search is disabled.
	ModeLegacy Mode = "legacy"
)

// Role identifies one of the database connection roles.
type Role string

const (
	// RolePrimary is the host catalog's own database.
	RolePrimary Role = "primary"

	// RoleWrite is the write-capable datastore role.
	RoleWrite Role = "write"

	// RoleRead is the read-only datastore role used for ad-hoc queries.
	RoleRead Role = "read"
)
