// Package logging provides structured logging utilities for the datastore server.
package logging

// Standard field names for consistent logging across the application.
const (
	// FieldEndpoint is the redacted database endpoint a message refers to.
	FieldEndpoint = "endpoint"

	// FieldRole is the connection role (primary, write, read).
	FieldRole = "role"

	// FieldCheck identifies a privilege check by name.
	FieldCheck = "check"

	// FieldMode is the datastore operating mode (full, legacy).
	FieldMode = "mode"

	// FieldState is the bootstrap state machine state.
	FieldState = "state"

	// FieldRelation is a table or view name.
	FieldRelation = "relation"

	// FieldAction identifies a datastore action by name.
	FieldAction = "action"

	// FieldResourceID is the identifier of a catalog resource.
	FieldResourceID = "resource_id"

	// FieldRequestID is a unique identifier for each HTTP request.
	FieldRequestID = "request_id"

	// FieldDuration is the duration of an operation.
	FieldDuration = "duration"

	// FieldStatusCode is the HTTP status code of a response.
	FieldStatusCode = "status_code"

	// FieldMethod is the HTTP method of a request.
	FieldMethod = "method"

	// FieldPath is the URL path of an HTTP request.
	FieldPath = "path"

	// FieldRemoteAddr is the client's remote address.
	FieldRemoteAddr = "remote_addr"

	// FieldError is the error message or description.
	FieldError = "error"

	// FieldComponent identifies the component generating the log.
	FieldComponent = "component"

	// FieldOperation identifies the specific operation being performed.
	FieldOperation = "operation"
)
