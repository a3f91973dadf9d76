// Package action defines the datastore's action layer: the read-resource
// action and its one-time decoration, the thin CRUD query builders over the
// verified connections, and the capability descriptor registered with the
// host platform.
package action

import (
	"context"
)

// ReadRequest identifies a catalog resource to show.
type ReadRequest struct {
	// ResourceID is the resource's identifier, which is also the name of
	// its backing relation in the datastore when one exists.
	ResourceID string `json:"resource_id"`
}

// ReadResult is the structured record produced by the read-resource action.
// The decoration step sets DatastoreActive and alters nothing else.
type ReadResult struct {
	// ID is the resource identifier.
	ID string `json:"id"`

	// Attributes carries the host platform's own resource fields,
	// passed through untouched.
	Attributes map[string]interface{} `json:"attributes,omitempty"`

	// DatastoreActive reports whether the datastore holds a genuine
	// stored relation (not merely an alias) for this resource.
	DatastoreActive bool `json:"datastore_active"`
}

// ReadAction is the external read-resource action with signature
// (context, request) -> result.
type ReadAction func(ctx context.Context, req *ReadRequest) (*ReadResult, error)

// Handler is a named datastore operation as registered with the host
// platform.
type Handler func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

// AuthCheck authorizes a named datastore operation for the given request
// token.
type AuthCheck func(ctx context.Context, token string) error
