package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cataloghq/datastore/internal/config"
)

// Registered action names.
const (
	ActionCreate    = "datastore_create"
	ActionUpsert    = "datastore_upsert"
	ActionDelete    = "datastore_delete"
	ActionSearch    = "datastore_search"
	ActionSearchSQL = "datastore_search_sql"
)

// Capabilities is the immutable descriptor of operation handlers and auth
// checks this subsystem registers with the host platform. It is returned by
// an explicit accessor rather than implied by interface inheritance.
type Capabilities struct {
	// Actions maps action names to their handlers. datastore_search_sql is
	// present only outside legacy mode.
	Actions map[string]Handler

	// AuthChecks maps action names to their authorization checks.
	AuthChecks map[string]AuthCheck
}

// BuildCapabilities assembles the capability descriptor over the verified
// data actions. writeAuth guards mutating actions, readAuth the searches.
func BuildCapabilities(data *DataActions, mode config.Mode, writeAuth, readAuth AuthCheck) Capabilities {
	caps := Capabilities{
		Actions: map[string]Handler{
			ActionCreate: func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
				resource, err := stringField(payload, "resource_id")
				if err != nil {
					return nil, err
				}
				var fields []Field
				if err := decodeField(payload, "fields", &fields); err != nil {
					return nil, err
				}
				return nil, data.Create(ctx, resource, fields)
			},
			ActionUpsert: func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
				resource, err := stringField(payload, "resource_id")
				if err != nil {
					return nil, err
				}
				var records []map[string]interface{}
				if err := decodeField(payload, "records", &records); err != nil {
					return nil, err
				}
				return data.Upsert(ctx, resource, records)
			},
			ActionDelete: func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
				resource, err := stringField(payload, "resource_id")
				if err != nil {
					return nil, err
				}
				var filters map[string]interface{}
				if err := decodeField(payload, "filters", &filters); err != nil {
					return nil, err
				}
				return data.Delete(ctx, resource, filters)
			},
			ActionSearch: func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
				resource, err := stringField(payload, "resource_id")
				if err != nil {
					return nil, err
				}
				limit, _ := intField(payload, "limit")
				offset, _ := intField(payload, "offset")
				return data.Search(ctx, resource, limit, offset)
			},
		},
		AuthChecks: map[string]AuthCheck{
			ActionCreate: writeAuth,
			ActionUpsert: writeAuth,
			ActionDelete: writeAuth,
			ActionSearch: readAuth,
		},
	}

	if mode != config.ModeLegacy {
		caps.Actions[ActionSearchSQL] = func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			query, err := stringField(payload, "sql")
			if err != nil {
				return nil, err
			}
			return data.SearchSQL(ctx, query)
		}
		caps.AuthChecks[ActionSearchSQL] = readAuth
	}

	return caps
}

func stringField(payload map[string]interface{}, key string) (string, error) {
	v, ok := payload[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("payload field %q is required", key)
	}
	return v, nil
}

func intField(payload map[string]interface{}, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// decodeField re-marshals one payload entry into a typed destination.
func decodeField(payload map[string]interface{}, key string, dest interface{}) error {
	raw, ok := payload[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("payload field %q: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("payload field %q: %w", key, err)
	}
	return nil
}
