// Package gateway is the boundary to the remote record store. It
// defines the connection primitives the core depends on, a concrete
// client speaking JSON-RPC over websocket, and the query shapes the
// viewer issues.
package gateway

import (
	"context"
	"fmt"
	"time"
)

// EventKind classifies a live-pushed row change.
type EventKind int

const (
	EventCreated EventKind = iota
	EventUpdated
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// LiveHandler receives live row changes for one subscription.
type LiveHandler func(kind EventKind, row map[string]any)

// Conn is the set of remote-store primitives the core consumes. The
// concrete transport behind it is interchangeable; tests substitute a
// fake.
type Conn interface {
	// Use selects the namespace and database for later queries.
	Use(ctx context.Context, namespace, database string) error
	// Signin authenticates the connection.
	Signin(ctx context.Context, username, password string) error
	// Query runs one statement with named parameters and returns its rows.
	Query(ctx context.Context, statement string, vars map[string]any) ([]map[string]any, error)
	// Live registers a subscription on a table and returns its handle.
	Live(ctx context.Context, table string, fn LiveHandler) (string, error)
	// Kill cancels a live subscription by handle.
	Kill(ctx context.Context, handle string) error
	Close() error
}

// Record is one location report row, reduced to the fields the viewer
// understands plus an open map for the rest. Immutable once built.
type Record struct {
	ID         string
	Ciphertext string
	Device     string
	Timestamp  time.Time
	Extra      map[string]any
}

// FieldMap names the three row fields the viewer reads. The names come
// from trusted configuration, never from user input.
type FieldMap struct {
	Ciphertext string
	Device     string
	Time       string
}

// RecordFromRow maps a raw row onto a Record using the configured
// field names. Unrecognized columns are preserved in Extra.
func (m FieldMap) RecordFromRow(row map[string]any) Record {
	rec := Record{Extra: make(map[string]any)}
	for key, value := range row {
		switch key {
		case "id":
			rec.ID = stringify(value)
		case m.Ciphertext:
			if s, ok := value.(string); ok {
				rec.Ciphertext = s
			}
		case m.Device:
			rec.Device = stringify(value)
		case m.Time:
			rec.Timestamp = parseTimestamp(value)
		default:
			rec.Extra[key] = value
		}
	}
	return rec
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// parseTimestamp accepts the formats the upstream store emits: RFC 3339
// strings (with or without fractional seconds) or a numeric epoch.
func parseTimestamp(value any) time.Time {
	switch v := value.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case int64:
		return time.Unix(v, 0).UTC()
	}
	return time.Time{}
}
