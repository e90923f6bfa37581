package gateway

import (
	"fmt"
	"strings"
	"time"
)

// Bulk query result caps. Every unbounded shape carries a LIMIT inside
// this range to bound memory.
const (
	minFetchLimit = 100
	maxFetchLimit = 1000
)

// Queries builds the statements the viewer issues. Table and field
// identifiers come from trusted configuration and are interpolated;
// every user- or data-supplied value travels as a named parameter.
type Queries struct {
	Table  string
	Fields FieldMap
	Limit  int
}

func (q Queries) limit() int {
	switch {
	case q.Limit < minFetchLimit:
		return minFetchLimit
	case q.Limit > maxFetchLimit:
		return maxFetchLimit
	default:
		return q.Limit
	}
}

// RecentSince selects all decryptable rows newer than the given
// instant, newest first.
func (q Queries) RecentSince(since time.Time) (string, map[string]any) {
	stmt := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s != NONE AND %s >= $since ORDER BY %s DESC LIMIT %d",
		q.Table, q.Fields.Ciphertext, q.Fields.Time, q.Fields.Time, q.limit(),
	)
	return stmt, map[string]any{"since": since.UTC().Format(time.RFC3339)}
}

// LastForDevice selects the n most recent rows for one device, newest
// first. n is the reconciler's window size, not the bulk cap.
func (q Queries) LastForDevice(device string, n int) (string, map[string]any) {
	stmt := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s != NONE AND %s = $device ORDER BY %s DESC LIMIT %d",
		q.Table, q.Fields.Ciphertext, q.Fields.Device, q.Fields.Time, n,
	)
	return stmt, map[string]any{"device": device}
}

// ByDateRange selects rows inside an inclusive timestamp range, newest
// first.
func (q Queries) ByDateRange(from, to time.Time) (string, map[string]any) {
	stmt := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s != NONE AND %s >= $from AND %s <= $to ORDER BY %s DESC LIMIT %d",
		q.Table, q.Fields.Ciphertext, q.Fields.Time, q.Fields.Time, q.Fields.Time, q.limit(),
	)
	return stmt, map[string]any{
		"from": from.UTC().Format(time.RFC3339),
		"to":   to.UTC().Format(time.RFC3339),
	}
}

// Filtered combines an optional device filter and an optional inclusive
// date range with AND, newest first.
func (q Queries) Filtered(device string, from, to *time.Time) (string, map[string]any) {
	conds := []string{fmt.Sprintf("%s != NONE", q.Fields.Ciphertext)}
	vars := map[string]any{}

	if device != "" {
		conds = append(conds, fmt.Sprintf("%s = $device", q.Fields.Device))
		vars["device"] = device
	}
	if from != nil {
		conds = append(conds, fmt.Sprintf("%s >= $from", q.Fields.Time))
		vars["from"] = from.UTC().Format(time.RFC3339)
	}
	if to != nil {
		conds = append(conds, fmt.Sprintf("%s <= $to", q.Fields.Time))
		vars["to"] = to.UTC().Format(time.RFC3339)
	}

	stmt := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s ORDER BY %s DESC LIMIT %d",
		q.Table, strings.Join(conds, " AND "), q.Fields.Time, q.limit(),
	)
	return stmt, vars
}

// DistinctDevices selects the distinct device identifiers present in
// the table.
func (q Queries) DistinctDevices() (string, map[string]any) {
	stmt := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s != NONE GROUP BY %s",
		q.Fields.Device, q.Table, q.Fields.Device, q.Fields.Device,
	)
	return stmt, map[string]any{}
}

// Devices extracts the device identifiers from DistinctDevices rows.
func (q Queries) Devices(rows []map[string]any) []string {
	devices := make([]string, 0, len(rows))
	for _, row := range rows {
		if d := stringify(row[q.Fields.Device]); d != "" {
			devices = append(devices, d)
		}
	}
	return devices
}
