package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testQueries() Queries {
	return Queries{
		Table:  "locations",
		Fields: FieldMap{Ciphertext: "data", Device: "device", Time: "created_at"},
		Limit:  500,
	}
}

func TestQueries_RecentSince(t *testing.T) {
	q := testQueries()
	since := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	stmt, vars := q.RecentSince(since)

	require.Equal(t,
		"SELECT * FROM locations WHERE data != NONE AND created_at >= $since ORDER BY created_at DESC LIMIT 500",
		stmt)
	require.Equal(t, map[string]any{"since": "2026-02-01T12:00:00Z"}, vars)
}

func TestQueries_LastForDevice(t *testing.T) {
	stmt, vars := testQueries().LastForDevice("phone", 5)

	require.Equal(t,
		"SELECT * FROM locations WHERE data != NONE AND device = $device ORDER BY created_at DESC LIMIT 5",
		stmt)
	require.Equal(t, map[string]any{"device": "phone"}, vars)
}

func TestQueries_ByDateRange(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	stmt, vars := testQueries().ByDateRange(from, to)

	require.Equal(t,
		"SELECT * FROM locations WHERE data != NONE AND created_at >= $from AND created_at <= $to ORDER BY created_at DESC LIMIT 500",
		stmt)
	require.Equal(t, map[string]any{"from": "2026-02-01T00:00:00Z", "to": "2026-02-02T00:00:00Z"}, vars)
}

func TestQueries_FilteredAllOptional(t *testing.T) {
	stmt, vars := testQueries().Filtered("", nil, nil)

	require.Equal(t,
		"SELECT * FROM locations WHERE data != NONE ORDER BY created_at DESC LIMIT 500",
		stmt)
	require.Empty(t, vars)
}

func TestQueries_FilteredCombined(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	stmt, vars := testQueries().Filtered("phone", &from, &to)

	require.Equal(t,
		"SELECT * FROM locations WHERE data != NONE AND device = $device AND created_at >= $from AND created_at <= $to ORDER BY created_at DESC LIMIT 500",
		stmt)
	require.Equal(t, map[string]any{
		"device": "phone",
		"from":   "2026-02-01T00:00:00Z",
		"to":     "2026-02-02T00:00:00Z",
	}, vars)
}

func TestQueries_DistinctDevices(t *testing.T) {
	stmt, _ := testQueries().DistinctDevices()

	require.Equal(t,
		"SELECT device FROM locations WHERE device != NONE GROUP BY device",
		stmt)
}

func TestQueries_LimitClamped(t *testing.T) {
	q := testQueries()

	q.Limit = 10
	stmt, _ := q.RecentSince(time.Now())
	require.Contains(t, stmt, "LIMIT 100")

	q.Limit = 50000
	stmt, _ = q.RecentSince(time.Now())
	require.Contains(t, stmt, "LIMIT 1000")
}

func TestQueries_Devices(t *testing.T) {
	rows := []map[string]any{
		{"device": "phone"},
		{"device": "tablet"},
		{"device": nil},
		{"other": "x"},
	}

	require.Equal(t, []string{"phone", "tablet"}, testQueries().Devices(rows))
}

func TestFieldMap_RecordFromRow(t *testing.T) {
	fields := FieldMap{Ciphertext: "data", Device: "device", Time: "created_at"}

	rec := fields.RecordFromRow(map[string]any{
		"id":         "locations:abc123",
		"data":       "ciphertext-token",
		"device":     "phone",
		"created_at": "2026-02-01T12:00:00Z",
		"topic":      "owntracks/user/phone",
	})

	require.Equal(t, "locations:abc123", rec.ID)
	require.Equal(t, "ciphertext-token", rec.Ciphertext)
	require.Equal(t, "phone", rec.Device)
	require.Equal(t, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), rec.Timestamp)
	require.Equal(t, map[string]any{"topic": "owntracks/user/phone"}, rec.Extra)
}

func TestFieldMap_RecordFromRowEpochTimestamp(t *testing.T) {
	fields := FieldMap{Ciphertext: "data", Device: "device", Time: "tst"}

	rec := fields.RecordFromRow(map[string]any{"tst": float64(1767225600)})

	require.Equal(t, time.Unix(1767225600, 0).UTC(), rec.Timestamp)
}

func TestFieldMap_RecordFromRowMissingCiphertext(t *testing.T) {
	fields := FieldMap{Ciphertext: "data", Device: "device", Time: "created_at"}

	rec := fields.RecordFromRow(map[string]any{"id": "locations:1", "device": "phone"})

	require.Empty(t, rec.Ciphertext)
}
