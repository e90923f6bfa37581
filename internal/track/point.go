// Package track reconstructs per-device trajectories: it maintains a
// bounded window of recent records per device, merges bulk-fetched
// history with live arrivals, and reduces decrypted samples to a
// spatially meaningful path.
package track

import (
	"math"
	"time"

	"github.com/gander-tools/owntracks-dataviewer/internal/gateway"
	"github.com/gander-tools/owntracks-dataviewer/internal/pipeline"
)

// Point is one decrypted location sample.
type Point struct {
	ID        string
	Device    string
	Timestamp time.Time
	Lat       float64
	Lon       float64
}

// pointFromOutcome builds a Point from a record and its decrypt
// outcome. Records that failed to decrypt, or whose plaintext lacks
// numeric coordinates, yield no point: they are dropped, never kept
// and never used as a filter reference.
func pointFromOutcome(rec gateway.Record, outcome pipeline.Outcome) (Point, bool) {
	if !outcome.Decrypted() {
		return Point{}, false
	}
	lat, latOK := coordinate(outcome.Location["lat"])
	lon, lonOK := coordinate(outcome.Location["lon"])
	if !latOK || !lonOK {
		return Point{}, false
	}
	return Point{
		ID:        rec.ID,
		Device:    rec.Device,
		Timestamp: rec.Timestamp,
		Lat:       lat,
		Lon:       lon,
	}, true
}

func coordinate(value any) (float64, bool) {
	f, ok := value.(float64)
	if !ok || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
