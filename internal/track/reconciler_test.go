package track

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gander-tools/owntracks-dataviewer/internal/crypto"
	"github.com/gander-tools/owntracks-dataviewer/internal/gateway"
	"github.com/gander-tools/owntracks-dataviewer/internal/pipeline"
)

const testPassword = "payload-secret"

func encryptedRecord(t *testing.T, id string, lat, lon float64) gateway.Record {
	t.Helper()
	plaintext := fmt.Sprintf(`{"_type":"location","lat":%g,"lon":%g}`, lat, lon)
	token, err := crypto.Encrypt(plaintext, testPassword)
	require.NoError(t, err)
	return gateway.Record{ID: id, Ciphertext: token, Device: "phone"}
}

func TestReconciler_WindowCap(t *testing.T) {
	r := NewReconciler(pipeline.New(0), 0)

	for i := 1; i <= 6; i++ {
		r.Push("phone", gateway.Record{ID: fmt.Sprintf("locations:%d", i)})
	}

	window := r.Window("phone")
	require.Len(t, window, WindowCap)
	// Newest first: arrivals 6 down to 2, arrival 1 evicted.
	for i, rec := range window {
		require.Equal(t, fmt.Sprintf("locations:%d", 6-i), rec.ID)
	}
}

func TestReconciler_ReplaceWindowTruncates(t *testing.T) {
	r := NewReconciler(pipeline.New(0), 0)

	records := make([]gateway.Record, 8)
	for i := range records {
		records[i] = gateway.Record{ID: fmt.Sprintf("locations:%d", i)}
	}
	r.ReplaceWindow("phone", records)

	require.Len(t, r.Window("phone"), WindowCap)
}

func TestReconciler_ReplaceThenPush(t *testing.T) {
	r := NewReconciler(pipeline.New(0), 0)

	r.ReplaceWindow("phone", []gateway.Record{{ID: "locations:bulk"}})
	r.Push("phone", gateway.Record{ID: "locations:live"})

	window := r.Window("phone")
	require.Equal(t, "locations:live", window[0].ID)
	require.Equal(t, "locations:bulk", window[1].ID)
}

func TestReconciler_Devices(t *testing.T) {
	r := NewReconciler(pipeline.New(0), 0)

	r.Push("tablet", gateway.Record{ID: "locations:1"})
	r.Push("phone", gateway.Record{ID: "locations:2"})

	require.Equal(t, []string{"phone", "tablet"}, r.Devices())
}

func TestReconciler_FilteredPath(t *testing.T) {
	pipe := pipeline.New(0)
	r := NewReconciler(pipe, 0)

	// Newest-first: a distant outlier would break the chain, but all
	// three sit ~111 m apart.
	records := []gateway.Record{
		encryptedRecord(t, "locations:3", 0.002, 0),
		encryptedRecord(t, "locations:2", 0.001, 0),
		encryptedRecord(t, "locations:1", 0, 0),
	}
	pipe.Refresh(context.Background(), records, testPassword)
	r.ReplaceWindow("phone", records)

	path := r.FilteredPath("phone")

	require.Len(t, path, 3)
	// Chronological order for drawing.
	require.Equal(t, "locations:1", path[0].ID)
	require.Equal(t, "locations:3", path[2].ID)
}

func TestReconciler_FilteredPathDropsUndecrypted(t *testing.T) {
	pipe := pipeline.New(0)
	r := NewReconciler(pipe, 0)

	good := encryptedRecord(t, "locations:good", 0, 0)
	bad := gateway.Record{ID: "locations:bad", Ciphertext: "not-base64!!", Device: "phone"}
	pipe.Refresh(context.Background(), []gateway.Record{good, bad}, testPassword)
	r.ReplaceWindow("phone", []gateway.Record{bad, good})

	path := r.FilteredPath("phone")

	require.Len(t, path, 1)
	require.Equal(t, "locations:good", path[0].ID)
}

func TestReconciler_FilteredPathSkipsMissingCoordinates(t *testing.T) {
	pipe := pipeline.New(0)
	r := NewReconciler(pipe, 0)

	token, err := crypto.Encrypt(`{"_type":"lwt"}`, testPassword)
	require.NoError(t, err)
	noCoords := gateway.Record{ID: "locations:lwt", Ciphertext: token, Device: "phone"}
	good := encryptedRecord(t, "locations:good", 0, 0)

	pipe.Refresh(context.Background(), []gateway.Record{noCoords, good}, testPassword)
	r.ReplaceWindow("phone", []gateway.Record{noCoords, good})

	path := r.FilteredPath("phone")

	require.Len(t, path, 1)
	require.Equal(t, "locations:good", path[0].ID)
}

func TestReconciler_FilteredPathIdempotent(t *testing.T) {
	pipe := pipeline.New(0)
	r := NewReconciler(pipe, 0)

	records := []gateway.Record{
		encryptedRecord(t, "locations:2", 0.001, 0),
		encryptedRecord(t, "locations:1", 0, 0),
	}
	pipe.Refresh(context.Background(), records, testPassword)
	r.ReplaceWindow("phone", records)

	first := r.FilteredPath("phone")
	second := r.FilteredPath("phone")

	require.Equal(t, first, second)
}

func TestReconciler_OnChange(t *testing.T) {
	r := NewReconciler(pipeline.New(0), 0)

	var changed []string
	r.OnChange(func(device string) { changed = append(changed, device) })

	r.ReplaceWindow("phone", []gateway.Record{{ID: "locations:1"}})
	r.Push("tablet", gateway.Record{ID: "locations:2"})

	require.Equal(t, []string{"phone", "tablet"}, changed)
}

func TestReconciler_UnknownDevice(t *testing.T) {
	r := NewReconciler(pipeline.New(0), 0)

	require.Empty(t, r.Window("ghost"))
	require.Empty(t, r.FilteredPath("ghost"))
}
