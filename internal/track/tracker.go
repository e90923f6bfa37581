package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gander-tools/owntracks-dataviewer/internal/gateway"
	"github.com/gander-tools/owntracks-dataviewer/internal/pipeline"
	"github.com/gander-tools/owntracks-dataviewer/internal/vault"
)

// Connect dials the remote store and authenticates it with vault
// credentials. Any failure along the way is terminal for the attempt;
// the core does not retry.
func Connect(ctx context.Context, url string, creds vault.Credentials) (*gateway.Client, error) {
	client, err := gateway.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := client.Signin(ctx, creds.Username, creds.Password); err != nil {
		client.Close()
		return nil, fmt.Errorf("gateway signin: %w", err)
	}
	if err := client.Use(ctx, creds.Namespace, creds.Database); err != nil {
		client.Close()
		return nil, fmt.Errorf("gateway use %s/%s: %w", creds.Namespace, creds.Database, err)
	}
	return client, nil
}

// Tracker drives the full flow: bulk fetch of tracked devices and
// their recent records into the pipeline and reconciler, plus one live
// subscription per device.
type Tracker struct {
	conn     gateway.Conn
	queries  gateway.Queries
	pipe     *pipeline.Pipeline
	rec      *Reconciler
	password string
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]string // device -> live handle
}

// NewTracker wires a tracker over an authenticated connection. The
// decryption password comes from the unlocked vault's credential set.
func NewTracker(conn gateway.Conn, queries gateway.Queries, pipe *pipeline.Pipeline, rec *Reconciler, decryptPassword string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		conn:     conn,
		queries:  queries,
		pipe:     pipe,
		rec:      rec,
		password: decryptPassword,
		logger:   logger,
		subs:     make(map[string]string),
	}
}

// Reconciler exposes the tracker's reconciler for consumers of the
// filtered paths.
func (t *Tracker) Reconciler() *Reconciler {
	return t.rec
}

// Start performs a bulk refresh and subscribes to every tracked
// device.
func (t *Tracker) Start(ctx context.Context) error {
	devices, err := t.Refresh(ctx)
	if err != nil {
		return err
	}
	for _, device := range devices {
		if err := t.Subscribe(ctx, device); err != nil {
			return err
		}
	}
	return nil
}

// Refresh fetches the tracked-device list and each device's most
// recent records, re-runs the decrypt pipeline over all of them, and
// replaces every device window. Returns the devices seen.
func (t *Tracker) Refresh(ctx context.Context) ([]string, error) {
	stmt, vars := t.queries.DistinctDevices()
	rows, err := t.conn.Query(ctx, stmt, vars)
	if err != nil {
		return nil, fmt.Errorf("fetching device list: %w", err)
	}
	devices := t.queries.Devices(rows)

	var all []gateway.Record
	perDevice := make(map[string][]gateway.Record, len(devices))
	for _, device := range devices {
		stmt, vars := t.queries.LastForDevice(device, WindowCap)
		rows, err := t.conn.Query(ctx, stmt, vars)
		if err != nil {
			return nil, fmt.Errorf("fetching records for %s: %w", device, err)
		}
		records := make([]gateway.Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, t.queries.Fields.RecordFromRow(row))
		}
		perDevice[device] = records
		all = append(all, records...)
	}

	t.pipe.Refresh(ctx, all, t.password)
	for device, records := range perDevice {
		t.rec.ReplaceWindow(device, records)
	}
	t.logger.Debug("bulk refresh complete", "devices", len(devices), "records", len(all))
	return devices, nil
}

// Subscribe registers a live subscription for one device. An existing
// subscription for the device is cancelled first, so a reconnect never
// leaves a stale handle delivering duplicate events.
func (t *Tracker) Subscribe(ctx context.Context, device string) error {
	t.mu.Lock()
	stale, ok := t.subs[device]
	delete(t.subs, device)
	t.mu.Unlock()
	if ok {
		if err := t.conn.Kill(ctx, stale); err != nil {
			t.logger.Warn("cancelling stale subscription", "device", device, "error", err)
		}
	}

	handle, err := t.conn.Live(ctx, t.queries.Table, func(kind gateway.EventKind, row map[string]any) {
		t.onLiveEvent(device, kind, row)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", device, err)
	}

	t.mu.Lock()
	t.subs[device] = handle
	t.mu.Unlock()
	return nil
}

// onLiveEvent handles one pushed row change. Only creations and
// updates carrying this device's identifier and a ciphertext are
// ingested.
func (t *Tracker) onLiveEvent(device string, kind gateway.EventKind, row map[string]any) {
	if kind != gateway.EventCreated && kind != gateway.EventUpdated {
		return
	}
	rec := t.queries.Fields.RecordFromRow(row)
	if rec.Device != device || rec.Ciphertext == "" {
		return
	}

	t.pipe.DecryptOne(rec, t.password)
	t.rec.Push(device, rec)
	t.logger.Debug("live arrival", "device", device, "record", rec.ID, "kind", kind.String())
}

// TeardownAll attempts to cancel every live subscription, continuing
// past individual failures, then clears the handle set unconditionally.
func (t *Tracker) TeardownAll(ctx context.Context) error {
	t.mu.Lock()
	subs := t.subs
	t.subs = make(map[string]string)
	t.mu.Unlock()

	var errs []error
	for device, handle := range subs {
		if err := t.conn.Kill(ctx, handle); err != nil {
			t.logger.Warn("cancelling subscription", "device", device, "error", err)
			errs = append(errs, fmt.Errorf("kill %s: %w", device, err))
		}
	}
	return errors.Join(errs...)
}

// Stop tears down all subscriptions and closes the connection.
func (t *Tracker) Stop(ctx context.Context) error {
	err := t.TeardownAll(ctx)
	if cerr := t.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
