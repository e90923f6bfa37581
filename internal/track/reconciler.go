package track

import (
	"sort"
	"sync"

	"github.com/gander-tools/owntracks-dataviewer/internal/gateway"
	"github.com/gander-tools/owntracks-dataviewer/internal/pipeline"
)

// WindowCap bounds the per-device window of recent records.
const WindowCap = 5

// Reconciler merges bulk-fetched history with live arrivals into
// per-device windows and derives filtered paths from them. Window
// mutation is a critical section: a live arrival racing a bulk
// replacement of the same device serializes on the mutex and applies
// in arrival order, never silently lost.
type Reconciler struct {
	mu      sync.Mutex
	windows map[string][]gateway.Record
	hooks   []func(device string)

	pipe      *pipeline.Pipeline
	threshold float64
}

// NewReconciler creates a reconciler reading decrypt outcomes from the
// given pipeline. threshold <= 0 selects the default.
func NewReconciler(pipe *pipeline.Pipeline, threshold float64) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultThresholdMeters
	}
	return &Reconciler{
		windows:   make(map[string][]gateway.Record),
		pipe:      pipe,
		threshold: threshold,
	}
}

// OnChange registers a hook invoked with the device id after any
// window mutation. Hooks run on the mutating goroutine.
func (r *Reconciler) OnChange(fn func(device string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// ReplaceWindow swaps in a device's freshly fetched window. Records
// are expected newest-first; anything beyond the cap is discarded.
func (r *Reconciler) ReplaceWindow(device string, records []gateway.Record) {
	window := make([]gateway.Record, 0, WindowCap)
	window = append(window, records[:min(len(records), WindowCap)]...)

	r.mu.Lock()
	r.windows[device] = window
	hooks := r.hooks
	r.mu.Unlock()

	r.notify(hooks, device)
}

// Push prepends a live-arrived record to its device's window and
// truncates to the cap.
func (r *Reconciler) Push(device string, rec gateway.Record) {
	r.mu.Lock()
	window := append([]gateway.Record{rec}, r.windows[device]...)
	if len(window) > WindowCap {
		window = window[:WindowCap]
	}
	r.windows[device] = window
	hooks := r.hooks
	r.mu.Unlock()

	r.notify(hooks, device)
}

// Window returns a copy of a device's window, newest-first.
func (r *Reconciler) Window(device string) []gateway.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gateway.Record(nil), r.windows[device]...)
}

// Devices lists devices with a non-empty window, sorted.
func (r *Reconciler) Devices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]string, 0, len(r.windows))
	for device, window := range r.windows {
		if len(window) > 0 {
			devices = append(devices, device)
		}
	}
	sort.Strings(devices)
	return devices
}

// FilteredPath derives a device's displacement-filtered path in
// chronological order. The computation is pure over the current window
// and outcome map, so repeated calls without intervening mutation
// return identical results.
func (r *Reconciler) FilteredPath(device string) []Point {
	window := r.Window(device)

	points := make([]Point, 0, len(window))
	for _, rec := range window {
		outcome, ok := r.pipe.Outcome(rec.ID)
		if !ok {
			continue
		}
		if p, ok := pointFromOutcome(rec, outcome); ok {
			points = append(points, p)
		}
	}
	return FilterByDistance(points, r.threshold)
}

func (r *Reconciler) notify(hooks []func(device string), device string) {
	for _, fn := range hooks {
		fn(device)
	}
}
