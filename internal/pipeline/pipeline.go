// Package pipeline incrementally decrypts location records. Work is
// chunked into batches with a yield between them so a large refresh
// never monopolizes the scheduler, and a refresh started while another
// is in flight abandons the older one wholesale.
package pipeline

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"

	"github.com/gander-tools/owntracks-dataviewer/internal/crypto"
	"github.com/gander-tools/owntracks-dataviewer/internal/gateway"
)

const defaultBatchSize = 25

// Outcome is the terminal decrypt result for one record id: either a
// decoded location object or a failure message. Failures are data, not
// errors; one bad record never aborts a refresh.
type Outcome struct {
	Location map[string]any
	Err      string
}

// Decrypted reports whether the outcome carries a decoded location.
func (o Outcome) Decrypted() bool {
	return o.Err == ""
}

// Pipeline owns the outcome map. All mutation goes through Refresh and
// DecryptOne.
type Pipeline struct {
	mu        sync.Mutex
	outcomes  map[string]Outcome
	cancel    context.CancelFunc
	batchSize int
	hooks     []func()
}

// New creates a pipeline. batchSize <= 0 selects the default.
func New(batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{
		outcomes:  make(map[string]Outcome),
		batchSize: batchSize,
	}
}

// OnBatch registers a hook invoked after each completed batch. Hooks
// run on the refreshing goroutine, outside the pipeline lock.
func (p *Pipeline) OnBatch(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, fn)
}

// Refresh clears all prior outcomes and decrypts the given records in
// batches. A Refresh issued while another is running cancels it: the
// older run writes nothing further (last writer wins at refresh
// granularity). The passed context additionally cancels this run.
func (p *Pipeline) Refresh(ctx context.Context, records []gateway.Record, password string) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	// Stale outcomes from a previous password attempt must not linger.
	p.outcomes = make(map[string]Outcome, len(records))
	p.mu.Unlock()

	for start := 0; start < len(records); start += p.batchSize {
		if rctx.Err() != nil {
			return
		}

		end := min(start+p.batchSize, len(records))
		staged := make(map[string]Outcome, end-start)
		for _, rec := range records[start:end] {
			if outcome, ok := decryptRecord(rec, password); ok {
				staged[rec.ID] = outcome
			}
		}

		p.mu.Lock()
		if rctx.Err() != nil {
			p.mu.Unlock()
			return
		}
		for id, outcome := range staged {
			p.outcomes[id] = outcome
		}
		hooks := p.hooks
		p.mu.Unlock()

		for _, fn := range hooks {
			fn()
		}
		// Yield between batches so concurrent work gets a turn.
		runtime.Gosched()
	}
}

// DecryptOne decrypts a single live-arrived record, touching only its
// own outcome. Already-decrypted records are not re-attempted.
func (p *Pipeline) DecryptOne(rec gateway.Record, password string) {
	p.mu.Lock()
	if existing, ok := p.outcomes[rec.ID]; ok && existing.Decrypted() {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	outcome, ok := decryptRecord(rec, password)
	if !ok {
		return
	}

	p.mu.Lock()
	p.outcomes[rec.ID] = outcome
	hooks := p.hooks
	p.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Outcome returns the terminal outcome for a record id, if any.
func (p *Pipeline) Outcome(id string) (Outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	outcome, ok := p.outcomes[id]
	return outcome, ok
}

// Len reports the number of recorded outcomes.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outcomes)
}

// decryptRecord produces the outcome for one record. Records without a
// ciphertext field are skipped entirely (ok == false): no outcome is
// written for them.
func decryptRecord(rec gateway.Record, password string) (Outcome, bool) {
	if rec.Ciphertext == "" {
		return Outcome{}, false
	}

	plaintext, err := crypto.Decrypt(rec.Ciphertext, password)
	if err != nil {
		return Outcome{Err: err.Error()}, true
	}

	var location map[string]any
	if err := json.Unmarshal([]byte(plaintext), &location); err != nil {
		return Outcome{Err: "decoding plaintext: " + err.Error()}, true
	}
	return Outcome{Location: location}, true
}
