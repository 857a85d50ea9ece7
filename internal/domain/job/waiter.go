package job

import (
	"context"
	"sync"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// Outcome is the settled result of a job awaited through the WaiterBridge.
type Outcome struct {
	Result *model.HTTPResult
	Err    error
}

// Handle is returned by Register and settles exactly once.
type Handle struct {
	JobID string

	done   chan Outcome
	bridge *WaiterBridge
}

// Done returns a channel that receives the outcome once the job is settled.
func (h *Handle) Done() <-chan Outcome {
	return h.done
}

// Wait blocks until the job is settled or ctx ends. When ctx ends first the registration is
// dropped; the job itself keeps running.
func (h *Handle) Wait(ctx context.Context) (*model.HTTPResult, error) {
	select {
	case out := <-h.done:
		return out.Result, out.Err
	case <-ctx.Done():
		h.bridge.forget(h)
		return nil, ctx.Err()
	}
}

// WaiterBridge maps job ids to in-memory waiters so callers can await asynchronous completion.
// Waiters do not survive a restart.
type WaiterBridge struct {
	mu      sync.Mutex
	waiters map[string]*Handle
}

// NewWaiterBridge constructs an empty WaiterBridge.
func NewWaiterBridge() *WaiterBridge {
	return &WaiterBridge{waiters: make(map[string]*Handle)}
}

// Register creates a waiter for jobID. Registering an id twice returns the existing handle.
func (b *WaiterBridge) Register(jobID string) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.waiters[jobID]; ok {
		return h
	}
	h := &Handle{JobID: jobID, done: make(chan Outcome, 1), bridge: b}
	b.waiters[jobID] = h
	return h
}

// Resolve settles the waiter for jobID with a result. Unknown or already settled ids are
// ignored; the return value reports whether a waiter was settled.
func (b *WaiterBridge) Resolve(jobID string, result *model.HTTPResult) bool {
	return b.settle(jobID, Outcome{Result: result})
}

// Reject settles the waiter for jobID with an error.
func (b *WaiterBridge) Reject(jobID string, err error) bool {
	return b.settle(jobID, Outcome{Err: err})
}

// RejectAll settles every pending waiter with err and returns how many were settled.
func (b *WaiterBridge) RejectAll(err error) int {
	b.mu.Lock()
	handles := b.waiters
	b.waiters = make(map[string]*Handle)
	b.mu.Unlock()

	for _, h := range handles {
		h.done <- Outcome{Err: err}
	}
	return len(handles)
}

// Pending returns the number of unsettled waiters.
func (b *WaiterBridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

func (b *WaiterBridge) settle(jobID string, out Outcome) bool {
	b.mu.Lock()
	h, ok := b.waiters[jobID]
	if ok {
		delete(b.waiters, jobID)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	// buffered with capacity one and removed from the map above, so this never blocks
	h.done <- out
	return true
}

func (b *WaiterBridge) forget(h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.waiters[h.JobID]; ok && cur == h {
		delete(b.waiters, h.JobID)
	}
}
