package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
)

// commandResult is the single-resolution outcome of a pending request.
type commandResult struct {
	raw json.RawMessage
	err error
}

// pendingRequest tracks one in-flight command awaiting its correlated
// result. The slot channel is buffered so resolution never blocks the
// listen loop, even when the caller already gave up waiting.
type pendingRequest struct {
	command string
	slot    chan commandResult
}

// pendingRegistry correlates outgoing commands with their eventual
// results via monotonically assigned message ids. Safe for concurrent
// use; every entry is resolved exactly once and removed.
type pendingRegistry struct {
	logger *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pendingRequest
}

func newPendingRegistry(logger *slog.Logger) *pendingRegistry {
	return &pendingRegistry{
		logger:  logger,
		pending: make(map[uint64]*pendingRequest),
	}
}

// register allocates the next message id and installs a pending slot for
// it. Ids are unique for the registry's lifetime; a collision would be a
// programming error and panics.
func (r *pendingRegistry) register(command string) (uint64, <-chan commandResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	if _, exists := r.pending[id]; exists {
		panic(fmt.Sprintf("pending request id %d already registered", id))
	}
	slot := make(chan commandResult, 1)
	r.pending[id] = &pendingRequest{command: command, slot: slot}
	return id, slot
}

// discard removes an entry that was registered but whose command frame
// never made it onto the wire.
func (r *pendingRegistry) discard(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// succeed resolves the pending request with the server's result payload.
// An unknown id is a protocol anomaly (stale or duplicate response) and
// is logged, never fatal.
func (r *pendingRegistry) succeed(id uint64, result json.RawMessage) {
	r.resolve(id, commandResult{raw: result})
}

// fail resolves the pending request with the server's error payload,
// attributed to the originating command.
func (r *pendingRegistry) fail(id uint64, code, details string) {
	r.mu.Lock()
	req, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("received error for unknown message id", "message_id", id, "error_code", code)
		return
	}
	req.slot <- commandResult{err: &api.CommandError{Command: req.command, Code: code, Details: details}}
}

func (r *pendingRegistry) resolve(id uint64, res commandResult) {
	r.mu.Lock()
	req, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("received result for unknown message id", "message_id", id)
		return
	}
	req.slot <- res
}

// resolveAll resolves every outstanding entry with the given error, in
// unspecified order. Used at disconnect; the registry is empty
// afterwards.
func (r *pendingRegistry) resolveAll(err error) {
	r.mu.Lock()
	outstanding := r.pending
	r.pending = make(map[uint64]*pendingRequest)
	r.mu.Unlock()
	for id, req := range outstanding {
		r.logger.Debug("resolving outstanding request", "message_id", id, "command", req.command, "error", err)
		req.slot <- commandResult{err: err}
	}
}

// size returns the number of in-flight requests.
func (r *pendingRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
