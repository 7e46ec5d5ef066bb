package messaging

import (
	"context"
	"sync"

	"github.com/glimte/contact-sync-go/contracts"
)

// CallbackHandler processes one SyncCallback per invocation. A handler
// error is logged by the listener and never prevents acknowledgment.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, callback *contracts.SyncCallback) error
}

// CallbackHandlerFunc adapts a function to CallbackHandler.
type CallbackHandlerFunc func(ctx context.Context, callback *contracts.SyncCallback) error

// HandleCallback implements CallbackHandler.
func (f CallbackHandlerFunc) HandleCallback(ctx context.Context, callback *contracts.SyncCallback) error {
	return f(ctx, callback)
}

// CollectingHandler records every callback it sees, keyed by contact id.
// Correlation against published requests is the caller's concern; callbacks
// for ids that were never published are recorded like any other.
type CollectingHandler struct {
	mu        sync.Mutex
	callbacks map[string][]*contracts.SyncCallback
	count     int
}

// NewCollectingHandler creates an empty collecting handler.
func NewCollectingHandler() *CollectingHandler {
	return &CollectingHandler{
		callbacks: make(map[string][]*contracts.SyncCallback),
	}
}

// HandleCallback implements CallbackHandler.
func (h *CollectingHandler) HandleCallback(ctx context.Context, callback *contracts.SyncCallback) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.callbacks[callback.ContactID] = append(h.callbacks[callback.ContactID], callback)
	h.count++
	return nil
}

// Callbacks returns the callbacks recorded for a contact id, in arrival
// order.
func (h *CollectingHandler) Callbacks(contactID string) []*contracts.SyncCallback {
	h.mu.Lock()
	defer h.mu.Unlock()

	recorded := h.callbacks[contactID]
	out := make([]*contracts.SyncCallback, len(recorded))
	copy(out, recorded)
	return out
}

// ContactIDs returns the distinct contact ids seen so far.
func (h *CollectingHandler) ContactIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.callbacks))
	for id := range h.callbacks {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the total number of callbacks recorded.
func (h *CollectingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
