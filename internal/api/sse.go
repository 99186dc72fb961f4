package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/kamilpajak/labsight/internal/pipeline"
)

// sseEmitter implements pipeline.ProgressEmitter by writing Server-Sent Events.
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEEmitter creates an sseEmitter for the given ResponseWriter.
// Returns nil if the writer does not support flushing.
func newSSEEmitter(w http.ResponseWriter) *sseEmitter {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &sseEmitter{w: w, flusher: f}
}

// Emit writes a progress event as an SSE event and flushes.
func (e *sseEmitter) Emit(ev pipeline.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Type, data)
	e.flusher.Flush()
}

// holdingEmitter forwards state events and keeps the terminal event back so
// the caller can attach the persisted analysis id before sending it.
type holdingEmitter struct {
	next     pipeline.ProgressEmitter
	terminal *pipeline.ProgressEvent
}

func (h *holdingEmitter) Emit(ev pipeline.ProgressEvent) {
	if ev.Type == "done" || ev.Type == "error" {
		held := ev
		h.terminal = &held
		return
	}
	h.next.Emit(ev)
}

// release sends the held terminal event, if any.
func (h *holdingEmitter) release(analysisID string) {
	if h.terminal == nil {
		return
	}
	h.terminal.AnalysisID = analysisID
	h.next.Emit(*h.terminal)
	h.terminal = nil
}
