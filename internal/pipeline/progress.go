package pipeline

import (
	"fmt"
	"io"

	"github.com/kamilpajak/labsight/pkg/models"
)

// State is a position in the pipeline state machine.
type State string

const (
	StateIdle       State = "idle"
	StateRouting    State = "routing"
	StateExtracting State = "extracting"
	StateExtracted  State = "extracted"
	StateAnalyzing  State = "analyzing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// ProgressEvent represents a single progress update during a pipeline run.
type ProgressEvent struct {
	Type       string                 `json:"type"`                  // "state", "done", "error"
	State      State                  `json:"state,omitempty"`       // new state
	Model      string                 `json:"model,omitempty"`       // model engaged by this state
	Message    string                 `json:"message,omitempty"`     // human-readable message
	Count      int                    `json:"count,omitempty"`       // lab values extracted
	Result     *models.PipelineResult `json:"result,omitempty"`      // final result (for "done" and "error")
	AnalysisID string                 `json:"analysis_id,omitempty"` // set by callers that persist the result
}

// ProgressEmitter receives progress events during a pipeline run.
type ProgressEmitter interface {
	Emit(event ProgressEvent)
}

type nopEmitter struct{}

func (nopEmitter) Emit(ProgressEvent) {}

// TextEmitter formats progress events as human-readable text for CLI output.
type TextEmitter struct {
	W io.Writer
}

// Emit writes a formatted progress line to the underlying writer.
func (e *TextEmitter) Emit(ev ProgressEvent) {
	switch ev.Type {
	case "state":
		if ev.Model != "" {
			fmt.Fprintf(e.W, "[%s] %s (%s)\n", ev.State, ev.Message, ev.Model)
			return
		}
		fmt.Fprintf(e.W, "[%s] %s\n", ev.State, ev.Message)
	case "error":
		fmt.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}
