package pipeline

import (
	"context"
	"errors"

	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/llm"
	"github.com/kamilpajak/labsight/internal/logging"
	"github.com/kamilpajak/labsight/pkg/models"
	"github.com/rs/zerolog"
)

// diagnosticLimit bounds model output attached to stage failures.
const diagnosticLimit = 200

// Extractor reads lab values out of a file with one vision model call.
type Extractor struct {
	logger zerolog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract sends f to client and returns the validated lab values. An empty
// slice is a valid result.
func (e *Extractor) Extract(ctx context.Context, client llm.Client, f File) ([]models.LabValue, error) {
	resp, err := client.Complete(ctx, llm.Request{
		System: extractionSystemPrompt,
		Prompt: extractionPrompt,
		Attachment: &llm.Attachment{
			Data:     f.Data,
			MimeType: f.MimeType,
			Filename: f.Filename,
		},
	})
	if err != nil {
		return nil, callFailure(ctx, err, core.ErrExtraction, "extraction")
	}

	switch out := ParseObject(resp.Content).(type) {
	case Malformed:
		return nil, core.ErrExtraction(core.CodeMalformed, "extraction model returned unreadable output").
			WithDiagnostic(logging.Excerpt(out.Raw, diagnosticLimit))
	case Parsed:
		raw, present := out.Object["lab_values"]
		if !present {
			return nil, core.ErrExtraction(core.CodeMalformed, "extraction output has no lab_values").
				WithDiagnostic(logging.Excerpt(resp.Content, diagnosticLimit))
		}
		if raw == nil {
			return []models.LabValue{}, nil
		}
		candidates, ok := raw.([]any)
		if !ok {
			return nil, core.ErrExtraction(core.CodeMalformed, "extraction output lab_values is not a list").
				WithDiagnostic(logging.Excerpt(resp.Content, diagnosticLimit))
		}

		values := ValidateLabValues(candidates)
		e.logger.Debug().
			Str("model", client.Model()).
			Int("candidates", len(candidates)).
			Int("valid", len(values)).
			Bool("recovered", out.Recovered).
			Int("input_tokens", resp.InputTokens).
			Int("output_tokens", resp.OutputTokens).
			Msg("extraction parsed")
		return values, nil
	}
	return nil, errors.New("unreachable parse outcome")
}

// callFailure converts a provider error into a stage failure, distinguishing
// timeouts from other call errors.
func callFailure(ctx context.Context, err error, mk func(code, reason string) *core.DomainError, stage string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return mk(core.CodeTimeout, stage+" model call timed out").
			WithCause(err).
			WithDiagnostic(logging.Excerpt(err.Error(), diagnosticLimit))
	}
	return mk(core.CodeCallFailed, stage+" model call failed").
		WithCause(err).
		WithDiagnostic(logging.Excerpt(err.Error(), diagnosticLimit))
}
