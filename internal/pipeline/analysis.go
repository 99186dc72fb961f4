package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/llm"
	"github.com/kamilpajak/labsight/internal/logging"
	"github.com/kamilpajak/labsight/pkg/models"
	"github.com/rs/zerolog"
)

// AnalysisContext is the optional clinical context sent with lab values.
type AnalysisContext struct {
	PatientContext string
	Guidance       string
}

// Analyst interprets lab values with one model call.
type Analyst struct {
	logger zerolog.Logger
}

// NewAnalyst creates an Analyst.
func NewAnalyst(logger zerolog.Logger) *Analyst {
	return &Analyst{logger: logger}
}

// Analyze asks client to interpret values. Fields missing from an otherwise
// valid response default to empty values.
func (a *Analyst) Analyze(ctx context.Context, client llm.Client, values []models.LabValue, c AnalysisContext) (*models.Interpretation, error) {
	resp, err := client.Complete(ctx, llm.Request{
		System: analysisSystemPrompt,
		Prompt: BuildAnalysisPrompt(values, c),
	})
	if err != nil {
		return nil, callFailure(ctx, err, core.ErrAnalysis, "analysis")
	}

	switch out := ParseObject(resp.Content).(type) {
	case Malformed:
		return nil, core.ErrAnalysis(core.CodeMalformed, "analysis model returned unreadable output").
			WithDiagnostic(logging.Excerpt(out.Raw, diagnosticLimit))
	case Parsed:
		a.logger.Debug().
			Str("model", client.Model()).
			Bool("recovered", out.Recovered).
			Int("input_tokens", resp.InputTokens).
			Int("output_tokens", resp.OutputTokens).
			Msg("analysis parsed")
		return interpretationFrom(out.Object), nil
	}
	return nil, errors.New("unreachable parse outcome")
}

func interpretationFrom(obj map[string]any) *models.Interpretation {
	return &models.Interpretation{
		Interpretation:  stringValue(obj["interpretation"]),
		Abnormalities:   objectList(obj["abnormalities"]),
		Recommendations: stringList(obj["recommendations"]),
		Reasoning:       stringValue(obj["reasoning"]),
		ReferenceRanges: objectList(obj["reference_ranges"]),
		ConfidenceScore: confidence(obj["confidence_score"]),
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return fmt.Sprint(s)
	}
}

// stringList keeps strings and renders other scalar entries as text.
func stringList(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		if s := stringValue(v); s != "" {
			out = append(out, s)
		}
		return out
	}
	for _, item := range items {
		if s := stringValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// objectList keeps objects and wraps other entries as {"description": ...}.
func objectList(v any) []map[string]any {
	out := []map[string]any{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		switch o := item.(type) {
		case map[string]any:
			out = append(out, o)
		case nil:
		default:
			out = append(out, map[string]any{"description": stringValue(o)})
		}
	}
	return out
}

func confidence(v any) *float64 {
	if v == nil {
		return nil
	}
	f, ok := toNumber(v)
	if !ok {
		return nil
	}
	return &f
}
