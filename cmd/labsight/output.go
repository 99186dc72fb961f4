package labsight

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/kamilpajak/labsight/internal/registry"
	"github.com/kamilpajak/labsight/pkg/models"
)

// printResult writes the run summary to stderr and the report body to stdout.
func printResult(stderr, stdout io.Writer, source string, r *models.PipelineResult) {
	dim := color.New(color.FgHiBlack)
	bold := color.New(color.Bold)

	fmt.Fprintln(stderr)
	_, _ = dim.Fprintln(stderr, "  "+strings.Repeat("━", 50))
	_, _ = bold.Fprintf(stderr, "  %s\n", source)
	printModels(stderr, r)

	if r.Status == models.StatusError {
		red := color.New(color.FgRed)
		_, _ = red.Fprintf(stderr, "  Failed during %s: %s\n", r.FailedStage, r.Error)
	}
	if r.UserGuidance != "" {
		_, _ = dim.Fprintf(stderr, "  %s\n", r.UserGuidance)
	}
	fmt.Fprintln(stderr)

	if len(r.LabValues) > 0 {
		printLabValues(stdout, r.LabValues)
		fmt.Fprintln(stdout)
	}
	if r.Analysis != nil {
		printInterpretation(stdout, r.Analysis)
	}
}

func printModels(w io.Writer, r *models.PipelineResult) {
	dim := color.New(color.FgHiBlack)
	if r.TwoStagePipeline {
		_, _ = dim.Fprintf(w, "  Extraction: %s  Analysis: %s\n", r.ExtractionModel, r.AnalysisModel)
		return
	}
	_, _ = dim.Fprintf(w, "  Model: %s\n", r.AnalysisModel)
}

func printLabValues(w io.Writer, values []models.LabValue) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed, color.Bold)

	_, _ = bold.Fprintln(w, "LAB VALUES")
	width := 0
	for _, v := range values {
		if len(v.TestName) > width {
			width = len(v.TestName)
		}
	}
	for _, v := range values {
		line := fmt.Sprintf("%-*s  %s %s", width, v.TestName, formatNumber(v.Value), v.Unit)
		if rng := formatRange(v.ReferenceMin, v.ReferenceMax); rng != "" {
			line += "  (" + rng + ")"
		}
		if v.IsAbnormal {
			_, _ = red.Fprintln(w, line+"  !")
			continue
		}
		fmt.Fprintln(w, line)
	}
}

func printInterpretation(w io.Writer, a *models.Interpretation) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintln(w, "INTERPRETATION")
	fmt.Fprintln(w, a.Interpretation)
	fmt.Fprintln(w)

	if len(a.Abnormalities) > 0 {
		_, _ = bold.Fprintln(w, "ABNORMALITIES")
		for _, ab := range a.Abnormalities {
			fmt.Fprintf(w, "- %s\n", describeEntry(ab))
		}
		fmt.Fprintln(w)
	}

	if len(a.Recommendations) > 0 {
		_, _ = bold.Fprintln(w, "RECOMMENDATIONS")
		for _, rec := range a.Recommendations {
			fmt.Fprintf(w, "- %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	if a.Reasoning != "" {
		_, _ = bold.Fprintln(w, "REASONING")
		fmt.Fprintln(w, a.Reasoning)
		fmt.Fprintln(w)
	}

	if a.ConfidenceScore != nil {
		printConfidenceBar(w, *a.ConfidenceScore)
	}
	_, _ = dim.Fprintln(w, "For clinical decision support only. Verify against the source report.")
}

func printConfidenceBar(w io.Writer, score float64) {
	const barWidth = 24
	pct := int(math.Round(score * 100))
	if score > 1 {
		// Some models answer on a 0-100 scale
		pct = int(math.Round(score))
	}
	filled := pct * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}

	var barColor *color.Color
	switch {
	case pct >= 80:
		barColor = color.New(color.FgGreen)
	case pct >= 40:
		barColor = color.New(color.FgYellow)
	default:
		barColor = color.New(color.FgRed)
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(w, "Confidence: %d%% ", pct)
	_, _ = barColor.Fprintln(w, bar)
}

// describeEntry renders a free-form abnormality as one line.
func describeEntry(m map[string]any) string {
	if d, ok := m["description"].(string); ok && len(m) == 1 {
		return d
	}

	name := ""
	for _, k := range []string{"test_name", "test", "name", "parameter"} {
		if s, ok := m[k].(string); ok && s != "" {
			name = s
			break
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		v := m[k]
		if s, ok := v.(string); ok && s == name {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", k, v))
	}
	if name == "" {
		return strings.Join(parts, ", ")
	}
	if len(parts) == 0 {
		return name
	}
	return name + " (" + strings.Join(parts, ", ") + ")"
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatRange(min, max *float64) string {
	switch {
	case min != nil && max != nil:
		return formatNumber(*min) + "-" + formatNumber(*max)
	case min != nil:
		return ">= " + formatNumber(*min)
	case max != nil:
		return "<= " + formatNumber(*max)
	}
	return ""
}

// printModelList writes the catalogue with availability markers.
func printModelList(w io.Writer, listings []registry.Listing, defaultVision string) {
	green := color.New(color.FgGreen)
	dim := color.New(color.FgHiBlack)

	for _, l := range listings {
		mark := dim.Sprint("-")
		if l.Available {
			mark = green.Sprint("✓")
		}
		vision := ""
		if l.HasVision {
			vision = " [vision]"
		}
		if l.ID == defaultVision {
			vision += " [default extractor]"
		}
		fmt.Fprintf(w, "%s %-18s %-12s %s%s\n", mark, l.ID, l.Provider, l.DisplayName, vision)
		if len(l.RecommendedFor) > 0 {
			_, _ = dim.Fprintf(w, "  recommended for: %s\n", strings.Join(l.RecommendedFor, ", "))
		}
	}
}
