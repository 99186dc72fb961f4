package pipeline

import (
	"fmt"

	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/registry"
	"github.com/kamilpajak/labsight/pkg/models"
)

func displayName(d registry.Descriptor) string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ID
}

func successGuidance(r Route) string {
	if !r.TwoStage {
		return fmt.Sprintf("%s read the uploaded report and interpreted the lab values in a single pass.",
			displayName(r.Analysis))
	}
	return fmt.Sprintf("Two models were used: %s cannot read images or PDFs, so %s extracted the lab values from the report and %s interpreted them.",
		displayName(r.Analysis), displayName(r.Extraction), displayName(r.Analysis))
}

func failureGuidance(stage models.Stage, code string, r Route) string {
	switch stage {
	case models.StageExtraction:
		if code == core.CodeNoLabValues {
			return fmt.Sprintf("%s found no numeric lab values in the file. Check that the upload is a lab result report, or enter the values manually.",
				displayName(r.Extraction))
		}
		return fmt.Sprintf("%s could not read lab values from the file. Check that the upload is a legible lab report, or try again with a different vision-capable model.",
			displayName(r.Extraction))
	case models.StageAnalysis:
		return fmt.Sprintf("The lab values were extracted, but %s could not interpret them. Review the values below and retry the analysis or choose another model.",
			displayName(r.Analysis))
	default:
		return "The analysis could not be started."
	}
}
