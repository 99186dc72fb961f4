package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kamilpajak/labsight/pkg/models"
)

const extractionSystemPrompt = `You are a meticulous medical laboratory data extractor. You read lab result documents and transcribe every numeric test result exactly as printed. You never interpret, summarize or guess values.`

const extractionPrompt = `Extract every numeric lab test result from the attached document.

Respond with a single JSON object and nothing else, using exactly this structure:
{
  "lab_values": [
    {
      "test_name": "Glucose",
      "value": 115,
      "unit": "mg/dL",
      "reference_min": 70,
      "reference_max": 100,
      "is_abnormal": true
    }
  ]
}

Rules:
- "value", "reference_min" and "reference_max" must be plain numbers without units or comparison signs.
- Use null for a reference bound that is not printed.
- Set "is_abnormal" to true when the report flags the result or it lies outside the printed range.
- Skip qualitative results (for example "negative" or "trace") that have no numeric value.
- If the document contains no numeric results, return {"lab_values": []}.`

const analysisSystemPrompt = `You are an experienced clinical pathologist assisting a physician. You interpret laboratory results in their clinical context, point out abnormal findings and suggest sensible next steps. Your output supports, and never replaces, the physician's judgement.`

const analysisInstructions = `Interpret the lab results above.

Respond with a single JSON object and nothing else, using exactly this structure:
{
  "interpretation": "Overall clinical interpretation in a few sentences",
  "abnormalities": [
    {"test_name": "Glucose", "finding": "Elevated", "severity": "mild|moderate|severe", "clinical_significance": "..."}
  ],
  "recommendations": ["Concrete follow-up action"],
  "reasoning": "How you reached the interpretation",
  "reference_ranges": [
    {"test_name": "Glucose", "range": "70-100 mg/dL", "source": "report|typical adult"}
  ],
  "confidence_score": 0.8
}

"confidence_score" is a number between 0 and 1.`

// formatValue renders a lab value as "<name>: <value> <unit>".
func formatValue(v models.LabValue) string {
	return fmt.Sprintf("%s: %s %s", v.TestName, strconv.FormatFloat(v.Value, 'f', -1, 64), v.Unit)
}

// BuildAnalysisPrompt creates the context block sent to the analysis model.
func BuildAnalysisPrompt(values []models.LabValue, c AnalysisContext) string {
	var sb strings.Builder

	sb.WriteString("## Lab Results\n")
	for _, v := range values {
		sb.WriteString(formatValue(v))
		sb.WriteString("\n")
	}

	if pc := strings.TrimSpace(c.PatientContext); pc != "" {
		sb.WriteString("\n## Patient context:\n")
		sb.WriteString(pc)
		sb.WriteString("\n")
	}

	if g := strings.TrimSpace(c.Guidance); g != "" {
		sb.WriteString("\n## Clinician guidance:\n")
		sb.WriteString(g)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(analysisInstructions)
	return sb.String()
}
