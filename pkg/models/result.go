package models

// Status is the overall outcome of a pipeline run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Stage names the pipeline phase a failure happened in.
type Stage string

const (
	StageRouting    Stage = "routing"
	StageExtraction Stage = "extraction"
	StageAnalysis   Stage = "analysis"
)

// PipelineResult is the single record returned for every pipeline run,
// including failed ones. LabValues are kept when analysis fails.
type PipelineResult struct {
	Status           Status          `json:"status"`
	LabValues        []LabValue      `json:"lab_values"`
	Analysis         *Interpretation `json:"analysis"`
	ExtractionModel  string          `json:"extraction_model"`
	AnalysisModel    string          `json:"analysis_model"`
	TwoStagePipeline bool            `json:"two_stage_pipeline"`
	UserGuidance     string          `json:"user_guidance"`
	Error            string          `json:"error,omitempty"`
	FailedStage      Stage           `json:"failed_stage,omitempty"`
}

// Succeeded reports whether both stages completed.
func (r *PipelineResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// AbnormalCount returns how many lab values are flagged abnormal.
func (r *PipelineResult) AbnormalCount() int {
	n := 0
	for _, v := range r.LabValues {
		if v.IsAbnormal {
			n++
		}
	}
	return n
}
