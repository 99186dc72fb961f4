// Package pipeline turns an uploaded lab report into structured lab values and
// a clinical interpretation, using up to two AI models.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/llm"
	"github.com/kamilpajak/labsight/internal/registry"
	"github.com/kamilpajak/labsight/pkg/models"
	"github.com/rs/zerolog"
)

// DefaultStageTimeout bounds each model call when no timeout is configured.
const DefaultStageTimeout = 60 * time.Second

// Config tunes an Orchestrator.
type Config struct {
	StageTimeout time.Duration
	MaxFileBytes int64
}

// Input is everything one pipeline run needs.
type Input struct {
	File           File
	ModelID        string
	Guidance       string
	PatientContext string
	// Credentials maps provider name to API key, already resolved for the caller.
	Credentials map[string]string
	Emitter     ProgressEmitter
}

// Route records which model extracts and which interprets.
type Route struct {
	Extraction registry.Descriptor
	Analysis   registry.Descriptor
	TwoStage   bool
}

// Orchestrator sequences routing, extraction and analysis. It holds no
// per-run state and is safe for concurrent use.
type Orchestrator struct {
	registry  *registry.Registry
	clients   llm.ClientFactory
	extractor *Extractor
	analyst   *Analyst
	cfg       Config
	logger    zerolog.Logger
}

// New creates an Orchestrator.
func New(reg *registry.Registry, clients llm.ClientFactory, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return &Orchestrator{
		registry:  reg,
		clients:   clients,
		extractor: NewExtractor(logger),
		analyst:   NewAnalyst(logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// Route picks the extraction model for the selected model: the model itself
// when it has vision, otherwise the configured default vision model.
func (o *Orchestrator) Route(modelID string) (Route, error) {
	selected, err := o.registry.Get(modelID)
	if err != nil {
		return Route{}, err
	}
	if selected.HasVision {
		return Route{Extraction: selected, Analysis: selected}, nil
	}

	fallbackID := o.registry.DefaultVisionModel()
	if fallbackID == "" {
		return Route{}, core.ErrValidation(core.CodeDefaultNotVision,
			fmt.Sprintf("%s cannot read files and no default vision model is configured", modelID))
	}
	fallback, err := o.registry.Get(fallbackID)
	if err != nil {
		return Route{}, err
	}
	return Route{Extraction: fallback, Analysis: selected, TwoStage: true}, nil
}

// Run executes one pipeline invocation.
//
// Invalid input and unknown models return a nil result and an error before any
// model is called. Stage failures return a result with status "error" together
// with the stage error; lab values survive an analysis failure.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*models.PipelineResult, error) {
	emit := in.Emitter
	if emit == nil {
		emit = nopEmitter{}
	}
	started := time.Now()

	emit.Emit(ProgressEvent{Type: "state", State: StateRouting, Message: "Selecting models"})
	file, route, extractClient, analysisClient, err := o.prepare(in)
	if err != nil {
		emit.Emit(ProgressEvent{Type: "error", State: StateFailed, Message: core.PublicMessage(err)})
		o.logger.Info().Err(err).Str("model", in.ModelID).Msg("lab analysis rejected")
		return nil, err
	}

	result := &models.PipelineResult{
		LabValues:        []models.LabValue{},
		ExtractionModel:  route.Extraction.ID,
		AnalysisModel:    route.Analysis.ID,
		TwoStagePipeline: route.TwoStage,
	}
	log := o.logger.With().
		Str("extraction_model", route.Extraction.ID).
		Str("analysis_model", route.Analysis.ID).
		Bool("two_stage", route.TwoStage).
		Str("mime_type", file.MimeType).
		Int("file_bytes", len(file.Data)).
		Logger()

	emit.Emit(ProgressEvent{Type: "state", State: StateExtracting, Model: route.Extraction.ID, Message: "Reading lab values from the report"})
	stageStart := time.Now()
	values, err := o.extract(ctx, extractClient, file)
	if err == nil && len(values) == 0 {
		err = core.ErrExtraction(core.CodeNoLabValues, "no lab values found")
	}
	if err != nil {
		return o.fail(log, emit, result, route, models.StageExtraction, err)
	}
	result.LabValues = values
	log.Info().Int("lab_values", len(values)).Dur("duration", time.Since(stageStart)).Msg("extraction complete")
	emit.Emit(ProgressEvent{Type: "state", State: StateExtracted, Count: len(values), Message: fmt.Sprintf("Extracted %d lab values", len(values))})

	emit.Emit(ProgressEvent{Type: "state", State: StateAnalyzing, Model: route.Analysis.ID, Message: "Interpreting lab values"})
	stageStart = time.Now()
	interp, err := o.analyze(ctx, analysisClient, values, AnalysisContext{
		PatientContext: in.PatientContext,
		Guidance:       in.Guidance,
	})
	if err != nil {
		return o.fail(log, emit, result, route, models.StageAnalysis, err)
	}
	log.Info().Dur("duration", time.Since(stageStart)).Msg("analysis complete")

	result.Status = models.StatusSuccess
	result.Analysis = interp
	result.UserGuidance = successGuidance(route)

	log.Info().Dur("total", time.Since(started)).Int("abnormal", result.AbnormalCount()).Msg("lab analysis complete")
	emit.Emit(ProgressEvent{Type: "done", State: StateComplete, Message: "Analysis complete", Result: result})
	return result, nil
}

// prepare covers the Routing state: input checks, model choice and client
// construction. Nothing here touches the network.
func (o *Orchestrator) prepare(in Input) (File, Route, llm.Client, llm.Client, error) {
	file, err := NormalizeFile(in.File, o.cfg.MaxFileBytes)
	if err != nil {
		return File{}, Route{}, nil, nil, err
	}

	route, err := o.Route(in.ModelID)
	if err != nil {
		return File{}, Route{}, nil, nil, err
	}

	extractClient, err := o.client(route.Extraction, in.Credentials)
	if err != nil {
		return File{}, Route{}, nil, nil, err
	}
	analysisClient := extractClient
	if route.TwoStage {
		analysisClient, err = o.client(route.Analysis, in.Credentials)
		if err != nil {
			return File{}, Route{}, nil, nil, err
		}
	}
	return file, route, extractClient, analysisClient, nil
}

func (o *Orchestrator) client(d registry.Descriptor, creds map[string]string) (llm.Client, error) {
	key := creds[d.Provider]
	if key == "" {
		return nil, core.ErrValidation(core.CodeMissingKey,
			fmt.Sprintf("no API key available for provider %s (needed by %s)", d.Provider, d.ID))
	}
	c, err := o.clients.NewClient(llm.Provider(d.Provider), d.Upstream(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", d.Provider, err)
	}
	return c, nil
}

func (o *Orchestrator) extract(ctx context.Context, c llm.Client, f File) ([]models.LabValue, error) {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	return o.extractor.Extract(stageCtx, c, f)
}

func (o *Orchestrator) analyze(ctx context.Context, c llm.Client, values []models.LabValue, ac AnalysisContext) (*models.Interpretation, error) {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	return o.analyst.Analyze(stageCtx, c, values, ac)
}

func (o *Orchestrator) fail(log zerolog.Logger, emit ProgressEmitter, result *models.PipelineResult, route Route, stage models.Stage, err error) (*models.PipelineResult, error) {
	code := ""
	diag := ""
	var de *core.DomainError
	if errors.As(err, &de) {
		code = de.Code
		diag = de.Diagnostic
	}

	result.Status = models.StatusError
	result.FailedStage = stage
	result.Error = core.PublicMessage(err)
	result.UserGuidance = failureGuidance(stage, code, route)

	log.Warn().
		Str("stage", string(stage)).
		Str("code", code).
		Str("diagnostic", diag).
		Int("lab_values", len(result.LabValues)).
		Msg("lab analysis failed")
	emit.Emit(ProgressEvent{Type: "error", State: StateFailed, Message: result.Error, Result: result})
	return result, err
}
