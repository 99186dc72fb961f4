package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kamilpajak/labsight/internal/auth"
	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/database"
	"github.com/kamilpajak/labsight/internal/pipeline"
	"github.com/kamilpajak/labsight/pkg/models"
)

// multipartOverhead allows for form fields around the uploaded file.
const multipartOverhead = 1 << 20

// labAnalysisResponse is a pipeline result, plus its id once stored.
type labAnalysisResponse struct {
	ID *uuid.UUID `json:"id,omitempty"`
	*models.PipelineResult
}

// storedLabAnalysis is the API view of a saved run.
type storedLabAnalysis struct {
	ID             uuid.UUID `json:"id"`
	PatientID      *string   `json:"patient_id"`
	ConsultationID *string   `json:"consultation_id"`
	FileName       string    `json:"file_name"`
	CreatedAt      time.Time `json:"created_at"`
	models.PipelineResult
}

func toStored(a database.LabAnalysis) storedLabAnalysis {
	return storedLabAnalysis{
		ID:             a.ID,
		PatientID:      a.PatientID,
		ConsultationID: a.ConsultationID,
		FileName:       a.FileName,
		CreatedAt:      a.CreatedAt,
		PipelineResult: a.Result,
	}
}

type labAnalysisForm struct {
	file           pipeline.File
	model          string
	guidance       string
	patientContext string
	patientID      *string
	consultationID *string
}

func (s *Server) parseLabAnalysisForm(w http.ResponseWriter, r *http.Request) (*labAnalysisForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.ErrValidation(core.CodeInvalidFile,
				fmt.Sprintf("file exceeds the %d MiB limit", s.maxUpload>>20))
		}
		return nil, core.ErrValidation(core.CodeInvalidInput, "expected a multipart form upload")
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidFile, "file is required")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidFile, "failed to read uploaded file")
	}

	model := r.FormValue("model")
	if model == "" {
		return nil, core.ErrValidation(core.CodeInvalidInput, "model is required")
	}

	return &labAnalysisForm{
		file: pipeline.File{
			Data:     data,
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
		},
		model:          model,
		guidance:       r.FormValue("guidance"),
		patientContext: r.FormValue("patient_context"),
		patientID:      optionalString(r.FormValue("patient_id")),
		consultationID: optionalString(r.FormValue("consultation_id")),
	}, nil
}

// handleCreateLabAnalysis runs the pipeline on an uploaded report.
func (s *Server) handleCreateLabAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	form, err := s.parseLabAnalysisForm(w, r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	creds, err := s.credentials.Resolve(ctx, auth.UserID(ctx))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	in := pipeline.Input{
		File:           form.file,
		ModelID:        form.model,
		Guidance:       form.guidance,
		PatientContext: form.patientContext,
		Credentials:    creds,
	}

	if wantsStream(r) {
		s.streamLabAnalysis(w, r, in, form)
		return
	}

	result, runErr := s.pipeline.Run(ctx, in)
	if result == nil {
		s.writeDomainError(w, r, runErr)
		return
	}

	resp := labAnalysisResponse{PipelineResult: result}
	if saved := s.saveResult(r, form, result); saved != nil {
		resp.ID = &saved.ID
	}

	status := http.StatusOK
	if runErr != nil {
		status = core.HTTPStatus(runErr)
	}
	writeJSON(w, status, resp)
}

func (s *Server) streamLabAnalysis(w http.ResponseWriter, r *http.Request, in pipeline.Input, form *labAnalysisForm) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sse := newSSEEmitter(w)
	if sse == nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.WriteHeader(http.StatusOK)

	hold := &holdingEmitter{next: sse}
	in.Emitter = hold

	result, _ := s.pipeline.Run(r.Context(), in)

	id := ""
	if result != nil {
		if saved := s.saveResult(r, form, result); saved != nil {
			id = saved.ID.String()
		}
	}
	hold.release(id)
}

// saveResult stores a finished run. Persistence failures are logged and the
// result is still returned to the caller.
func (s *Server) saveResult(r *http.Request, form *labAnalysisForm, result *models.PipelineResult) *database.LabAnalysis {
	if s.store == nil {
		return nil
	}
	doctor, err := s.currentDoctor(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to sync doctor; analysis not saved")
		return nil
	}
	saved, err := s.store.SaveLabAnalysis(r.Context(), database.SaveLabAnalysisParams{
		DoctorID:       doctor.ID,
		PatientID:      form.patientID,
		ConsultationID: form.consultationID,
		FileName:       form.file.Filename,
		MimeType:       form.file.MimeType,
		Result:         result,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to save lab analysis")
		return nil
	}
	return saved
}

// handleGetLabAnalysis returns a stored run.
func (s *Server) handleGetLabAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	analysisID, err := parseAnalysisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid analysis ID")
		return
	}

	analysis, err := s.store.GetLabAnalysis(r.Context(), analysisID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if analysis == nil {
		s.writeDomainError(w, r, core.ErrNotFound("lab analysis", analysisID.String()))
		return
	}

	s.audit(r, database.ActionLabAnalysisView, database.ResourceLabAnalysis, analysis.ID.String(), nil)
	writeJSON(w, http.StatusOK, toStored(*analysis))
}

// handleListPatientLabAnalyses returns a patient's stored runs, newest first.
func (s *Server) handleListPatientLabAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	patientID := chi.URLParam(r, "patientID")
	limit, offset := parsePagination(r)

	analyses, err := s.store.ListPatientLabAnalyses(r.Context(), database.ListPatientLabAnalysesParams{
		PatientID: patientID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	total, err := s.store.CountPatientLabAnalyses(r.Context(), patientID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	items := make([]storedLabAnalysis, 0, len(analyses))
	for _, a := range analyses {
		items = append(items, toStored(a))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": items,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}
