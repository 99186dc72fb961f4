package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kamilpajak/labsight/pkg/models"
)

// LabAnalysis is a stored pipeline run.
type LabAnalysis struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       *string
	ConsultationID  *string
	Status          models.Status
	FailedStage     *string
	ExtractionModel string
	AnalysisModel   string
	TwoStage        bool
	FileName        string
	MimeType        string
	AbnormalCount   int
	Result          models.PipelineResult
	CreatedAt       time.Time
}

// SaveLabAnalysisParams contains parameters for storing a pipeline run.
type SaveLabAnalysisParams struct {
	DoctorID       uuid.UUID
	PatientID      *string
	ConsultationID *string
	FileName       string
	MimeType       string
	Result         *models.PipelineResult
}

const labAnalysisColumns = `id, doctor_id, patient_id, consultation_id, status, failed_stage,
	extraction_model, analysis_model, two_stage, file_name, mime_type, abnormal_count, result, created_at`

func scanLabAnalysis(row pgx.Row) (*LabAnalysis, error) {
	var a LabAnalysis
	var status string
	var resultJSON []byte
	err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.ConsultationID, &status, &a.FailedStage,
		&a.ExtractionModel, &a.AnalysisModel, &a.TwoStage, &a.FileName, &a.MimeType,
		&a.AbnormalCount, &resultJSON, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Status = models.Status(status)
	if err := json.Unmarshal(resultJSON, &a.Result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &a, nil
}

// SaveLabAnalysis stores a pipeline result and its audit record atomically.
func (db *DB) SaveLabAnalysis(ctx context.Context, params SaveLabAnalysisParams) (*LabAnalysis, error) {
	if params.Result == nil {
		return nil, errors.New("result is required")
	}
	resultJSON, err := json.Marshal(params.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	var failedStage *string
	if params.Result.FailedStage != "" {
		s := string(params.Result.FailedStage)
		failedStage = &s
	}

	var saved *LabAnalysis
	err = db.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO lab_analyses (doctor_id, patient_id, consultation_id, status, failed_stage,
			   extraction_model, analysis_model, two_stage, file_name, mime_type, abnormal_count, result)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING `+labAnalysisColumns,
			params.DoctorID, params.PatientID, params.ConsultationID, string(params.Result.Status), failedStage,
			params.Result.ExtractionModel, params.Result.AnalysisModel, params.Result.TwoStagePipeline,
			params.FileName, params.MimeType, params.Result.AbnormalCount(), resultJSON,
		)
		a, err := scanLabAnalysis(row)
		if err != nil {
			return err
		}
		saved = a

		return insertAudit(ctx, tx, AuditEntry{
			DoctorID:     &params.DoctorID,
			Action:       ActionLabAnalysisCreate,
			ResourceType: ResourceLabAnalysis,
			ResourceID:   a.ID.String(),
			Details: map[string]any{
				"status":           a.Status,
				"failed_stage":     params.Result.FailedStage,
				"extraction_model": a.ExtractionModel,
				"analysis_model":   a.AnalysisModel,
				"lab_values":       len(params.Result.LabValues),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetLabAnalysis retrieves a stored run by ID. It returns nil when absent.
func (db *DB) GetLabAnalysis(ctx context.Context, id uuid.UUID) (*LabAnalysis, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+labAnalysisColumns+` FROM lab_analyses WHERE id = $1`,
		id,
	)
	return scanLabAnalysis(row)
}

// ListPatientLabAnalysesParams contains parameters for listing a patient's runs.
type ListPatientLabAnalysesParams struct {
	PatientID string
	Limit     int
	Offset    int
}

// ListPatientLabAnalyses returns a patient's runs, newest first.
func (db *DB) ListPatientLabAnalyses(ctx context.Context, params ListPatientLabAnalysesParams) ([]LabAnalysis, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+labAnalysisColumns+` FROM lab_analyses
		 WHERE patient_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		params.PatientID, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := []LabAnalysis{}
	for rows.Next() {
		a, err := scanLabAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, *a)
	}
	return analyses, rows.Err()
}

// CountPatientLabAnalyses returns the number of stored runs for a patient.
func (db *DB) CountPatientLabAnalyses(ctx context.Context, patientID string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM lab_analyses WHERE patient_id = $1`,
		patientID,
	).Scan(&count)
	return count, err
}

// DeleteOldLabAnalyses deletes runs created before olderThan.
func (db *DB) DeleteOldLabAnalyses(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM lab_analyses WHERE created_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
