package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Audit actions and resource types.
const (
	ActionLabAnalysisCreate = "lab_analysis.create"
	ActionLabAnalysisView   = "lab_analysis.view"
	ActionCredentialsStore  = "credentials.store"
	ActionCredentialsClear  = "credentials.clear"

	ResourceLabAnalysis = "lab_analysis"
	ResourceCredentials = "credentials"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID           uuid.UUID
	DoctorID     *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	CreatedAt    time.Time
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAudit(ctx context.Context, ex execer, e AuditEntry) error {
	details, err := marshalDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO audit_log (doctor_id, action, resource_type, resource_id, details)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.DoctorID, e.Action, e.ResourceType, e.ResourceID, details,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

func marshalDetails(d map[string]any) ([]byte, error) {
	if d == nil {
		d = map[string]any{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit details: %w", err)
	}
	return b, nil
}

// RecordAudit appends an entry to the audit trail.
func (db *DB) RecordAudit(ctx context.Context, e AuditEntry) error {
	return insertAudit(ctx, db.pool, e)
}

// ListAudit returns the audit trail of one resource, oldest first.
func (db *DB) ListAudit(ctx context.Context, resourceType, resourceID string) ([]AuditEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, doctor_id, action, resource_type, resource_id, details, created_at
		 FROM audit_log
		 WHERE resource_type = $1 AND resource_id = $2
		 ORDER BY created_at, id`,
		resourceType, resourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.DoctorID, &e.Action, &e.ResourceType, &e.ResourceID, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to decode audit details: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
