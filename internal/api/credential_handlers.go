package api

import (
	"net/http"

	"github.com/kamilpajak/labsight/internal/auth"
	"github.com/kamilpajak/labsight/internal/credentials"
	"github.com/kamilpajak/labsight/internal/database"
)

type storeCredentialsRequest struct {
	Keys map[string]string `json:"keys"`
}

// handleListModels returns the catalogue with availability for the caller's keys.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	creds, err := s.credentials.Resolve(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.models.List(creds))
}

// handleStoreCredentials replaces the caller's session keys.
func (s *Server) handleStoreCredentials(w http.ResponseWriter, r *http.Request) {
	var req storeCredentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	keys := credentials.Set(req.Keys)
	if err := s.credentials.Store(r.Context(), auth.UserID(r.Context()), keys); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, database.ActionCredentialsStore, database.ResourceCredentials, "", map[string]any{
		"providers": keys.Providers(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleClearCredentials removes the caller's session keys. It is idempotent.
func (s *Server) handleClearCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.credentials.Clear(r.Context(), auth.UserID(r.Context())); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, database.ActionCredentialsClear, database.ResourceCredentials, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

// audit records an action for the caller. Failures are logged, never surfaced.
func (s *Server) audit(r *http.Request, action, resourceType, resourceID string, details map[string]any) {
	if s.store == nil {
		return
	}
	doctor, err := s.currentDoctor(r)
	if err != nil || doctor == nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit skipped: no doctor record")
		return
	}
	if resourceID == "" {
		resourceID = doctor.ID.String()
	}
	err = s.store.RecordAudit(r.Context(), database.AuditEntry{
		DoctorID:     &doctor.ID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record audit entry")
	}
}
