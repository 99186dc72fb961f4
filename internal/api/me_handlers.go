package api

import (
	"net/http"

	"github.com/kamilpajak/labsight/internal/auth"
	"github.com/kamilpajak/labsight/internal/database"
)

// currentDoctor returns the stored doctor for the authenticated caller,
// creating the row on first sight. It returns nil without a store.
func (s *Server) currentDoctor(r *http.Request) (*database.Doctor, error) {
	if s.store == nil {
		return nil, nil
	}
	ctx := r.Context()
	return s.store.UpsertDoctor(ctx, auth.UserID(ctx), auth.Email(ctx), auth.Name(ctx))
}

// handleGetMe returns the caller's identity and, with a store, their doctor record.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.Claims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	roles := make([]string, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		roles = append(roles, role.Key)
	}
	response := map[string]any{
		"subject": claims.Subject,
		"email":   claims.Email,
		"name":    claims.Name,
		"roles":   roles,
	}

	doctor, err := s.currentDoctor(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to sync doctor")
		writeError(w, http.StatusInternalServerError, "failed to sync user")
		return
	}
	if doctor != nil {
		response["id"] = doctor.ID
		response["created_at"] = doctor.CreatedAt
	}

	writeJSON(w, http.StatusOK, response)
}
