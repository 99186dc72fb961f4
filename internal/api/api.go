// Package api provides the HTTP API for lab analyses.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kamilpajak/labsight/internal/auth"
	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/credentials"
	"github.com/kamilpajak/labsight/internal/database"
	"github.com/kamilpajak/labsight/internal/pipeline"
	"github.com/kamilpajak/labsight/internal/registry"
	"github.com/kamilpajak/labsight/pkg/models"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Pipeline runs one lab analysis.
type Pipeline interface {
	Run(ctx context.Context, in pipeline.Input) (*models.PipelineResult, error)
}

// ModelCatalogue lists models with availability for a credential set.
type ModelCatalogue interface {
	List(credentials map[string]string) []registry.Listing
}

// CredentialResolver manages per-user provider keys.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID string) (credentials.Set, error)
	Store(ctx context.Context, userID string, keys credentials.Set) error
	Clear(ctx context.Context, userID string) error
}

// Store persists analyses and the audit trail. *database.DB implements it.
type Store interface {
	Ping(ctx context.Context) error
	UpsertDoctor(ctx context.Context, subject, email, name string) (*database.Doctor, error)
	SaveLabAnalysis(ctx context.Context, params database.SaveLabAnalysisParams) (*database.LabAnalysis, error)
	GetLabAnalysis(ctx context.Context, id uuid.UUID) (*database.LabAnalysis, error)
	ListPatientLabAnalyses(ctx context.Context, params database.ListPatientLabAnalysesParams) ([]database.LabAnalysis, error)
	CountPatientLabAnalyses(ctx context.Context, patientID string) (int, error)
	RecordAudit(ctx context.Context, e database.AuditEntry) error
}

// Config holds API server configuration.
type Config struct {
	Pipeline    Pipeline
	Models      ModelCatalogue
	Credentials CredentialResolver
	// Store is optional. Without it analyses are returned but not saved.
	Store Store
	// Auth authenticates requests under /api. Use auth.Middleware or
	// auth.DevMiddleware.
	Auth           func(http.Handler) http.Handler
	AllowedOrigins []string
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

// Server is the API server.
type Server struct {
	pipeline    Pipeline
	models      ModelCatalogue
	credentials CredentialResolver
	store       Store
	maxUpload   int64
	logger      zerolog.Logger
	router      chi.Router
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = pipeline.DefaultMaxFileBytes
	}
	s := &Server{
		pipeline:    cfg.Pipeline,
		models:      cfg.Models,
		credentials: cfg.Credentials,
		store:       cfg.Store,
		maxUpload:   cfg.MaxUploadBytes,
		logger:      cfg.Logger,
	}
	s.router = s.routes(cfg)
	return s
}

func (s *Server) routes(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)

	// Public endpoints
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth)
		}

		r.Get("/me", s.handleGetMe)
		r.Get("/models", s.handleListModels)
		r.Put("/credentials", s.handleStoreCredentials)
		r.Delete("/credentials", s.handleClearCredentials)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleDoctor))
			r.Post("/lab-analyses", s.handleCreateLabAnalysis)
			r.Get("/lab-analyses/{analysisID}", s.handleGetLabAnalysis)
			r.Get("/patients/{patientID}/lab-analyses", s.handleListPatientLabAnalyses)
		})
	})

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check: database unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
			return
		}
		resp["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps err through the core taxonomy. Internal errors are
// logged and answered with a generic message.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := core.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	}
	writeError(w, status, core.PublicMessage(err))
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
