// Package auth verifies identity-provider JWTs and enforces clinician roles.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// RoleDoctor is required for running and reading lab analyses.
const RoleDoctor = "doctor"

// Config holds identity provider configuration.
type Config struct {
	Domain   string // issuer, e.g. "https://labsight.eu.auth0.com"
	Audience string // API audience identifier
	// JWKSURL overrides the key set location. Defaults to
	// {Domain}/.well-known/jwks.json.
	JWKSURL string
}

// Enabled reports whether an identity provider is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Domain) != ""
}

// UserClaims represents the JWT claims the API relies on.
type UserClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Roles       Roles    `json:"roles,omitempty"`
}

// Role is one role assignment.
type Role struct {
	ID   string `json:"id,omitempty"`
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// Roles accepts both plain role names and role objects with a key.
type Roles []Role

// UnmarshalJSON implements json.Unmarshaler.
func (r *Roles) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Roles, 0, len(raw))
	for _, item := range raw {
		var key string
		if err := json.Unmarshal(item, &key); err == nil {
			out = append(out, Role{Key: key})
			continue
		}
		var role Role
		if err := json.Unmarshal(item, &role); err != nil {
			return fmt.Errorf("invalid role entry: %w", err)
		}
		out = append(out, role)
	}
	*r = out
	return nil
}

// Has reports whether key is among the roles.
func (r Roles) Has(key string) bool {
	for _, role := range r {
		if role.Key == key {
			return true
		}
	}
	return false
}

// Verifier handles JWT verification with JWKS.
type Verifier struct {
	keyfunc  jwt.Keyfunc
	audience string
	issuer   string
}

// NewVerifier creates a verifier that fetches and refreshes the provider's JWKS.
func NewVerifier(cfg Config) (*Verifier, error) {
	if !cfg.Enabled() {
		return nil, errors.New("auth domain is not configured")
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = fmt.Sprintf("%s/.well-known/jwks.json", strings.TrimSuffix(cfg.Domain, "/"))
	}

	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}
	return NewVerifierWithKeyfunc(cfg, jwks.Keyfunc), nil
}

// NewVerifierWithKeyfunc creates a verifier with a caller-supplied key lookup.
func NewVerifierWithKeyfunc(cfg Config, kf jwt.Keyfunc) *Verifier {
	return &Verifier{
		keyfunc:  kf,
		audience: cfg.Audience,
		issuer:   strings.TrimSuffix(cfg.Domain, "/"),
	}
}

// Verify validates a JWT token and returns the claims.
func (v *Verifier) Verify(tokenString string) (*UserClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, v.keyfunc, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Middleware creates HTTP middleware that requires a valid bearer JWT.
func Middleware(verifier *Verifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Debug().Err(err).Msg("rejected bearer token")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// DevMiddleware authenticates every request as a fixed doctor identity. It is
// only for local development without an identity provider.
func DevMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger.Warn().Msg("authentication disabled: all requests run as the development doctor")
	claims := NewTestClaims("dev|doctor", "doctor@localhost", RoleDoctor)
	claims.Name = "Development Doctor"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects authenticated requests whose token lacks role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAuthenticated(r.Context()) {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !HasRole(r.Context(), role) {
				writeError(w, http.StatusForbidden, fmt.Sprintf("%s role required", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
