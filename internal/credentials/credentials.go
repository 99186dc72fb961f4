// Package credentials resolves which provider API keys a user's request may use.
//
// Keys submitted by a user during a session live in a Store with a TTL and take
// precedence over keys configured in the server environment. Keys are never
// logged or persisted beyond the Store.
package credentials

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kamilpajak/labsight/internal/core"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long session keys are kept after the last store.
const DefaultTTL = time.Hour

// Set maps provider name to secret.
type Set map[string]string

// Providers returns the provider names with a non-empty key, sorted.
func (s Set) Providers() []string {
	out := make([]string, 0, len(s))
	for p, k := range s {
		if k != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Store persists per-user credential sets with expiry.
type Store interface {
	// Get returns the stored set for userID, or an empty set if none.
	Get(ctx context.Context, userID string) (Set, error)
	// Put replaces the set for userID.
	Put(ctx context.Context, userID string, keys Set, ttl time.Duration) error
	// Delete removes the set for userID. Deleting a missing entry is not an error.
	Delete(ctx context.Context, userID string) error
}

// Merge combines session and environment keys. Session keys win; providers
// absent from both, or with empty values, are omitted.
func Merge(session, env Set) Set {
	out := make(Set, len(session)+len(env))
	for p, k := range env {
		if k != "" {
			out[p] = k
		}
	}
	for p, k := range session {
		if k != "" {
			out[p] = k
		}
	}
	return out
}

// Resolver merges stored session keys with environment keys.
type Resolver struct {
	store     Store
	env       Set
	ttl       time.Duration
	providers map[string]bool
	logger    zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets the session key lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithProviders restricts Store to the given provider names.
func WithProviders(providers []string) Option {
	return func(r *Resolver) {
		r.providers = make(map[string]bool, len(providers))
		for _, p := range providers {
			r.providers[p] = true
		}
	}
}

// WithLogger sets the logger. Only provider names are ever logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver over store with the given environment keys.
func NewResolver(store Store, env Set, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		env:    Merge(nil, env),
		ttl:    DefaultTTL,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the keys usable by userID. An empty userID resolves to the
// environment keys only.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Set, error) {
	if userID == "" {
		return Merge(nil, r.env), nil
	}
	session, err := r.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session credentials: %w", err)
	}
	return Merge(session, r.env), nil
}

// Store replaces userID's session keys.
func (r *Resolver) Store(ctx context.Context, userID string, keys Set) error {
	if userID == "" {
		return core.ErrValidation(core.CodeInvalidKeys, "user identity is required")
	}
	if len(keys) == 0 {
		return core.ErrValidation(core.CodeInvalidKeys, "at least one provider key is required")
	}

	clean := make(Set, len(keys))
	for p, k := range keys {
		if r.providers != nil && !r.providers[p] {
			return core.ErrValidation(core.CodeInvalidKeys, fmt.Sprintf("unknown provider %q", p))
		}
		k = strings.TrimSpace(k)
		if k == "" {
			return core.ErrValidation(core.CodeInvalidKeys, fmt.Sprintf("key for provider %q must be non-empty text", p))
		}
		clean[p] = k
	}

	if err := r.store.Put(ctx, userID, clean, r.ttl); err != nil {
		return fmt.Errorf("failed to store session credentials: %w", err)
	}
	r.logger.Info().Str("user_id", userID).Strs("providers", clean.Providers()).Msg("session credentials stored")
	return nil
}

// Clear removes userID's session keys. It is idempotent.
func (r *Resolver) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := r.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear session credentials: %w", err)
	}
	r.logger.Info().Str("user_id", userID).Msg("session credentials cleared")
	return nil
}

// envKeys maps provider names to the environment variables holding their keys,
// in lookup order.
var envKeys = map[string][]string{
	"anthropic":   {"ANTHROPIC_API_KEY"},
	"openai":      {"OPENAI_API_KEY"},
	"google":      {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"huggingface": {"HF_TOKEN", "HUGGINGFACE_API_KEY"},
}

// FromEnvironment reads provider keys using lookup, typically os.Getenv.
func FromEnvironment(lookup func(string) string) Set {
	out := make(Set)
	for provider, vars := range envKeys {
		for _, v := range vars {
			if k := strings.TrimSpace(lookup(v)); k != "" {
				out[provider] = k
				break
			}
		}
	}
	return out
}
