// Package registry holds the catalogue of AI models the pipeline can route to.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/kamilpajak/labsight/internal/core"
	"github.com/kamilpajak/labsight/internal/llm"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultCatalogue []byte

// Capability is something a model can do.
type Capability string

const (
	CapVision       Capability = "vision"
	CapTextAnalysis Capability = "text_analysis"
)

// Descriptor describes one model. Descriptors are immutable after loading.
type Descriptor struct {
	ID             string       `yaml:"id" json:"id"`
	Provider       string       `yaml:"provider" json:"provider"`
	UpstreamModel  string       `yaml:"upstream_model" json:"-"`
	DisplayName    string       `yaml:"display_name" json:"display_name"`
	HasVision      bool         `yaml:"has_vision" json:"has_vision"`
	Capabilities   []Capability `yaml:"capabilities" json:"capabilities"`
	RecommendedFor []string     `yaml:"recommended_for" json:"recommended_for"`
	Description    string       `yaml:"description" json:"description,omitempty"`
}

// Upstream returns the model name sent to the provider.
func (d Descriptor) Upstream() string {
	if d.UpstreamModel != "" {
		return d.UpstreamModel
	}
	return d.ID
}

// Has reports whether the model has capability c.
func (d Descriptor) Has(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Listing is a descriptor annotated with availability for a credential set.
type Listing struct {
	Descriptor
	Available bool `json:"available"`
}

type catalogueFile struct {
	DefaultVisionModel string       `yaml:"default_vision_model"`
	Models             []Descriptor `yaml:"models"`
}

// Registry is a read-only model catalogue, safe for concurrent use.
type Registry struct {
	models        []Descriptor
	byID          map[string]Descriptor
	defaultVision string
}

// Default returns the catalogue compiled into the binary.
func Default() (*Registry, error) {
	return Parse(defaultCatalogue)
}

// Load reads a catalogue from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalogue: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML and validates it.
func Parse(data []byte) (*Registry, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model catalogue: %w", err)
	}
	return New(f.Models, f.DefaultVisionModel)
}

// New builds a registry from descriptors. defaultVision may be empty when no
// two-stage routing is wanted.
func New(models []Descriptor, defaultVision string) (*Registry, error) {
	if len(models) == 0 {
		return nil, errors.New("model catalogue is empty")
	}

	r := &Registry{
		models: make([]Descriptor, 0, len(models)),
		byID:   make(map[string]Descriptor, len(models)),
	}

	var errs []error
	for i, d := range models {
		if err := validate(d); err != nil {
			errs = append(errs, fmt.Errorf("model %d (%q): %w", i, d.ID, err))
			continue
		}
		if _, dup := r.byID[d.ID]; dup {
			errs = append(errs, fmt.Errorf("model %d: duplicate id %q", i, d.ID))
			continue
		}
		r.models = append(r.models, d)
		r.byID[d.ID] = d
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if defaultVision != "" {
		if err := r.SetDefaultVisionModel(defaultVision); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func validate(d Descriptor) error {
	if d.ID == "" {
		return errors.New("id is required")
	}
	if !llm.IsKnown(d.Provider) {
		return fmt.Errorf("unsupported provider %q", d.Provider)
	}
	if d.HasVision != d.Has(CapVision) {
		return errors.New("has_vision must match the vision capability")
	}
	for _, c := range d.Capabilities {
		if c != CapVision && c != CapTextAnalysis {
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	return nil
}

// SetDefaultVisionModel changes the model used for extraction when the
// selected model cannot read files. It must exist and have vision.
func (r *Registry) SetDefaultVisionModel(id string) error {
	d, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("default vision model %q is not in the catalogue", id)
	}
	if !d.HasVision {
		return core.ErrValidation(core.CodeDefaultNotVision,
			fmt.Sprintf("default vision model %q has no vision capability", id))
	}
	r.defaultVision = id
	return nil
}

// DefaultVisionModel returns the id of the fallback extraction model.
func (r *Registry) DefaultVisionModel() string {
	return r.defaultVision
}

// Get returns the descriptor for id or an UnknownModel error.
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, core.ErrUnknownModel(id)
	}
	return d, nil
}

// List returns every model in catalogue order, available iff its provider has
// a non-empty key in credentials.
func (r *Registry) List(credentials map[string]string) []Listing {
	out := make([]Listing, 0, len(r.models))
	for _, d := range r.models {
		out = append(out, Listing{
			Descriptor: d,
			Available:  credentials[d.Provider] != "",
		})
	}
	return out
}

// Providers returns the distinct providers referenced by the catalogue.
func (r *Registry) Providers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.models {
		if !seen[d.Provider] {
			seen[d.Provider] = true
			out = append(out, d.Provider)
		}
	}
	return out
}
