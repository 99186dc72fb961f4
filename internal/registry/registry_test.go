package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kamilpajak/labsight/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", r.DefaultVisionModel())

	mg, err := r.Get("medgemma")
	require.NoError(t, err)
	assert.False(t, mg.HasVision)
	assert.Equal(t, "huggingface", mg.Provider)
	assert.Equal(t, "google/medgemma-27b-text-it", mg.Upstream())
	assert.True(t, mg.Has(CapTextAnalysis))

	gpt, err := r.Get("gpt-4o")
	require.NoError(t, err)
	assert.True(t, gpt.HasVision)
	assert.Equal(t, "gpt-4o", gpt.Upstream())
}

func TestGet_UnknownModel(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	_, err = r.Get("gpt-9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownModelKind))
}

func TestList_Availability(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	listing := r.List(map[string]string{"openai": "sk-x", "anthropic": ""})
	require.NotEmpty(t, listing)

	for _, l := range listing {
		assert.Equal(t, l.Provider == "openai", l.Available, l.ID)
	}
	assert.Equal(t, "claude-sonnet-4", listing[0].ID, "catalogue order is preserved")
}

func TestList_NilCredentials(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	for _, l := range r.List(nil) {
		assert.False(t, l.Available)
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty",
			yaml:    "models: []",
			wantErr: "empty",
		},
		{
			name: "unknown provider",
			yaml: `
models:
  - id: command-r
    provider: cohere
    capabilities: [text_analysis]`,
			wantErr: "unsupported provider",
		},
		{
			name: "vision mismatch",
			yaml: `
models:
  - id: gpt-4o
    provider: openai
    has_vision: true
    capabilities: [text_analysis]`,
			wantErr: "has_vision",
		},
		{
			name: "duplicate",
			yaml: `
models:
  - id: gpt-4o
    provider: openai
  - id: gpt-4o
    provider: openai`,
			wantErr: "duplicate",
		},
		{
			name: "default without vision",
			yaml: `
default_vision_model: medgemma
models:
  - id: medgemma
    provider: huggingface
    capabilities: [text_analysis]`,
			wantErr: "no vision capability",
		},
		{
			name: "default missing",
			yaml: `
default_vision_model: gpt-4o
models:
  - id: medgemma
    provider: huggingface`,
			wantErr: "not in the catalogue",
		},
		{
			name:    "bad yaml",
			yaml:    "models: [",
			wantErr: "failed to parse",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	err := os.WriteFile(path, []byte(`
default_vision_model: local-vision
models:
  - id: local-vision
    provider: openai
    upstream_model: gpt-4.1
    has_vision: true
    capabilities: [vision, text_analysis]
`), 0o600)
	require.NoError(t, err)

	r, err := Load(path)
	require.NoError(t, err)
	d, err := r.Get("local-vision")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", d.Upstream())
	assert.Equal(t, []string{"openai"}, r.Providers())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProviders(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"anthropic", "openai", "google", "huggingface"}, r.Providers())
}
