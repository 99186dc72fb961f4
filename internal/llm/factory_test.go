package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_NewClient(t *testing.T) {
	f := NewFactory(FactoryConfig{})

	tests := []struct {
		provider Provider
		want     any
	}{
		{ProviderAnthropic, &AnthropicClient{}},
		{ProviderOpenAI, &OpenAIClient{}},
		{ProviderHuggingFace, &OpenAIClient{}},
		{ProviderGoogle, &GoogleClient{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			c, err := f.NewClient(tt.provider, "some-model", "key")
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
			assert.Equal(t, tt.provider, c.Provider())
			assert.Equal(t, "some-model", c.Model())
		})
	}
}

func TestFactory_RejectsMissingKey(t *testing.T) {
	f := NewFactory(FactoryConfig{})
	_, err := f.NewClient(ProviderOpenAI, "gpt-4o", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")
}

func TestFactory_RejectsUnknownProvider(t *testing.T) {
	f := NewFactory(FactoryConfig{})
	_, err := f.NewClient(Provider("mistral"), "m", "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestFactory_SharesLimiterPerProvider(t *testing.T) {
	f := NewFactory(FactoryConfig{
		Limits: map[Provider]RateLimit{ProviderGoogle: {RequestsPerSecond: 1, Burst: 1}},
	})

	a, err := f.NewClient(ProviderGoogle, "gemini-2.5-flash", "key")
	require.NoError(t, err)
	b, err := f.NewClient(ProviderGoogle, "gemini-2.5-pro", "key")
	require.NoError(t, err)

	la, ok := a.(*limitedClient)
	require.True(t, ok)
	lb, ok := b.(*limitedClient)
	require.True(t, ok)
	assert.Same(t, la.limiter, lb.limiter)

	other, err := f.NewClient(ProviderOpenAI, "gpt-4o", "key")
	require.NoError(t, err)
	_, limited := other.(*limitedClient)
	assert.False(t, limited)
}

type stubClient struct{ calls int }

func (s *stubClient) Complete(ctx context.Context, req Request) (*Response, error) {
	s.calls++
	return &Response{Content: "ok"}, nil
}
func (s *stubClient) Provider() Provider { return ProviderOpenAI }
func (s *stubClient) Model() string      { return "stub" }

func TestLimitedClient_CancelledWaitFails(t *testing.T) {
	f := NewFactory(FactoryConfig{
		Limits: map[Provider]RateLimit{ProviderOpenAI: {RequestsPerSecond: 0.001, Burst: 1}},
	})
	stub := &stubClient{}
	c := &limitedClient{Client: stub, limiter: f.limiter(ProviderOpenAI)}

	_, err := c.Complete(context.Background(), Request{Prompt: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, Request{Prompt: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
	assert.Equal(t, 1, stub.calls)
}

func TestAttachment_Encoding(t *testing.T) {
	a := &Attachment{Data: []byte("%PDF-"), MimeType: "application/pdf"}
	assert.True(t, a.IsPDF())
	assert.False(t, a.IsImage())
	assert.Equal(t, "JVBERi0=", a.Base64())
	assert.Equal(t, "data:application/pdf;base64,JVBERi0=", a.DataURL())

	img := &Attachment{MimeType: "image/png"}
	assert.True(t, img.IsImage())
}

func TestIsKnown(t *testing.T) {
	assert.True(t, IsKnown("huggingface"))
	assert.False(t, IsKnown("cohere"))
}
