package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleClient_InlineData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "AIza-test", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		require.NotNil(t, req.Contents[0].Parts[0].InlineData)
		assert.Equal(t, "application/pdf", req.Contents[0].Parts[0].InlineData.MimeType)
		assert.Equal(t, "JVBERi0=", req.Contents[0].Parts[0].InlineData.Data)
		assert.Equal(t, "extract", req.Contents[0].Parts[1].Text)
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "system prompt", req.SystemInstruction.Parts[0].Text)

		json.NewEncoder(w).Encode(generateResponse{
			Candidates: []candidate{{
				Content:      content{Parts: []part{{Text: `{"lab_values":[]}`}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &usageMetadata{PromptTokenCount: 300, CandidatesTokenCount: 12},
		})
	}))
	defer srv.Close()

	c := NewGoogleClient("AIza-test", "gemini-2.5-flash", srv.URL, nil)
	resp, err := c.Complete(context.Background(), Request{
		System:     "system prompt",
		Prompt:     "extract",
		Attachment: &Attachment{Data: []byte("%PDF-"), MimeType: "application/pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"lab_values":[]}`, resp.Content)
	assert.Equal(t, 300, resp.InputTokens)
	assert.Equal(t, 12, resp.OutputTokens)
}

func TestGoogleClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewGoogleClient("AIza-test", "gemini-2.5-flash", srv.URL, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini API error")
	assert.Contains(t, err.Error(), "429")
}

func TestGoogleClient_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewGoogleClient("AIza-test", "gemini-2.5-flash", srv.URL, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response candidates")
}

func TestGoogleClient_EmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	}))
	defer srv.Close()

	c := NewGoogleClient("AIza-test", "gemini-2.5-flash", srv.URL, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
}
