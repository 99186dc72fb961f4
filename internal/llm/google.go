package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 512

// GoogleClient implements the Client interface for Google Gemini
type GoogleClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
}

// NewGoogleClient creates a new Google Gemini client. baseURL may be empty.
func NewGoogleClient(apiKey, model, baseURL string, httpClient *http.Client) *GoogleClient {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GoogleClient{
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Complete sends a request to Google Gemini
func (c *GoogleClient) Complete(ctx context.Context, req Request) (*Response, error) {
	var parts []part
	if a := req.Attachment; a != nil {
		if !a.IsPDF() && !a.IsImage() {
			return nil, unsupportedAttachment(ProviderGoogle, a)
		}
		parts = append(parts, part{InlineData: &inlineData{MimeType: a.MimeType, Data: a.Base64()}})
	}
	parts = append(parts, part{Text: req.Prompt})

	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			Temperature:      temperature(req),
			MaxOutputTokens:  maxTokens(req),
			ResponseMimeType: "application/json",
		},
	}
	if req.System != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("no response candidates")
	}

	text := ""
	for _, p := range genResp.Candidates[0].Content.Parts {
		text += p.Text
	}
	if text == "" {
		return nil, fmt.Errorf("empty response (finish reason: %s)", genResp.Candidates[0].FinishReason)
	}

	out := &Response{Content: text, Model: c.model}
	if u := genResp.UsageMetadata; u != nil {
		out.InputTokens = u.PromptTokenCount
		out.OutputTokens = u.CandidatesTokenCount
	}
	return out, nil
}

// Provider returns the provider name
func (c *GoogleClient) Provider() Provider {
	return ProviderGoogle
}

// Model returns the model name
func (c *GoogleClient) Model() string {
	return c.model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
