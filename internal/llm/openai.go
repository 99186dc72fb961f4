package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// HuggingFaceBaseURL is the OpenAI-compatible inference router.
const HuggingFaceBaseURL = "https://router.huggingface.co/v1"

// OpenAIClient implements the Client interface for OpenAI and for any
// OpenAI-compatible endpoint such as the Hugging Face router.
type OpenAIClient struct {
	client   openai.Client
	model    string
	provider Provider
}

// NewOpenAIClient creates a new OpenAI client. baseURL may be empty.
func NewOpenAIClient(apiKey, model, baseURL string, httpClient *http.Client) *OpenAIClient {
	return newOpenAICompatible(ProviderOpenAI, apiKey, model, baseURL, httpClient)
}

// NewHuggingFaceClient creates a client for models served by the Hugging Face
// router. baseURL defaults to HuggingFaceBaseURL.
func NewHuggingFaceClient(apiKey, model, baseURL string, httpClient *http.Client) *OpenAIClient {
	if baseURL == "" {
		baseURL = HuggingFaceBaseURL
	}
	return newOpenAICompatible(ProviderHuggingFace, apiKey, model, baseURL, httpClient)
}

func newOpenAICompatible(p Provider, apiKey, model, baseURL string, httpClient *http.Client) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		model:    model,
		provider: p,
	}
}

// Complete sends a chat completion request
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	var parts []openai.ChatCompletionContentPartUnionParam
	if a := req.Attachment; a != nil {
		switch {
		case a.IsImage():
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: a.DataURL(),
			}))
		case a.IsPDF():
			parts = append(parts, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(a.DataURL()),
				Filename: openai.String(a.Filename),
			}))
		default:
			return nil, unsupportedAttachment(c.provider, a)
		}
	}
	parts = append(parts, openai.TextContentPart(req.Prompt))

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(temperature(req)),
		MaxTokens:   openai.Int(int64(maxTokens(req))),
	})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	return &Response{
		Content:      completion.Choices[0].Message.Content,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		Model:        completion.Model,
	}, nil
}

// Provider returns the provider name
func (c *OpenAIClient) Provider() Provider {
	return c.provider
}

// Model returns the model name
func (c *OpenAIClient) Model() string {
	return c.model
}
