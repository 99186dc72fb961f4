// Package llm provides one client per AI provider behind a common interface.
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Provider represents an LLM provider
type Provider string

const (
	ProviderAnthropic   Provider = "anthropic"
	ProviderOpenAI      Provider = "openai"
	ProviderGoogle      Provider = "google"
	ProviderHuggingFace Provider = "huggingface"
)

// Providers returns every provider a client can be built for.
func Providers() []Provider {
	return []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderHuggingFace}
}

// IsKnown reports whether p names a supported provider.
func IsKnown(p string) bool {
	for _, known := range Providers() {
		if string(known) == p {
			return true
		}
	}
	return false
}

// Client is the capability every provider implementation offers: one
// request, one text answer. Implementations never retry.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() Provider
	Model() string
}

// Request is a single-turn prompt with an optional inline file.
type Request struct {
	System      string
	Prompt      string
	Attachment  *Attachment
	MaxTokens   int
	Temperature float64
}

// Attachment is a file sent inline with a request.
type Attachment struct {
	Data     []byte
	MimeType string
	Filename string
}

// IsPDF reports whether the attachment is a PDF document.
func (a *Attachment) IsPDF() bool {
	return a.MimeType == "application/pdf"
}

// IsImage reports whether the attachment is a raster image.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// Base64 returns the attachment encoded with standard base64.
func (a *Attachment) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// DataURL returns the attachment as a data: URL.
func (a *Attachment) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", a.MimeType, a.Base64())
}

// Response is the text answer from a provider.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
}

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.1
)

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

func temperature(req Request) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return defaultTemperature
}

func unsupportedAttachment(p Provider, a *Attachment) error {
	return fmt.Errorf("%s: unsupported attachment type %q", p, a.MimeType)
}
