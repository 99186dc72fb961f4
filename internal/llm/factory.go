package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ClientFactory builds a Client for one model of one provider.
type ClientFactory interface {
	NewClient(provider Provider, model, apiKey string) (Client, error)
}

// RateLimit bounds outbound requests to one provider.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// FactoryConfig configures the provider clients built by a Factory.
type FactoryConfig struct {
	// BaseURLs overrides provider endpoints, mostly for tests and proxies.
	BaseURLs map[Provider]string
	// Limits caps request rate per provider. Providers without an entry are unlimited.
	Limits     map[Provider]RateLimit
	HTTPClient *http.Client
}

// Factory creates provider clients that share one rate limiter per provider.
type Factory struct {
	cfg      FactoryConfig
	mu       sync.Mutex
	limiters map[Provider]*rate.Limiter
}

// NewFactory creates a Factory.
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{
		cfg:      cfg,
		limiters: make(map[Provider]*rate.Limiter),
	}
}

// NewClient returns a client for provider/model authenticated with apiKey.
func (f *Factory) NewClient(provider Provider, model, apiKey string) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key for provider %s", provider)
	}

	baseURL := f.cfg.BaseURLs[provider]
	var c Client
	switch provider {
	case ProviderAnthropic:
		c = NewAnthropicClient(apiKey, model, baseURL, f.cfg.HTTPClient)
	case ProviderOpenAI:
		c = NewOpenAIClient(apiKey, model, baseURL, f.cfg.HTTPClient)
	case ProviderHuggingFace:
		c = NewHuggingFaceClient(apiKey, model, baseURL, f.cfg.HTTPClient)
	case ProviderGoogle:
		c = NewGoogleClient(apiKey, model, baseURL, f.cfg.HTTPClient)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	if lim := f.limiter(provider); lim != nil {
		return &limitedClient{Client: c, limiter: lim}, nil
	}
	return c, nil
}

func (f *Factory) limiter(p Provider) *rate.Limiter {
	rl, ok := f.cfg.Limits[p]
	if !ok || rl.RequestsPerSecond <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[p]; ok {
		return lim
	}
	burst := rl.Burst
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
	f.limiters[p] = lim
	return lim
}

// limitedClient waits for its provider's limiter before each call.
type limitedClient struct {
	Client
	limiter *rate.Limiter
}

func (c *limitedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.Client.Complete(ctx, req)
}
