package pipeline

import (
	"context"
	"sync"

	"github.com/kamilpajak/labsight/internal/llm"
)

// fakeClient returns a canned reply or error. When block is set it waits for
// the context to end, simulating a hung provider.
type fakeClient struct {
	provider llm.Provider
	model    string
	reply    string
	err      error
	block    bool

	mu       sync.Mutex
	requests []llm.Request
}

func (c *fakeClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Content: c.reply, Model: c.model}, nil
}

func (c *fakeClient) Provider() llm.Provider { return c.provider }
func (c *fakeClient) Model() string          { return c.model }

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// fakeFactory hands out fakeClients keyed by upstream model name and records
// which keys were used.
type fakeFactory struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	keys    map[string]string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		clients: make(map[string]*fakeClient),
		keys:    make(map[string]string),
	}
}

func (f *fakeFactory) on(model, reply string) *fakeClient {
	c := &fakeClient{model: model, reply: reply}
	f.clients[model] = c
	return c
}

func (f *fakeFactory) NewClient(provider llm.Provider, model, apiKey string) (llm.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[model] = apiKey
	c, ok := f.clients[model]
	if !ok {
		c = &fakeClient{model: model, reply: `{}`}
		f.clients[model] = c
	}
	c.provider = provider
	return c, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (e *recordingEmitter) Emit(ev ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) states() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []State
	for _, ev := range e.events {
		out = append(out, ev.State)
	}
	return out
}
