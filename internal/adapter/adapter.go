// Package adapter translates normalized completion requests and responses
// to and from the wire formats of the configured upstream backends. Each
// wire format has its own implementation of the Adapter interface; the
// Factory selects and caches one instance per backend.
package adapter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"llmgateway/internal/model"
)

const (
	// completionTimeout bounds a single-shot upstream call.
	completionTimeout = 30 * time.Second
	// streamTimeout bounds a streaming upstream call end to end.
	streamTimeout = 60 * time.Second

	defaultTemperature = 0.3
)

// Adapter performs completion calls against one backend's wire format.
type Adapter interface {
	Complete(ctx context.Context, m *model.Model, req *model.CompletionRequest) (*model.CompletionResponse, error)
	CompleteStream(ctx context.Context, m *model.Model, req *model.CompletionRequest, onToken func(token string)) (*model.CompletionResponse, error)
}

// Factory builds adapters and caches them by backend id. Invalidate must be
// called whenever a backend's configuration changes so no future request
// reuses stale credentials or URLs; requests already in flight complete with
// the old configuration.
type Factory struct {
	mu     sync.RWMutex
	cache  map[string]Adapter
	client *http.Client
}

func NewFactory() *Factory {
	return &Factory{
		cache: make(map[string]Adapter),
		// 超时通过每次调用的 context 控制，不在 client 上设置
		client: &http.Client{},
	}
}

// For returns the cached adapter for the backend, creating one if needed.
func (f *Factory) For(b *model.Backend) Adapter {
	f.mu.RLock()
	if a, ok := f.cache[b.ID]; ok {
		f.mu.RUnlock()
		return a
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.cache[b.ID]; ok {
		return a
	}
	a := newAdapter(b, f.client)
	f.cache[b.ID] = a
	return a
}

// Invalidate drops the cached adapter for a backend.
func (f *Factory) Invalidate(backendID string) {
	f.mu.Lock()
	delete(f.cache, backendID)
	f.mu.Unlock()
}

func newAdapter(b *model.Backend, client *http.Client) Adapter {
	switch b.Format {
	case model.WireFormatAnthropic:
		return &anthropicAdapter{backend: b, client: client}
	case model.WireFormatGoogle:
		return &googleAdapter{backend: b, client: client}
	case model.WireFormatCustom:
		return &customAdapter{backend: b, client: client}
	default:
		return &openAIAdapter{backend: b, client: client}
	}
}

// applyAuth sets the backend's credential header. The backend may override
// the format's default header name and value prefix.
func applyAuth(h http.Header, b *model.Backend, defaultHeader, defaultPrefix string) {
	header := b.AuthHeader
	if header == "" {
		header = defaultHeader
	}
	prefix := b.AuthPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	h.Set(header, prefix+b.APIKey)
}

// applyExtraHeaders merges the backend's configured extra headers, e.g.
// attribution headers required by routing backends.
func applyExtraHeaders(h http.Header, b *model.Backend) {
	for k, v := range b.ExtraHeaders() {
		h.Set(k, v)
	}
}

func effectiveTemperature(req *model.CompletionRequest) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return defaultTemperature
}

func effectiveMaxTokens(m *model.Model, req *model.CompletionRequest) int {
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		return *req.MaxTokens
	}
	return m.MaxTokens
}
