package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (ToolCaller, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (ToolCaller, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

// DefaultRegistry registers the HTTP providers shipped with the service.
func DefaultRegistry(ollamaBaseURL string, or OpenRouterSettings) *Registry {
	reg := NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ToolCaller, error) {
		return NewOllamaProvider(ollamaBaseURL, model), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ToolCaller, error) {
		if strings.TrimSpace(model) == "" {
			model = or.Model
		}
		return NewOpenRouterProvider(or.BaseURL, or.APIKey, model, or.SiteURL, or.AppName), nil
	})
	return reg
}

type OpenRouterSettings struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
}
