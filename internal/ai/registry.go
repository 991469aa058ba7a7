package ai

import (
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Backend is an OpenAI compatible endpoint usable for completions and embeddings.
type Backend interface {
	CompletionClient
	EmbeddingClient
}

type BackendFactory func() (Backend, error)

// Registry maps backend names ("openai", "openrouter", "ollama") to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]BackendFactory)}
}

func (r *Registry) Register(name string, f BackendFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai backend: %s", name)
	}
	return f()
}

// OpenAICompatible returns a factory for any endpoint speaking the OpenAI
// wire format. A missing key yields ErrUnavailable unless keyless is set.
func OpenAICompatible(baseURL, apiKey string, keyless bool) BackendFactory {
	return func() (Backend, error) {
		if strings.TrimSpace(apiKey) == "" && !keyless {
			return nil, fmt.Errorf("%w: api key is not configured", ErrUnavailable)
		}
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = strings.TrimRight(baseURL, "/")
		}
		return openai.NewClientWithConfig(cfg), nil
	}
}
