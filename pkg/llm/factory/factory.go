package factory

import (
	"fmt"
	"sort"
	"sync"

	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/llm/claude"
	"ai-factcheck-be/pkg/llm/gemini"
	"ai-factcheck-be/pkg/llm/ollama"
	"ai-factcheck-be/pkg/llm/openaichat"
	"ai-factcheck-be/pkg/llm/scripted"
)

// DemoModelID is served by the scripted adapter when demo mode is on.
const DemoModelID = "demo"

// Builder creates a fresh adapter. Each session gets its own instance.
type Builder func() (llm.Adapter, error)

// Registry maps model ids to adapter builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
	retry    llm.RetryOptions
}

func NewRegistry(retry llm.RetryOptions) *Registry {
	return &Registry{
		builders: make(map[string]Builder),
		retry:    retry,
	}
}

// Register binds modelID to a builder, replacing any previous binding.
func (r *Registry) Register(modelID string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[modelID] = b
}

// RegisterAdapter binds modelID to an already constructed adapter.
func (r *Registry) RegisterAdapter(a llm.Adapter) {
	r.Register(a.ModelID(), func() (llm.Adapter, error) { return a, nil })
}

// Resolve builds the adapter for modelID.
func (r *Registry) Resolve(modelID string) (llm.Adapter, error) {
	r.mu.RLock()
	b, ok := r.builders[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", llm.ErrUnknownModel, modelID)
	}
	a, err := b()
	if err != nil {
		return nil, fmt.Errorf("build adapter for %q: %w", modelID, err)
	}
	return llm.WithRetry(a, r.retry), nil
}

// Models lists registered model ids in sorted order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.builders))
	for id := range r.builders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Config struct {
	GeminiAPIKey string
	GeminiModels []string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModels  []string

	AnthropicAPIKey string
	AnthropicModels []string

	OllamaBaseURL string
	OllamaModels  []string

	HuggingFaceAPIKey  string
	HuggingFaceBaseURL string
	HuggingFaceModels  []string

	EnableDemo bool
	Retry      llm.RetryOptions
}

// NewRegistryFromConfig registers every vendor whose credentials are present.
func NewRegistryFromConfig(cfg Config) *Registry {
	r := NewRegistry(cfg.Retry)

	if cfg.GeminiAPIKey != "" {
		for _, m := range cfg.GeminiModels {
			model := m
			r.Register(model, func() (llm.Adapter, error) {
				return gemini.NewProvider(cfg.GeminiAPIKey, model), nil
			})
		}
	}
	if cfg.OpenAIAPIKey != "" {
		for _, m := range cfg.OpenAIModels {
			model := m
			r.Register(model, func() (llm.Adapter, error) {
				return openaichat.NewProvider(openaichat.ProviderName, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model), nil
			})
		}
	}
	if cfg.AnthropicAPIKey != "" {
		for _, m := range cfg.AnthropicModels {
			model := m
			r.Register(model, func() (llm.Adapter, error) {
				return claude.NewProvider(cfg.AnthropicAPIKey, model), nil
			})
		}
	}
	if cfg.HuggingFaceAPIKey != "" {
		baseURL := cfg.HuggingFaceBaseURL
		if baseURL == "" {
			baseURL = "https://router.huggingface.co/v1" // Default Router URL
		}
		for _, m := range cfg.HuggingFaceModels {
			model := m
			r.Register(model, func() (llm.Adapter, error) {
				return openaichat.NewProvider("huggingface", cfg.HuggingFaceAPIKey, baseURL, model), nil
			})
		}
	}
	for _, m := range cfg.OllamaModels {
		model := m
		r.Register(model, func() (llm.Adapter, error) {
			return ollama.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
		})
	}
	if cfg.EnableDemo {
		r.Register(DemoModelID, func() (llm.Adapter, error) {
			return scripted.New(DemoModelID,
				"## Summary\n\n",
				"This is a demo report produced without a model backend. ",
				"Configure a provider API key to get real analyses.\n",
			), nil
		})
	}
	return r
}
