package factory

import (
	"context"
	"errors"
	"testing"

	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/llm/scripted"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(llm.RetryOptions{})
	r.RegisterAdapter(scripted.New("b-model", "x"))
	r.Register("a-model", func() (llm.Adapter, error) { return scripted.New("a-model"), nil })
	r.Register("broken", func() (llm.Adapter, error) { return nil, errors.New("no key") })

	assert.Equal(t, []string{"a-model", "b-model", "broken"}, r.Models())

	a, err := r.Resolve("b-model")
	require.NoError(t, err)
	assert.Equal(t, "b-model", a.ModelID())

	_, err = r.Resolve("missing")
	assert.ErrorIs(t, err, llm.ErrUnknownModel)

	_, err = r.Resolve("broken")
	assert.ErrorContains(t, err, "no key")
}

func TestRegistry_BuildsFreshAdapters(t *testing.T) {
	r := NewRegistry(llm.RetryOptions{MaxRetries: 3})
	r.Register("m", func() (llm.Adapter, error) { return scripted.New("m", "hi"), nil })

	first, err := r.Resolve("m")
	require.NoError(t, err)
	second, err := r.Resolve("m")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	ds, err := first.Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	require.True(t, ds.Next())
	assert.Equal(t, "hi", ds.Current().Text)
}

func TestNewRegistryFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"nothing configured", Config{}, []string{}},
		{"demo only", Config{EnableDemo: true}, []string{DemoModelID}},
		{
			name: "keys gate vendors",
			cfg: Config{
				GeminiAPIKey:    "g",
				GeminiModels:    []string{"gemini-2.5-flash"},
				OpenAIModels:    []string{"gpt-4o-mini"},
				AnthropicAPIKey: "a",
				AnthropicModels: []string{"claude-sonnet-4-5"},
				OllamaModels:    []string{"llama3"},
			},
			want: []string{"claude-sonnet-4-5", "gemini-2.5-flash", "llama3"},
		},
		{
			name: "huggingface uses the openai protocol",
			cfg:  Config{HuggingFaceAPIKey: "h", HuggingFaceModels: []string{"meta/llama"}},
			want: []string{"meta/llama"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewRegistryFromConfig(tt.cfg).Models())
		})
	}
}

func TestDemoAdapterStreams(t *testing.T) {
	a, err := NewRegistryFromConfig(Config{EnableDemo: true}).Resolve(DemoModelID)
	require.NoError(t, err)

	ds, err := a.Generate(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)
	var n int
	for ds.Next() {
		n++
	}
	assert.NoError(t, ds.Err())
	assert.Equal(t, 3, n)
}
