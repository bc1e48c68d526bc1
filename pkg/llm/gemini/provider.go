package gemini

import (
	"context"
	"errors"
	"iter"
	"sync"

	"ai-factcheck-be/pkg/llm"

	"google.golang.org/genai"
)

const ProviderName = "gemini"

// Provider streams from the Gemini API through the official SDK. Search
// grounding metadata is surfaced as delta citations.
type Provider struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

var _ llm.Adapter = (*Provider)(nil)

func NewProvider(apiKey, model string) *Provider {
	return &Provider{apiKey: apiKey, model: model}
}

func (p *Provider) ModelID() string  { return p.model }
func (p *Provider) Provider() string { return ProviderName }

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &llm.AdapterError{Kind: llm.KindAuth, Provider: ProviderName, Message: "create client", Err: err}
	}
	p.client = client
	return client, nil
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.DeltaStream, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	seq := client.Models.GenerateContentStream(ctx, p.model, buildContents(req), buildConfig(req))
	next, stop := iter.Pull2(seq)
	return &stream{ctx: ctx, next: next, stop: stop}, nil
}

func buildContents(req llm.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  string(role),
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Image != nil {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{
			MIMEType: req.Image.MimeType,
			Data:     req.Image.Data,
		}})
	}
	return append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: parts})
}

func buildConfig(req llm.Request) *genai.GenerateContentConfig {
	params := req.Params.WithDefaults()
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(params.Temperature)),
		MaxOutputTokens: int32(params.MaxTokens),
	}
	if params.TopP > 0 {
		config.TopP = genai.Ptr(float32(params.TopP))
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if params.Grounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return config
}

type stream struct {
	ctx  context.Context
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()

	current llm.Delta
	err     error
	closed  bool
}

func (s *stream) Next() bool {
	for !s.closed && s.err == nil {
		if s.ctx.Err() != nil {
			return false
		}
		resp, err, ok := s.next()
		if !ok {
			return false
		}
		if err != nil {
			if s.ctx.Err() == nil {
				s.err = mapError(err)
			}
			return false
		}

		delta := extractDelta(resp)
		if delta.Text == "" && len(delta.Citations) == 0 {
			continue
		}
		s.current = delta
		return true
	}
	return false
}

func extractDelta(resp *genai.GenerateContentResponse) llm.Delta {
	var delta llm.Delta
	if resp == nil || len(resp.Candidates) == 0 {
		return delta
	}
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			delta.Text += part.Text
		}
	}
	if gm := candidate.GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk != nil && chunk.Web != nil && chunk.Web.URI != "" {
				delta.Citations = append(delta.Citations, llm.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
			}
		}
	}
	return delta
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewAdapterError(ProviderName, apiErr.Code, apiErr.Message, err)
	}
	return llm.WrapError(ProviderName, err)
}

func (s *stream) Current() llm.Delta { return s.current }
func (s *stream) Err() error         { return s.err }

func (s *stream) Close() error {
	if !s.closed {
		s.closed = true
		s.stop()
	}
	return nil
}
