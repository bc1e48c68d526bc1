package openaichat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"ai-factcheck-be/pkg/llm"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

const ProviderName = "openai"

// Provider streams chat completions from OpenAI or any OpenAI-compatible
// router (Hugging Face, LM Studio) when a base URL is set.
type Provider struct {
	name   string
	model  string
	client openai.Client
}

var _ llm.Adapter = (*Provider)(nil)

// NewProvider creates a provider; name labels errors and logs so compatible
// routers are distinguishable from OpenAI itself.
func NewProvider(name, apiKey, baseURL, model string) *Provider {
	if name == "" {
		name = ProviderName
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{
		name:   name,
		model:  model,
		client: openai.NewClient(opts...),
	}
}

func (p *Provider) ModelID() string  { return p.model }
func (p *Provider) Provider() string { return p.name }

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.DeltaStream, error) {
	params := req.Params.WithDefaults()

	body := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               openai.ChatModel(p.model),
		Temperature:         openai.Float(params.Temperature),
		MaxCompletionTokens: openai.Int(int64(params.MaxTokens)),
	}
	if params.TopP > 0 {
		body.TopP = openai.Float(params.TopP)
	}

	s := p.client.Chat.Completions.NewStreaming(ctx, body)
	if err := s.Err(); err != nil {
		return nil, p.mapError(err)
	}
	return &stream{ctx: ctx, provider: p, inner: s}, nil
}

func buildMessages(req llm.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.History {
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		} else {
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	if req.Image == nil {
		return append(messages, openai.UserMessage(req.Prompt))
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", req.Image.MimeType, base64.StdEncoding.EncodeToString(req.Image.Data))
	return append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}))
}

func (p *Provider) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.NewAdapterError(p.name, apiErr.StatusCode, apiErr.Message, err)
	}
	return llm.WrapError(p.name, err)
}

type stream struct {
	ctx      context.Context
	provider *Provider
	inner    *ssestream.Stream[openai.ChatCompletionChunk]

	current llm.Delta
	err     error
}

func (s *stream) Next() bool {
	for s.err == nil && s.ctx.Err() == nil {
		if !s.inner.Next() {
			if err := s.inner.Err(); err != nil && s.ctx.Err() == nil {
				s.err = s.provider.mapError(err)
			}
			return false
		}
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.current = llm.Delta{Text: chunk.Choices[0].Delta.Content}
		return true
	}
	return false
}

func (s *stream) Current() llm.Delta { return s.current }
func (s *stream) Err() error         { return s.err }
func (s *stream) Close() error       { return s.inner.Close() }
