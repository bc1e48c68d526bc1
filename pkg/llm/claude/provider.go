package claude

import (
	"context"
	"encoding/base64"
	"errors"

	"ai-factcheck-be/pkg/llm"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const ProviderName = "anthropic"

type Provider struct {
	model  string
	client anthropic.Client
}

var _ llm.Adapter = (*Provider)(nil)

func NewProvider(apiKey, model string) *Provider {
	return &Provider{
		model:  model,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (p *Provider) ModelID() string  { return p.model }
func (p *Provider) Provider() string { return ProviderName }

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.DeltaStream, error) {
	params := req.Params.WithDefaults()

	body := anthropic.MessageNewParams{
		MaxTokens:   int64(params.MaxTokens),
		Messages:    buildMessages(req),
		Model:       anthropic.Model(p.model),
		Temperature: anthropic.Float(params.Temperature),
	}
	if params.TopP > 0 {
		body.TopP = anthropic.Float(params.TopP)
	}
	if req.System != "" {
		body.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	s := p.client.Messages.NewStreaming(ctx, body)
	if err := s.Err(); err != nil {
		return nil, mapError(err)
	}
	return &stream{ctx: ctx, inner: s}, nil
}

func buildMessages(req llm.Request) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, msg := range req.History {
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	blocks := []anthropic.ContentBlockParamUnion{}
	if req.Image != nil {
		blocks = append(blocks, anthropic.NewImageBlockBase64(
			req.Image.MimeType,
			base64.StdEncoding.EncodeToString(req.Image.Data),
		))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))
	return append(messages, anthropic.NewUserMessage(blocks...))
}

func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.NewAdapterError(ProviderName, apiErr.StatusCode, "", err)
	}
	return llm.WrapError(ProviderName, err)
}

type stream struct {
	ctx   context.Context
	inner *ssestream.Stream[anthropic.MessageStreamEventUnion]

	current llm.Delta
	err     error
	stopped bool
}

func (s *stream) Next() bool {
	for !s.stopped && s.err == nil && s.ctx.Err() == nil {
		if !s.inner.Next() {
			if err := s.inner.Err(); err != nil && s.ctx.Err() == nil {
				s.err = mapError(err)
			}
			return false
		}

		switch event := s.inner.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if text, ok := event.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				s.current = llm.Delta{Text: text.Text}
				return true
			}
		case anthropic.MessageStopEvent:
			s.stopped = true
		}
	}
	return false
}

func (s *stream) Current() llm.Delta { return s.current }
func (s *stream) Err() error         { return s.err }
func (s *stream) Close() error       { return s.inner.Close() }
