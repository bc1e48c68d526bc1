package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ai-factcheck-be/pkg/llm"
)

const ProviderName = "ollama"

type OllamaProvider struct {
	BaseURL   string
	ModelName string
	Client    *http.Client
}

// Ensure OllamaProvider implements Adapter
var _ llm.Adapter = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		BaseURL:   baseURL,
		ModelName: modelName,
		// No client timeout: long reports stream for minutes, the caller's ctx bounds the call.
		Client: &http.Client{},
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatChunk struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// --- Interface Implementation ---

func (o *OllamaProvider) ModelID() string  { return o.ModelName }
func (o *OllamaProvider) Provider() string { return ProviderName }

func (o *OllamaProvider) Generate(ctx context.Context, req llm.Request) (llm.DeltaStream, error) {
	params := req.Params.WithDefaults()

	// 1. Map generic messages to Ollama messages
	messages := make([]ollamaMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.History {
		messages = append(messages, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}
	last := ollamaMessage{Role: llm.RoleUser, Content: req.Prompt}
	if req.Image != nil {
		last.Images = []string{base64.StdEncoding.EncodeToString(req.Image.Data)}
	}
	messages = append(messages, last)

	// 2. Prepare Payload
	payload := ollamaChatRequest{
		Model:    o.ModelName,
		Messages: messages,
		Stream:   true,
		Options: &ollamaOptions{
			Temperature: params.Temperature,
			TopP:        params.TopP,
			NumPredict:  params.MaxTokens,
		},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, &llm.AdapterError{Kind: llm.KindInvalidRequest, Provider: ProviderName, Message: "marshal request", Err: err}
	}

	// 3. Send Request
	url := o.BaseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, &llm.AdapterError{Kind: llm.KindInvalidRequest, Provider: ProviderName, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llm.AdapterError{Kind: llm.KindUnavailable, Provider: ProviderName, Message: "ollama request failed", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, llm.NewAdapterError(ProviderName, resp.StatusCode, errorMessage(body), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ollamaStream{ctx: ctx, body: resp.Body, scanner: scanner}, nil
}

func errorMessage(body []byte) string {
	var chunk ollamaChatChunk
	if err := json.Unmarshal(body, &chunk); err == nil && chunk.Error != "" {
		return chunk.Error
	}
	return string(body)
}

// ollamaStream reads the NDJSON body one chunk per Next call.
type ollamaStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	current llm.Delta
	err     error
	done    bool
}

func (s *ollamaStream) Next() bool {
	for !s.done && s.err == nil {
		if s.ctx.Err() != nil {
			return false
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil && s.ctx.Err() == nil {
				s.err = &llm.AdapterError{Kind: llm.KindUnavailable, Provider: ProviderName, Message: "read stream", Err: err}
			}
			return false
		}
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			s.err = &llm.AdapterError{Kind: llm.KindUnknown, Provider: ProviderName, Message: fmt.Sprintf("decode chunk: %s", line), Err: err}
			return false
		}
		if chunk.Error != "" {
			s.err = &llm.AdapterError{Kind: llm.KindUnknown, Provider: ProviderName, Message: chunk.Error}
			return false
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Message.Content != "" {
			s.current = llm.Delta{Text: chunk.Message.Content}
			return true
		}
	}
	return false
}

func (s *ollamaStream) Current() llm.Delta { return s.current }
func (s *ollamaStream) Err() error         { return s.err }
func (s *ollamaStream) Close() error       { return s.body.Close() }
