package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string `json:"role"` // "user", "assistant"
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Source is one citation attached to generated text.
type Source struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri"`
}

// Image is an uploaded image passed to multimodal models.
type Image struct {
	Name     string // original file name, persisted as the image reference
	MimeType string
	Data     []byte
}

// Params are the per-request generation knobs.
type Params struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
	Grounding   bool    `json:"grounding"` // ask the backend to attach web sources
}

// WithDefaults fills zero values with the defaults used by every adapter.
func (p Params) WithDefaults() Params {
	if p.Temperature == 0 {
		p.Temperature = 0.7
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = 8192
	}
	return p
}

// Request is everything an adapter needs to produce one assistant turn.
type Request struct {
	System  string
	Prompt  string
	History []Message
	Image   *Image
	Params  Params
}

// Transcript returns the history followed by the new user prompt, in order.
func (r Request) Transcript() []Message {
	out := make([]Message, 0, len(r.History)+1)
	out = append(out, r.History...)
	return append(out, Message{Role: RoleUser, Content: r.Prompt})
}

// Delta is one incremental fragment of generated text.
type Delta struct {
	Text      string
	Citations []Source
}

// DeltaStream is a lazy, finite, non-restartable sequence of deltas.
//
// Next blocks until the next delta is produced and returns false once the
// stream is exhausted, failed, or was stopped. Implementations must return
// false within one delta-production step after ctx cancellation or Close.
type DeltaStream interface {
	Next() bool
	Current() Delta
	Err() error
	Close() error
}

// Adapter defines the contract for any token-generating backend
type Adapter interface {
	// Generate opens a streaming generation for the request.
	Generate(ctx context.Context, req Request) (DeltaStream, error)

	// ModelID returns the model this adapter is bound to.
	ModelID() string

	// Provider returns the vendor name, e.g. "gemini".
	Provider() string
}
