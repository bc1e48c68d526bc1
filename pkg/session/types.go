package session

import (
	"context"
	"time"

	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/prompt"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateStarting  State = "STARTING"
	StateStreaming State = "STREAMING"
	StateCompleted State = "COMPLETED"
	StateStopped   State = "STOPPED"
	StateFailed    State = "FAILED"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// DisplayMessage is one entry of the client-visible message list. The
// in-flight assistant entry carries Loading until its turn settles.
type DisplayMessage struct {
	ID        string       `json:"id"`
	Sender    Sender       `json:"sender"`
	Text      string       `json:"text"`
	ModelID   string       `json:"model_id,omitempty"`
	Citations []llm.Source `json:"citations,omitempty"`
	Loading   bool         `json:"loading"`
	IsError   bool         `json:"is_error"`
	Stopped   bool         `json:"stopped"`
	CreatedAt time.Time    `json:"created_at"`
}

type StartInput struct {
	Query      string
	Image      *llm.Image
	ReportType string
	ModelID    string
	Params     llm.Params
}

type TurnKind string

const (
	TurnInitial  TurnKind = "initial"
	TurnFollowup TurnKind = "followup"
)

// ChatHandle is the provider-facing conversation. A nil AnalysisID means the
// conversation was never persisted and follow-ups run statelessly.
type ChatHandle struct {
	AnalysisID uuid.UUID
	Adapter    llm.Adapter
	ModelID    string
	ReportType prompt.ReportType
	Params     llm.Params
	System     string
	History    []llm.Message
}

// Checkpoint captures everything needed to regenerate the last turn. It is
// written once when the turn starts and never mutated.
type Checkpoint struct {
	Kind TurnKind

	// Initial turns.
	Input StartInput

	// Follow-up turns.
	FollowupText string
	Command      string
	Transcript   []llm.Message
	Chat         *ChatHandle

	UserText string
	Request  llm.Request
}

// Snapshot is a copy of the session state safe to hand to other goroutines.
type Snapshot struct {
	ID         string           `json:"session_id"`
	State      State            `json:"state"`
	AnalysisID string           `json:"analysis_id,omitempty"`
	ModelID    string           `json:"model_id,omitempty"`
	ReportType string           `json:"report_type,omitempty"`
	InFlight   bool             `json:"in_flight"`
	CanRestart bool             `json:"can_restart"`
	Messages   []DisplayMessage `json:"messages"`
}

// Turn is one completed user/assistant pair handed to persistence.
type Turn struct {
	UserText      string
	AssistantText string
	ModelID       string
	Citations     []llm.Source
}

// InitialTurn carries the analysis header along with the first turn.
type InitialTurn struct {
	Turn
	Query      string
	ImageRef   string
	ReportType prompt.ReportType
	OwnerID    string
}

// Conversation is a persisted analysis read back for resumption.
type Conversation struct {
	AnalysisID uuid.UUID
	OwnerID    string
	Query      string
	ImageRef   string
	ReportType prompt.ReportType
	ModelID    string
	Messages   []DisplayMessage
}

// Persister makes completed turns durable.
type Persister interface {
	PersistInitialTurn(ctx context.Context, turn InitialTurn) (uuid.UUID, error)
	AppendTurn(ctx context.Context, analysisID uuid.UUID, turn Turn) error
	LoadConversation(ctx context.Context, analysisID uuid.UUID) (*Conversation, error)
}

// AdapterResolver returns a fresh adapter for a model id.
type AdapterResolver interface {
	Resolve(modelID string) (llm.Adapter, error)
}
