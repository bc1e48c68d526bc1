package dto

import (
	"time"

	"ai-factcheck-be/internal/entity"

	"github.com/google/uuid"
)

// Sessions

type CreateSessionResponse struct {
	SessionId string `json:"session_id"`
}

type StartAnalysisRequest struct {
	Query       string   `json:"query" form:"query" validate:"max=20000"`
	ReportType  string   `json:"report_type" form:"report_type" validate:"required"`
	ModelId     string   `json:"model_id" form:"model_id" validate:"required"`
	Temperature *float64 `json:"temperature,omitempty" form:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `json:"max_tokens,omitempty" form:"max_tokens" validate:"omitempty,gte=1,lte=65536"`
	TopP        *float64 `json:"top_p,omitempty" form:"top_p" validate:"omitempty,gte=0,lte=1"`
	Grounding   bool     `json:"grounding,omitempty" form:"grounding"`
}

type FollowupRequest struct {
	Text    string `json:"text" validate:"max=20000"`
	Command string `json:"command" validate:"omitempty,startswith=/"`
}

type ResumeSessionResponse struct {
	SessionId  string `json:"session_id"`
	AnalysisId string `json:"analysis_id"`
}

// Persistence inputs

type CreateAnalysisInput struct {
	Query      string
	ReportType string
	ModelId    string
	ImageRef   string
	OwnerId    string
}

type TurnInput struct {
	UserText      string
	AssistantText string
	ModelId       string
	Citations     []entity.Source
}

type TurnIDs struct {
	UserMessageId      uuid.UUID `json:"user_message_id"`
	AssistantMessageId uuid.UUID `json:"assistant_message_id"`
	IsInitial          bool      `json:"is_initial"`
}

// History

type AnalysisResponse struct {
	Id                  uuid.UUID         `json:"id"`
	UserQueryText       *string           `json:"user_query_text"`
	UserImageRef        *string           `json:"user_image_ref"`
	ReportType          string            `json:"report_type"`
	ModelIdUsed         string            `json:"model_id_used"`
	GeneratedReportText *string           `json:"generated_report_text"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	Messages            []MessageResponse `json:"messages,omitempty"`
}

type MessageResponse struct {
	Id               uuid.UUID       `json:"id"`
	SenderType       string          `json:"sender_type"`
	MessageText      string          `json:"message_text"`
	ModelIdUsed      *string         `json:"model_id_used,omitempty"`
	GroundingSources []entity.Source `json:"grounding_sources,omitempty"`
	IsInitial        bool            `json:"is_initial"`
	Timestamp        time.Time       `json:"timestamp"`
}

type ListAnalysesRequest struct {
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
	Type     string `query:"report_type"`
}

type AnalysisListResponse struct {
	Items    []AnalysisResponse `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// Content

type FetchContentRequest struct {
	Url string `json:"url" validate:"required,url"`
}

type ContentResponse struct {
	ContentHash string    `json:"content_hash"`
	SourceUrl   string    `json:"source_url"`
	Title       string    `json:"title"`
	ContentText string    `json:"content_text"`
	FetchedAt   time.Time `json:"fetched_at"`
	Cached      bool      `json:"cached"`
}

// Models

type ModelsResponse struct {
	Models      []string `json:"models"`
	ReportTypes []string `json:"report_types"`
	Commands    []string `json:"commands"`
}
