package entity

import (
	"time"

	"github.com/google/uuid"
)

type SenderType string

const (
	SenderUser      SenderType = "user"
	SenderAssistant SenderType = "assistant"
)

type Source struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri"`
}

type Message struct {
	Id               uuid.UUID
	AnalysisId       uuid.UUID
	Seq              int
	SenderType       SenderType
	MessageText      string
	ModelIdUsed      *string
	GroundingSources []Source
	IsInitial        bool
	Timestamp        time.Time
}
