package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Message rows are append-only. Seq gives the total order within an
// analysis; Timestamp mirrors it in wall-clock time.
type Message struct {
	Id               uuid.UUID      `gorm:"type:uuid;primaryKey"`
	AnalysisId       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_messages_analysis_seq,priority:1"`
	Seq              int            `gorm:"not null;uniqueIndex:idx_messages_analysis_seq,priority:2"`
	SenderType       string         `gorm:"type:varchar(16);not null"`
	MessageText      string         `gorm:"type:text;not null"`
	ModelIdUsed      *string        `gorm:"type:varchar(128)"`
	GroundingSources datatypes.JSON
	IsInitial        bool           `gorm:"not null;default:false"`
	Timestamp        time.Time      `gorm:"not null;index"`
}

func (Message) TableName() string {
	return "messages"
}
