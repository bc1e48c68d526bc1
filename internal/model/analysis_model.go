package model

import (
	"time"

	"github.com/google/uuid"
)

// Ids are generated in Go so the schema works on both postgres and sqlite.
type Analysis struct {
	Id                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerId             *string   `gorm:"type:varchar(128);index"`
	UserQueryText       *string   `gorm:"type:text"`
	UserImageRef        *string   `gorm:"type:varchar(512)"`
	ReportType          string    `gorm:"type:varchar(32);not null"`
	ModelIdUsed         string    `gorm:"type:varchar(128);not null"`
	GeneratedReportText *string   `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`

	Messages []Message `gorm:"foreignKey:AnalysisId;constraint:OnDelete:CASCADE"`
}

func (Analysis) TableName() string {
	return "analyses"
}
