package entity

import (
	"time"

	"github.com/google/uuid"
)

type ReportType string

const (
	ReportTypeFullCheck     ReportType = "FULL_CHECK"
	ReportTypeContextReport ReportType = "CONTEXT_REPORT"
	ReportTypeCommunityNote ReportType = "COMMUNITY_NOTE"
)

type Analysis struct {
	Id                  uuid.UUID
	OwnerId             *string
	UserQueryText       *string
	UserImageRef        *string
	ReportType          ReportType
	ModelIdUsed         string
	GeneratedReportText *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
